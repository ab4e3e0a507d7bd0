package lineio

import (
	"bufio"
	"errors"
	"io"
)

// ReadLine reads bytes from src until '\n' or end-of-input.
//
// The terminator is not included. ok is false only when end-of-input is hit
// before any byte was read; a trailing partial line is returned as a
// complete one.
func ReadLine(src io.ByteReader) (line string, ok bool, err error) {
	buf, ok, err := readInto(src, DefaultInitialCap)
	if !ok || err != nil {
		return "", ok, err
	}
	return buf.String(), true, nil
}

func readInto(src io.ByteReader, initialCap int) (*Buffer, bool, error) {
	buf := NewBuffer(initialCap)
	for {
		c, err := src.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return buf, buf.Len() > 0, nil
			}
			return buf, false, err
		}
		if c == '\n' {
			return buf, true, nil
		}
		buf.Append(c)
	}
}

// Reader reads operator input one line at a time. Every call starts a fresh
// buffer.
type Reader struct {
	src        *bufio.Reader
	initialCap int
	lastCap    int
}

func NewReader(r io.Reader, initialCap int) *Reader {
	if initialCap < 2 {
		initialCap = DefaultInitialCap
	}
	return &Reader{src: bufio.NewReader(r), initialCap: initialCap}
}

func (r *Reader) ReadLine() (string, bool, error) {
	buf, ok, err := readInto(r.src, r.initialCap)
	r.lastCap = buf.Cap()
	if !ok || err != nil {
		return "", ok, err
	}
	return buf.String(), true, nil
}

// LastCap reports the buffer capacity reached by the previous ReadLine.
func (r *Reader) LastCap() int { return r.lastCap }
