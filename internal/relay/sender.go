package relay

import (
	"errors"
	"io"

	"fieldtelem/internal/metrics"
)

// DefaultPort is the collector's TCP port.
const DefaultPort = "12345"

var ErrClosed = errors.New("relay sender is closed")

type streamConn interface {
	Write(p []byte) (int, error)
	Close() error
}

// Sender writes NUL-terminated lines to the collector. No length prefix,
// no acknowledgement.
type Sender struct {
	conn    streamConn
	metrics *metrics.Metrics
	buf     []byte
	closed  bool
}

func NewSender(conn io.WriteCloser, m *metrics.Metrics) *Sender {
	return &Sender{conn: conn, metrics: m}
}

// Send writes line followed by a single NUL byte. An empty line is sent as
// a lone NUL.
func (s *Sender) Send(line []byte) error {
	if s.closed || s.conn == nil {
		return ErrClosed
	}
	s.buf = append(s.buf[:0], line...)
	s.buf = append(s.buf, 0)

	p := s.buf
	for len(p) > 0 {
		n, err := s.conn.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	s.metrics.ObserveRelay(len(s.buf))
	return nil
}

// Close closes the underlying connection once.
func (s *Sender) Close() error {
	if s.closed || s.conn == nil {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}
