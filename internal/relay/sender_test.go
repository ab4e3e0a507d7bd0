package relay

import (
	"errors"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"fieldtelem/internal/metrics"
)

type fakeConn struct {
	writes    [][]byte
	writeErr  error
	maxChunk  int
	closed    int
	closeErr  error
	writeHits int
}

func (c *fakeConn) Write(p []byte) (int, error) {
	c.writeHits++
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	if c.maxChunk > 0 && len(p) > c.maxChunk {
		p = p[:c.maxChunk]
	}
	cp := append([]byte(nil), p...)
	c.writes = append(c.writes, cp)
	return len(p), nil
}

func (c *fakeConn) Close() error {
	c.closed++
	return c.closeErr
}

func (c *fakeConn) joined() []byte {
	var out []byte
	for _, w := range c.writes {
		out = append(out, w...)
	}
	return out
}

func TestSender_Send_AppendsNUL(t *testing.T) {
	fc := &fakeConn{}
	s := &Sender{conn: fc}

	require.NoError(t, s.Send([]byte("hello")))
	require.Equal(t, 1, fc.writeHits)
	require.Equal(t, []byte("hello\x00"), fc.writes[0])
}

func TestSender_Send_EmptyLineIsLoneNUL(t *testing.T) {
	fc := &fakeConn{}
	s := &Sender{conn: fc}

	require.NoError(t, s.Send(nil))
	require.Equal(t, []byte{0}, fc.joined())
}

func TestSender_Send_ShortWrites(t *testing.T) {
	fc := &fakeConn{maxChunk: 3}
	m := metrics.New()
	s := &Sender{conn: fc, metrics: m}

	require.NoError(t, s.Send([]byte("abcdefgh")))
	require.Equal(t, []byte("abcdefgh\x00"), fc.joined())
	require.Equal(t, 3, fc.writeHits)
}

func TestSender_Send_ReusesBufferWithoutAliasing(t *testing.T) {
	fc := &fakeConn{}
	s := &Sender{conn: fc}

	require.NoError(t, s.Send([]byte("first")))
	require.NoError(t, s.Send([]byte("2")))
	require.Equal(t, []byte("first\x002\x00"), fc.joined())
}

func TestSender_Send_PropagatesError(t *testing.T) {
	wantErr := errors.New("broken pipe")
	fc := &fakeConn{writeErr: wantErr}
	s := &Sender{conn: fc}

	require.ErrorIs(t, s.Send([]byte{0x01}), wantErr)
}

func TestSender_Close_Once(t *testing.T) {
	fc := &fakeConn{}
	s := &Sender{conn: fc}

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.Equal(t, 1, fc.closed)
	require.ErrorIs(t, s.Send([]byte("late")), ErrClosed)
	require.Equal(t, 0, fc.writeHits)
}

func TestSender_Close_NilConnNoPanic(t *testing.T) {
	s := &Sender{}
	require.NoError(t, s.Close())
	require.ErrorIs(t, s.Send([]byte("x")), ErrClosed)
}

func TestSender_OverTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	got := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			got <- nil
			return
		}
		defer conn.Close()
		b, _ := io.ReadAll(conn)
		got <- b
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	s := NewSender(conn, nil)
	require.NoError(t, s.Send([]byte("one")))
	require.NoError(t, s.Send([]byte("")))
	require.NoError(t, s.Send([]byte("three")))
	require.NoError(t, s.Close())

	require.Equal(t, []byte("one\x00\x00three\x00"), <-got)
}
