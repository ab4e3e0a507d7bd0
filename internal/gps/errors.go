package gps

import (
	"errors"
	"fmt"
	"io"
	"net"
)

// ErrStreamTimeout is returned by Poller.Run under PolicyFatalAfterTimeout.
var ErrStreamTimeout = errors.New("gps stream timeout")

type ProviderConnectError struct {
	Addr string
	Err  error
}

func (e *ProviderConnectError) Error() string {
	return fmt.Sprintf("gpsd connect failed addr=%s: %v", e.Addr, e.Err)
}

func (e *ProviderConnectError) Unwrap() error { return e.Err }

// ProviderReadError is fatal; the provider protocol has no mid-stream
// recovery.
type ProviderReadError struct {
	Op  string
	Err error
}

func (e *ProviderReadError) Error() string {
	return fmt.Sprintf("gpsd %s failed: %v", e.Op, e.Err)
}

func (e *ProviderReadError) Unwrap() error { return e.Err }

// InvalidFixPayload marks a report that could not be decoded. Pollers skip
// it and keep going.
type InvalidFixPayload struct {
	Line string
	Err  error
}

func (e *InvalidFixPayload) Error() string {
	return fmt.Sprintf("gpsd invalid payload: %v", e.Err)
}

func (e *InvalidFixPayload) Unwrap() error { return e.Err }

// ErrorString describes a provider error for diagnostics.
func ErrorString(err error) string {
	if err == nil {
		return "no error"
	}
	var ne net.Error
	switch {
	case errors.Is(err, ErrStreamTimeout):
		return "timed out waiting for a fix"
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return "provider closed the connection"
	case errors.Is(err, net.ErrClosed):
		return "provider session already closed"
	case errors.As(err, &ne) && ne.Timeout():
		return "provider did not answer in time"
	}
	var ce *ProviderConnectError
	if errors.As(err, &ce) {
		return "cannot reach provider at " + ce.Addr
	}
	var ip *InvalidFixPayload
	if errors.As(err, &ip) {
		return "malformed report from provider"
	}
	return err.Error()
}
