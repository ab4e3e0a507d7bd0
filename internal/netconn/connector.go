package netconn

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"time"
)

// Candidate is one resolved endpoint to attempt connecting to.
type Candidate struct {
	Family   string // "tcp4" or "tcp6"
	SockType string
	Protocol string
	Addr     netip.AddrPort
}

func (c Candidate) String() string {
	return c.Family + "/" + c.Addr.String()
}

type ResolutionError struct {
	Host string
	Port string
	Err  error
}

func (e *ResolutionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("resolve %s: no addresses", net.JoinHostPort(e.Host, e.Port))
	}
	return fmt.Sprintf("resolve %s: %v", net.JoinHostPort(e.Host, e.Port), e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// ConnectionError is returned when every candidate failed.
type ConnectionError struct {
	Attempts []error
}

func (e *ConnectionError) Error() string {
	if len(e.Attempts) == 0 {
		return "connect: no candidates"
	}
	msgs := make([]string, 0, len(e.Attempts))
	for _, err := range e.Attempts {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("connect: all %d candidates failed: %s", len(e.Attempts), strings.Join(msgs, "; "))
}

func (e *ConnectionError) Unwrap() []error { return e.Attempts }

type ipResolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
	LookupPort(ctx context.Context, network, service string) (int, error)
}

type dialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Connector resolves a host/port pair and dials the first viable candidate.
type Connector struct {
	DialTimeout time.Duration

	resolver ipResolver
	dial     dialFunc

	// OnAttempt, if set, is called after every dial attempt.
	OnAttempt func(c Candidate, err error)
}

func NewConnector(dialTimeout time.Duration) *Connector {
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	d := &net.Dialer{}
	return &Connector{
		DialTimeout: dialTimeout,
		resolver:    net.DefaultResolver,
		dial:        d.DialContext,
	}
}

// Resolve returns the candidates for host:port in resolution order.
func (c *Connector) Resolve(ctx context.Context, host, port string) ([]Candidate, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return nil, &ResolutionError{Host: host, Port: port, Err: errors.New("empty host")}
	}
	p, err := c.lookupPort(ctx, port)
	if err != nil {
		return nil, &ResolutionError{Host: host, Port: port, Err: err}
	}

	var addrs []netip.Addr
	if a, perr := netip.ParseAddr(host); perr == nil {
		addrs = append(addrs, a)
	} else {
		ips, err := c.resolver.LookupIPAddr(ctx, host)
		if err != nil {
			return nil, &ResolutionError{Host: host, Port: port, Err: err}
		}
		for _, ip := range ips {
			a, ok := netip.AddrFromSlice(ip.IP)
			if !ok {
				continue
			}
			addrs = append(addrs, a.WithZone(ip.Zone))
		}
	}
	if len(addrs) == 0 {
		return nil, &ResolutionError{Host: host, Port: port}
	}

	out := make([]Candidate, 0, len(addrs))
	for _, a := range addrs {
		fam := "tcp6"
		if a.Unmap().Is4() {
			a = a.Unmap()
			fam = "tcp4"
		}
		out = append(out, Candidate{
			Family:   fam,
			SockType: "stream",
			Protocol: "tcp",
			Addr:     netip.AddrPortFrom(a, p),
		})
	}
	return out, nil
}

func (c *Connector) lookupPort(ctx context.Context, port string) (uint16, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		return 0, errors.New("empty port")
	}
	if n, err := strconv.ParseUint(port, 10, 16); err == nil {
		return uint16(n), nil
	}
	n, err := c.resolver.LookupPort(ctx, "tcp", port)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > 65535 {
		return 0, fmt.Errorf("port %d out of range", n)
	}
	return uint16(n), nil
}

// ConnectFirstViable dials candidates in order and returns the first
// connection that succeeds. Later candidates are never attempted.
func (c *Connector) ConnectFirstViable(ctx context.Context, candidates []Candidate) (net.Conn, Candidate, error) {
	cerr := &ConnectionError{}
	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			cerr.Attempts = append(cerr.Attempts, err)
			return nil, Candidate{}, cerr
		}
		conn, err := c.attempt(ctx, cand)
		if c.OnAttempt != nil {
			c.OnAttempt(cand, err)
		}
		if err != nil {
			cerr.Attempts = append(cerr.Attempts, fmt.Errorf("%s: %w", cand, err))
			continue
		}
		return conn, cand, nil
	}
	return nil, Candidate{}, cerr
}

func (c *Connector) attempt(ctx context.Context, cand Candidate) (net.Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, c.DialTimeout)
	defer cancel()

	conn, err := c.dial(dctx, cand.Family, cand.Addr.String())
	if err != nil {
		// A dial func may hand back a half-open socket with its error.
		if conn != nil {
			_ = conn.Close()
		}
		return nil, err
	}
	return conn, nil
}

// Dial resolves host:port and connects to the first viable candidate.
func (c *Connector) Dial(ctx context.Context, host, port string) (net.Conn, Candidate, error) {
	cands, err := c.Resolve(ctx, host, port)
	if err != nil {
		return nil, Candidate{}, err
	}
	return c.ConnectFirstViable(ctx, cands)
}
