package gps

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"fieldtelem/internal/metrics"
)

// Policy selects what a poll timeout means.
//
// gpsd drops idle watch streams periodically, so a timeout is usually a
// stream reset (PolicyRetry). Callers that need a fix within a deadline pick
// PolicyFatalAfterTimeout instead.
type Policy int

const (
	PolicyRetry Policy = iota
	PolicyFatalAfterTimeout
)

func (p Policy) String() string {
	switch p {
	case PolicyRetry:
		return "retry"
	case PolicyFatalAfterTimeout:
		return "fatal_after_timeout"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "retry":
		return PolicyRetry, nil
	case "fatal_after_timeout", "fatal":
		return PolicyFatalAfterTimeout, nil
	default:
		return PolicyRetry, fmt.Errorf("unknown timeout policy %q", s)
	}
}

type State int

const (
	StateInit State = iota
	StateSubscribed
	StatePolling
	StateResubscribing
	StateFatal
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateSubscribed:
		return "subscribed"
	case StatePolling:
		return "polling"
	case StateResubscribing:
		return "resubscribing"
	case StateFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Reporter receives poll results. Fix is only called with finite
// coordinates.
type Reporter interface {
	Fix(f Fix)
	Progress()
}

// ReporterFuncs adapts plain functions to Reporter. Nil fields are skipped.
type ReporterFuncs struct {
	OnFix      func(Fix)
	OnProgress func()
}

func (r ReporterFuncs) Fix(f Fix) {
	if r.OnFix != nil {
		r.OnFix(f)
	}
}

func (r ReporterFuncs) Progress() {
	if r.OnProgress != nil {
		r.OnProgress()
	}
}

type PollerConfig struct {
	// Timeout bounds each wait for provider data. Defaults to 5s.
	Timeout time.Duration
	Policy  Policy

	Log     logrus.FieldLogger
	Metrics *metrics.Metrics
}

type Stats struct {
	Fixes        uint64
	Progress     uint64
	InvalidFixes uint64
	Resubscribes uint64
}

// Poller runs the subscribe/poll/read loop against one Session.
type Poller struct {
	cfg   PollerConfig
	sess  Session
	state State
	stats Stats
}

func NewPoller(sess Session, cfg PollerConfig) (*Poller, error) {
	if sess == nil {
		return nil, fmt.Errorf("gps session is nil")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	return &Poller{cfg: cfg, sess: sess, state: StateInit}, nil
}

func (p *Poller) State() State { return p.state }
func (p *Poller) Stats() Stats { return p.stats }

// Run subscribes and polls until a fatal provider error, a timeout under
// PolicyFatalAfterTimeout, or ctx cancellation. It never returns nil. The
// session is unwatched before Run returns; closing it is up to the caller.
func (p *Poller) Run(ctx context.Context, rep Reporter) error {
	if rep == nil {
		return fmt.Errorf("gps reporter is nil")
	}
	if err := p.sess.Watch(); err != nil {
		p.state = StateFatal
		return &ProviderReadError{Op: "watch", Err: err}
	}
	p.state = StateSubscribed
	defer p.unwatch()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.state = StatePolling

		ready, err := p.sess.Wait(p.cfg.Timeout)
		if err != nil {
			p.state = StateFatal
			return &ProviderReadError{Op: "wait", Err: err}
		}
		if !ready {
			if err := p.handleTimeout(); err != nil {
				return err
			}
			continue
		}

		upd, err := p.sess.Read()
		if err != nil {
			var inv *InvalidFixPayload
			if errors.As(err, &inv) {
				p.skip(err.Error())
				continue
			}
			p.state = StateFatal
			var rerr *ProviderReadError
			if errors.As(err, &rerr) {
				return err
			}
			return &ProviderReadError{Op: "read", Err: err}
		}

		switch upd.Kind {
		case FixAvailable:
			if !upd.Fix.Valid() {
				p.skip(fmt.Sprintf("no coordinates lat=%v lon=%v", upd.Fix.Lat, upd.Fix.Lon))
				continue
			}
			p.stats.Fixes++
			p.cfg.Metrics.IncFix()
			rep.Fix(upd.Fix)
		default:
			p.stats.Progress++
			p.cfg.Metrics.IncProgress()
			rep.Progress()
		}
	}
}

func (p *Poller) handleTimeout() error {
	if p.cfg.Policy == PolicyFatalAfterTimeout {
		p.state = StateFatal
		return fmt.Errorf("%w: no data within %s", ErrStreamTimeout, p.cfg.Timeout)
	}

	p.state = StateResubscribing
	p.stats.Resubscribes++
	p.cfg.Metrics.IncResubscribe()
	p.cfg.Log.Debugf("gps poll timed out after %s, resubscribing (count=%d)", p.cfg.Timeout, p.stats.Resubscribes)
	if err := p.sess.Watch(); err != nil {
		p.state = StateFatal
		return &ProviderReadError{Op: "resubscribe", Err: err}
	}
	p.state = StateSubscribed
	return nil
}

func (p *Poller) skip(reason string) {
	p.stats.InvalidFixes++
	p.cfg.Metrics.IncInvalidFix()
	p.cfg.Log.Debugf("gps report skipped: %s", reason)
}

func (p *Poller) unwatch() {
	if err := p.sess.Unwatch(); err != nil {
		p.cfg.Log.Debugf("gps unwatch failed: %v", err)
	}
}
