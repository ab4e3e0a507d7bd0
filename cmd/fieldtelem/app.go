package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"

	"fieldtelem/internal/config"
	"fieldtelem/internal/gps"
	"fieldtelem/internal/lineio"
	"fieldtelem/internal/metrics"
	"fieldtelem/internal/netconn"
	"fieldtelem/internal/relay"
)

type sessionOpener func(ctx context.Context, addr string, timeout time.Duration) (gps.Session, error)

func openGPSD(ctx context.Context, addr string, timeout time.Duration) (gps.Session, error) {
	s, err := gps.DialGPSD(ctx, addr, timeout)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// app owns the collector connection and, in monitor mode, the gpsd session
// for one run.
type app struct {
	cfg  config.Config
	host string
	log  logrus.FieldLogger

	stdin  io.Reader
	stdout io.Writer

	metrics     *metrics.Metrics
	connector   *netconn.Connector
	openSession sessionOpener
}

func newApp(cfg config.Config, host string, log logrus.FieldLogger) *app {
	m := metrics.New()
	c := netconn.NewConnector(cfg.Relay.DialTimeout)
	c.OnAttempt = func(cand netconn.Candidate, err error) {
		m.ObserveConnect(err)
		if err != nil {
			log.Debugf("connect attempt failed candidate=%s: %v", cand, err)
		}
	}
	return &app{
		cfg:         cfg,
		host:        host,
		log:         log,
		stdin:       os.Stdin,
		stdout:      os.Stdout,
		metrics:     m,
		connector:   c,
		openSession: openGPSD,
	}
}

// run returns nil on a normal end of input or cancellation. Every exit path
// closes the gpsd session before the collector connection.
func (a *app) run(ctx context.Context) error {
	if a.cfg.Metrics.Listen != "" {
		srv, err := metrics.Listen(a.cfg.Metrics.Listen, a.metrics)
		if err != nil {
			return errors.Annotate(err, "start metrics listener")
		}
		defer srv.Close()
		a.log.Infof("metrics listening addr=%s", srv.Addr())
	}

	conn, cand, err := a.connector.Dial(ctx, a.host, a.cfg.Relay.Port)
	if err != nil {
		return errors.Annotatef(err, "connect to %s", a.host)
	}
	sender := relay.NewSender(conn, a.metrics)
	defer func() {
		if err := sender.Close(); err != nil {
			a.log.Debugf("collector close failed: %v", err)
		}
	}()
	a.log.Infof("connected collector=%s mode=%s", cand, a.cfg.Mode)

	switch a.cfg.Mode {
	case "monitor":
		return a.runMonitor(ctx)
	default:
		return a.runRelay(ctx, sender)
	}
}

func (a *app) runRelay(ctx context.Context, sender *relay.Sender) error {
	reader := lineio.NewReader(a.stdin, a.cfg.Relay.LineBufferBytes)
	prompt := a.wantPrompt()

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if prompt {
			_, _ = io.WriteString(a.stdout, ">> ")
		}
		line, ok, err := reader.ReadLine()
		if err != nil {
			return errors.Annotate(err, "read input")
		}
		if !ok {
			a.log.Info("input closed, stopping relay")
			return nil
		}
		if err := sender.Send([]byte(line)); err != nil {
			return errors.Annotate(err, "send line")
		}
	}
}

func (a *app) wantPrompt() bool {
	switch a.cfg.Relay.Prompt {
	case "always":
		return true
	case "never":
		return false
	}
	f, ok := a.stdin.(*os.File)
	return ok && lineio.IsTerminal(f)
}

func (a *app) runMonitor(ctx context.Context) error {
	sess, err := a.openSession(ctx, a.cfg.GPS.GPSDAddr, a.cfg.GPS.DialTimeout)
	if err != nil {
		a.log.Errorf("gpsd unavailable: %s", gps.ErrorString(err))
		return errors.Annotate(err, "open gpsd session")
	}
	defer func() {
		if err := sess.Close(); err != nil {
			a.log.Debugf("gpsd close failed: %v", err)
		}
	}()

	policy, err := gps.ParsePolicy(a.cfg.GPS.TimeoutPolicy)
	if err != nil {
		return err
	}
	poller, err := gps.NewPoller(sess, gps.PollerConfig{
		Timeout: a.cfg.GPS.PollTimeout,
		Policy:  policy,
		Log:     a.log,
		Metrics: a.metrics,
	})
	if err != nil {
		return err
	}
	a.log.Infof("gps monitor started addr=%s timeout=%s policy=%s", a.cfg.GPS.GPSDAddr, a.cfg.GPS.PollTimeout, policy)

	err = poller.Run(ctx, gps.ReporterFuncs{
		OnFix: func(f gps.Fix) {
			_, _ = fmt.Fprintf(a.stdout, "%f %f\n", f.Lat, f.Lon)
		},
		OnProgress: func() {
			_, _ = io.WriteString(a.stdout, ".")
		},
	})
	st := poller.Stats()
	a.log.Infof("gps monitor stopped fixes=%d skipped=%d resubscribes=%d", st.Fixes, st.InvalidFixes, st.Resubscribes)

	if stderrors.Is(err, context.Canceled) {
		return nil
	}
	a.log.Errorf("gpsd poll failed: %s", gps.ErrorString(err))
	return errors.Annotate(err, "poll gpsd")
}
