package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fieldtelem"

// Metrics holds the client's counters. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	reg *prometheus.Registry

	RelayLines      prometheus.Counter
	RelayBytes      prometheus.Counter
	ConnectAttempts *prometheus.CounterVec

	Fixes        prometheus.Counter
	Progress     prometheus.Counter
	InvalidFixes prometheus.Counter
	Resubscribes prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		RelayLines: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "relay", Name: "lines_total",
			Help: "Lines relayed to the collector",
		}),
		RelayBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "relay", Name: "bytes_total",
			Help: "Bytes written to the collector, terminators included",
		}),
		ConnectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "connect_attempts_total",
			Help: "Connection attempts per candidate address",
		}, []string{"result"}),
		Fixes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "gps", Name: "fixes_total",
			Help: "Fixes with finite coordinates handed to the reporter",
		}),
		Progress: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "gps", Name: "progress_total",
			Help: "Reports that carried no new fix",
		}),
		InvalidFixes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "gps", Name: "invalid_fixes_total",
			Help: "Reports skipped for missing coordinates or malformed payloads",
		}),
		Resubscribes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "gps", Name: "resubscribes_total",
			Help: "Watch re-enables after a poll timeout",
		}),
	}
	m.reg.MustRegister(
		m.RelayLines, m.RelayBytes, m.ConnectAttempts,
		m.Fixes, m.Progress, m.InvalidFixes, m.Resubscribes,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) ObserveRelay(n int) {
	if m == nil {
		return
	}
	m.RelayLines.Inc()
	m.RelayBytes.Add(float64(n))
}

func (m *Metrics) ObserveConnect(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ConnectAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) IncFix() {
	if m != nil {
		m.Fixes.Inc()
	}
}

func (m *Metrics) IncProgress() {
	if m != nil {
		m.Progress.Inc()
	}
}

func (m *Metrics) IncInvalidFix() {
	if m != nil {
		m.InvalidFixes.Inc()
	}
}

func (m *Metrics) IncResubscribe() {
	if m != nil {
		m.Resubscribes.Inc()
	}
}

// Server exposes the registry on /metrics.
type Server struct {
	ln  net.Listener
	srv *http.Server
}

// Listen binds addr and starts serving in the background.
func Listen(addr string, m *Metrics) (*Server, error) {
	if m == nil {
		return nil, fmt.Errorf("metrics is nil")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("metrics listen addr is required")
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	s := &Server{ln: ln, srv: &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}}
	go func() {
		_ = s.srv.Serve(ln)
	}()
	return s, nil
}

func (s *Server) Addr() string {
	if s == nil || s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Server) Close() error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.srv.Shutdown(ctx)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
