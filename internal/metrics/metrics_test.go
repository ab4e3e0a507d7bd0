package metrics

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRelay(10)
	m.ObserveConnect(nil)
	m.IncFix()
	m.IncProgress()
	m.IncInvalidFix()
	m.IncResubscribe()
	require.Nil(t, m.Registry())
}

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.ObserveRelay(6)
	m.ObserveRelay(1)
	m.ObserveConnect(errors.New("refused"))
	m.ObserveConnect(nil)
	m.IncFix()
	m.IncResubscribe()
	m.IncResubscribe()

	require.Equal(t, 2.0, counterValue(t, m.RelayLines))
	require.Equal(t, 7.0, counterValue(t, m.RelayBytes))
	require.Equal(t, 1.0, counterValue(t, m.ConnectAttempts.WithLabelValues("error")))
	require.Equal(t, 1.0, counterValue(t, m.ConnectAttempts.WithLabelValues("ok")))
	require.Equal(t, 1.0, counterValue(t, m.Fixes))
	require.Equal(t, 2.0, counterValue(t, m.Resubscribes))
}

func TestListen_ServesMetrics(t *testing.T) {
	m := New()
	m.IncFix()

	s, err := Listen("127.0.0.1:0", m)
	require.NoError(t, err)
	defer s.Close()

	resp, err := http.Get("http://" + s.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(body), "fieldtelem_gps_fixes_total 1"), "body=%s", body)
}

func TestListen_Validation(t *testing.T) {
	_, err := Listen("127.0.0.1:0", nil)
	require.EqualError(t, err, "metrics is nil")

	_, err = Listen(" ", New())
	require.EqualError(t, err, "metrics listen addr is required")
}
