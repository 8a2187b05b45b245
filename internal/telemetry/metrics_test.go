package telemetry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := New()

	m.RecordRequest(http.MethodPost, "/v1/sessions/{id}/prediction", "200", 120*time.Millisecond)
	m.RecordRequest(http.MethodPost, "/v1/sessions/{id}/prediction", "200", 80*time.Millisecond)
	m.RecordCall("predict", "ok", time.Second)
	m.RecordCall("predict", "network", 2*time.Second)
	m.RecordBreakerState("predict", 2)
	m.RecordTransition("idle", "prediction_pending")
	m.RecordStaleDrop("weather")
	m.SetActiveSessions(3)
	m.SessionEvicted()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequests.WithLabelValues(http.MethodPost, "/v1/sessions/{id}/prediction", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.backendCalls.WithLabelValues("predict", "network")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.breakerState.WithLabelValues("predict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("idle", "prediction_pending")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.staleDrops.WithLabelValues("weather")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.sessionsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsEvicted))
	assert.Equal(t, 2, testutil.CollectAndCount(m.backendCalls))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest(http.MethodGet, "/health", "200", time.Millisecond)
		m.RecordCall("weather", "ok", time.Millisecond)
		m.RecordBreakerState("weather", 0)
		m.RecordTransition("idle", "weather_pending")
		m.RecordStaleDrop("export")
		m.SetActiveSessions(1)
		m.SessionEvicted()
	})
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	// Each instance owns its registry, so building two must not panic on
	// duplicate registration.
	a, b := New(), New()
	a.RecordStaleDrop("prediction")
	assert.Equal(t, 0.0, testutil.ToFloat64(b.staleDrops.WithLabelValues("prediction")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.RecordCall("report", "server_rejected", 300*time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	text := string(body)
	assert.True(t, strings.Contains(text, `krushak_backend_calls_total{outcome="server_rejected",service="report"} 1`), text)
	assert.Contains(t, text, "go_goroutines")
}
