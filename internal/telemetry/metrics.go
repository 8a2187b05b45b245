// Package telemetry exposes Prometheus metrics for the krushakd facade, the
// backend clients and the workflow controllers.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "krushak"

// Metrics implements core.MetricsCollector, external.CallRecorder,
// external.BreakerRecorder and workflow.Recorder. A nil *Metrics records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	backendCalls    *prometheus.CounterVec
	backendDuration *prometheus.HistogramVec
	breakerState    *prometheus.GaugeVec
	transitions     *prometheus.CounterVec
	staleDrops      *prometheus.CounterVec
	sessionsActive  prometheus.Gauge
	sessionsEvicted prometheus.Counter
}

// New creates a Metrics backed by its own registry, so several instances can
// coexist in tests. Go runtime and process collectors are included.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests handled by the facade, by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Latency of facade HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		backendCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_calls_total",
			Help:      "Calls to the Krushak backend, by service and outcome.",
		}, []string{"service", "outcome"}),
		backendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_call_duration_seconds",
			Help:      "Latency of backend calls.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"service"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open).",
		}, []string{"service"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_transitions_total",
			Help:      "Workflow state transitions.",
		}, []string{"from", "to"}),
		staleDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_stale_responses_total",
			Help:      "Responses discarded because a newer call of the same kind was issued.",
		}, []string{"kind"}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Workflow sessions currently held by the facade.",
		}),
		sessionsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_evicted_total",
			Help:      "Sessions evicted from the store to make room for new ones.",
		}),
	}
	m.registry = reg

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.backendCalls,
		m.backendDuration,
		m.breakerState,
		m.transitions,
		m.staleDrops,
		m.sessionsActive,
		m.sessionsEvicted,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRequest implements core.MetricsCollector.
func (m *Metrics) RecordRequest(method, route, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordCall implements external.CallRecorder.
func (m *Metrics) RecordCall(service, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.backendCalls.WithLabelValues(service, outcome).Inc()
	m.backendDuration.WithLabelValues(service).Observe(duration.Seconds())
}

// RecordBreakerState implements external.BreakerRecorder.
func (m *Metrics) RecordBreakerState(service string, state int) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(service).Set(float64(state))
}

// RecordTransition implements workflow.Recorder.
func (m *Metrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// RecordStaleDrop implements workflow.Recorder.
func (m *Metrics) RecordStaleDrop(kind string) {
	if m == nil {
		return
	}
	m.staleDrops.WithLabelValues(kind).Inc()
}

// SetActiveSessions reports the number of sessions in the store.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.sessionsActive.Set(float64(n))
}

// SessionEvicted counts one evicted session.
func (m *Metrics) SessionEvicted() {
	if m == nil {
		return
	}
	m.sessionsEvicted.Inc()
}
