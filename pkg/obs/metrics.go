// Package obs provides the ambient observability stack: Prometheus
// metrics and OpenTelemetry tracing, plus the HTTP middleware that
// wires both into every request.
package obs

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments for the query pipeline's
// HTTP surface and its per-stage external calls.
type Metrics struct {
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	stageCalls    *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	stageErrors   *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics registers the query-pipeline instrument set against a
// fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ragcore_http_requests_total",
			Help: "Total HTTP requests, by method, route pattern, and status class.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ragcore_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		stageCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ragcore_stage_calls_total",
			Help: "Total query-pipeline stage invocations, by stage name.",
		}, []string{"stage"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ragcore_stage_duration_seconds",
			Help:    "Query-pipeline stage duration in seconds, by stage name.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		stageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ragcore_stage_errors_total",
			Help: "Total query-pipeline stage failures, by stage name and error kind.",
		}, []string{"stage", "kind"}),
	}

	reg.MustRegister(m.httpRequests, m.httpDuration, m.stageCalls, m.stageDuration, m.stageErrors)
	return m
}

// RecordHTTPRequest records one completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	m.httpRequests.WithLabelValues(method, route, statusClass(statusCode)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordStage records one pipeline-stage invocation (expansion,
// embed, retrieve, consolidate, augment, answer). errKind is empty on
// success.
func (m *Metrics) RecordStage(stage string, duration time.Duration, errKind string) {
	m.stageCalls.WithLabelValues(stage).Inc()
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
	if errKind != "" {
		m.stageErrors.WithLabelValues(stage, errKind).Inc()
	}
}

// Handler serves the Prometheus exposition format for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
