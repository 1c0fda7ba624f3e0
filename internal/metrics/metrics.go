// Package metrics exposes the Prometheus collectors used by the server.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups server collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	upstreamAttempts *prometheus.CounterVec
	upstreamFailures *prometheus.CounterVec
	httpRequests     *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		upstreamAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "difychat",
			Name:      "upstream_attempts_total",
			Help:      "Outbound upstream call attempts by call and outcome.",
		}, []string{"call", "outcome"}),
		upstreamFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "difychat",
			Name:      "upstream_exhausted_total",
			Help:      "Upstream calls that failed after all retries.",
		}, []string{"call"}),
		httpRequests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "difychat",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method, route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(m.upstreamAttempts, m.upstreamFailures, m.httpRequests)
	return m
}

// ObserveAttempt counts one upstream attempt. outcome is "success", "status"
// or "transport".
func (m *Metrics) ObserveAttempt(call, outcome string) {
	if m == nil {
		return
	}
	m.upstreamAttempts.WithLabelValues(call, outcome).Inc()
}

// ObserveExhausted counts an upstream call that gave up.
func (m *Metrics) ObserveExhausted(call string) {
	if m == nil {
		return
	}
	m.upstreamFailures.WithLabelValues(call).Inc()
}

// ObserveHTTP records a served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}
