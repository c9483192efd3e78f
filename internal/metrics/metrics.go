// Package metrics exposes the gateway's circuit breakers and request
// outcomes to Prometheus. The breaker gauge is a custom
// prometheus.Collector that reads live state on every scrape rather than
// pushing updates, the same pull-based shape as the autobreaker package's
// own CircuitBreakerCollector example; request counters use the standard
// CounterVec/HistogramVec style from github.com/prometheus/client_golang.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lynn4am/transparent-gateway/internal/breaker"
)

// Metrics bundles every collector the gateway registers.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	probesTotal     *prometheus.CounterVec
	breakerTrips    *prometheus.CounterVec
}

// New constructs and registers every gateway metric plus a live breaker
// collector against reg.
func New(reg prometheus.Registerer, registry *breaker.Registry) *Metrics {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total proxied requests by provider and outcome.",
		}, []string{"provider", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "End-to-end request duration by outcome.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		probesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_probe_attempts_total",
			Help: "Probabilistic probes sent to an open-breaker provider, by result.",
		}, []string{"provider", "result"}),
		breakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_circuit_breaker_trips_total",
			Help: "Times a provider's circuit breaker has opened.",
		}, []string{"provider"}),
	}

	reg.MustRegister(m.requestsTotal, m.requestDuration, m.probesTotal, m.breakerTrips)
	reg.MustRegister(newBreakerCollector(registry))
	return m
}

// ObserveRequest records one proxied request's terminal outcome.
func (m *Metrics) ObserveRequest(provider, outcome string, d time.Duration) {
	m.requestsTotal.WithLabelValues(provider, outcome).Inc()
	m.requestDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveProbe records a probabilistic probe's result ("success" or
// "failure") against an open breaker.
func (m *Metrics) ObserveProbe(provider, result string) {
	m.probesTotal.WithLabelValues(provider, result).Inc()
}

// ObserveTrip records a provider's breaker opening.
func (m *Metrics) ObserveTrip(provider string) {
	m.breakerTrips.WithLabelValues(provider).Inc()
}

// breakerCollector exports the live state of every breaker the registry
// has created, read fresh on each scrape rather than cached, so a
// Prometheus poll never reports a stale open/closed flag.
type breakerCollector struct {
	registry   *breaker.Registry
	stateDesc  *prometheus.Desc
	failDesc   *prometheus.Desc
	remainDesc *prometheus.Desc
}

func newBreakerCollector(registry *breaker.Registry) *breakerCollector {
	return &breakerCollector{
		registry: registry,
		stateDesc: prometheus.NewDesc(
			"gateway_circuit_breaker_open",
			"1 if the provider's circuit breaker is currently open, else 0.",
			[]string{"provider"}, nil,
		),
		failDesc: prometheus.NewDesc(
			"gateway_circuit_breaker_failure_count",
			"Current consecutive failure count for the provider's breaker.",
			[]string{"provider"}, nil,
		),
		remainDesc: prometheus.NewDesc(
			"gateway_circuit_breaker_remaining_seconds",
			"Seconds remaining before the provider's open breaker auto-resets.",
			[]string{"provider"}, nil,
		),
	}
}

func (c *breakerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.stateDesc
	ch <- c.failDesc
	ch <- c.remainDesc
}

func (c *breakerCollector) Collect(ch chan<- prometheus.Metric) {
	for name, status := range c.registry.Status() {
		open := 0.0
		if status.IsOpen {
			open = 1.0
		}
		ch <- prometheus.MustNewConstMetric(c.stateDesc, prometheus.GaugeValue, open, name)
		ch <- prometheus.MustNewConstMetric(c.failDesc, prometheus.GaugeValue, float64(status.FailureCount), name)
		ch <- prometheus.MustNewConstMetric(c.remainDesc, prometheus.GaugeValue, status.RemainingTime.Seconds(), name)
	}
}
