package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the portal's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	SubmitsTotal   *prometheus.CounterVec
	SubmitDuration *prometheus.HistogramVec
	ActiveForms    prometheus.Gauge
}

// NewMetrics creates a registry with the portal collectors plus the Go and
// process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SubmitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_form_submits_total",
				Help: "Settled credential submits by form and outcome",
			},
			[]string{"form", "outcome"},
		),
		SubmitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portal_form_submit_duration_seconds",
				Help:    "Latency of credential submits including the auth provider call",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"form"},
		),
		ActiveForms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portal_form_sessions_active",
			Help: "Browser sessions currently holding form state",
		}),
	}

	m.registry.MustRegister(
		m.SubmitsTotal,
		m.SubmitDuration,
		m.ActiveForms,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveSubmit records one settled submit.
func (m *Metrics) ObserveSubmit(form, outcome string, elapsed time.Duration) {
	m.SubmitsTotal.WithLabelValues(form, outcome).Inc()
	m.SubmitDuration.WithLabelValues(form).Observe(elapsed.Seconds())
}

// SetActiveForms reports the number of live form sessions.
func (m *Metrics) SetActiveForms(n int) {
	m.ActiveForms.Set(float64(n))
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
