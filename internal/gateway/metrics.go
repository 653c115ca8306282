package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the gateway's Prometheus collectors.
type Metrics struct {
	Decisions          *prometheus.CounterVec
	ValidationFailures *prometheus.CounterVec
	Duration           prometheus.Histogram
}

// NewMetrics creates and registers the gateway collectors. A nil
// registerer uses the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cliniccore_gateway_decisions_total",
			Help: "Access decisions by outcome and redirect reason.",
		}, []string{"outcome", "reason"}),
		ValidationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cliniccore_gateway_validation_failures_total",
			Help: "Session validation failures by cause.",
		}, []string{"cause"}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cliniccore_gateway_duration_seconds",
			Help:    "Time spent in the gateway before the request proceeds or redirects.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(m.Decisions, m.ValidationFailures, m.Duration)
	return m
}

// ObserveDecision records one evaluated decision.
func (m *Metrics) ObserveDecision(d AccessDecision) {
	if m == nil {
		return
	}
	if d.Allowed {
		m.Decisions.WithLabelValues("allow", "").Inc()
		return
	}
	m.Decisions.WithLabelValues("redirect", string(d.Reason)).Inc()
}

// ObserveValidationFailure records a swallowed validation failure.
func (m *Metrics) ObserveValidationFailure(cause string) {
	if m == nil {
		return
	}
	m.ValidationFailures.WithLabelValues(cause).Inc()
}
