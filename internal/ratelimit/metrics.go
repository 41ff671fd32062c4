package ratelimit

import "github.com/prometheus/client_golang/prometheus"

const (
	metricsLabelBackend = "backend"
	metricsLabelOutcome = "outcome"
)

const (
	metricsValAllowed  = "allowed"
	metricsValRejected = "rejected"
)

// MetricsCollector exposes admission decisions, durable fallbacks and sweep evictions.
// A nil *MetricsCollector is valid and records nothing.
type MetricsCollector struct {
	Decisions          *prometheus.CounterVec
	Fallbacks          prometheus.Counter
	SweepEvictions     prometheus.Counter
	TrackedIdentifiers prometheus.Gauge
}

// NewMetricsCollector creates a new instance of MetricsCollector.
func NewMetricsCollector(namespace string) *MetricsCollector {
	return &MetricsCollector{
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "decisions_total",
			Help:      "Number of admission decisions by backend and outcome.",
		}, []string{metricsLabelBackend, metricsLabelOutcome}),
		Fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "durable_fallbacks_total",
			Help:      "Number of checks served by the in-memory backend because the durable backend was unavailable.",
		}),
		SweepEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "sweep_evictions_total",
			Help:      "Number of expired in-memory records removed by the sweeper.",
		}),
		TrackedIdentifiers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "tracked_identifiers",
			Help:      "Number of identifiers held by the in-memory backend after the last sweep.",
		}),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (mc *MetricsCollector) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		mc.Decisions,
		mc.Fallbacks,
		mc.SweepEvictions,
		mc.TrackedIdentifiers,
	)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (mc *MetricsCollector) Unregister(reg prometheus.Registerer) {
	reg.Unregister(mc.Decisions)
	reg.Unregister(mc.Fallbacks)
	reg.Unregister(mc.SweepEvictions)
	reg.Unregister(mc.TrackedIdentifiers)
}

func (mc *MetricsCollector) observeDecision(backend string, res Result) {
	if mc == nil {
		return
	}
	outcome := metricsValAllowed
	if !res.Allowed {
		outcome = metricsValRejected
	}
	mc.Decisions.With(prometheus.Labels{metricsLabelBackend: backend, metricsLabelOutcome: outcome}).Inc()
}

func (mc *MetricsCollector) observeFallback() {
	if mc == nil {
		return
	}
	mc.Fallbacks.Inc()
}

func (mc *MetricsCollector) observeSweep(removed, remaining int) {
	if mc == nil {
		return
	}
	mc.SweepEvictions.Add(float64(removed))
	mc.TrackedIdentifiers.Set(float64(remaining))
}
