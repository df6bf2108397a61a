package metrics

import "github.com/prometheus/client_golang/prometheus"

// DispatchMetrics exposes counters/histograms for task dispatch flows.
type DispatchMetrics struct {
	dispatchTotal   *prometheus.CounterVec
	dispatchLatency *prometheus.HistogramVec
	slotChecksTotal *prometheus.CounterVec
}

func NewDispatchMetrics(reg prometheus.Registerer) *DispatchMetrics {
	m := &DispatchMetrics{
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promedia",
			Subsystem: "dispatch",
			Name:      "tasks_total",
			Help:      "Total dispatched tasks",
		}, []string{"function", "outcome"}),
		dispatchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "promedia",
			Subsystem: "dispatch",
			Name:      "latency_seconds",
			Help:      "Latency of a full task dispatch",
			Buckets:   prometheus.DefBuckets,
		}, []string{"function"}),
		slotChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promedia",
			Subsystem: "agenda",
			Name:      "slot_checks_total",
			Help:      "Total availability slot checks",
		}, []string{"available", "reason"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.dispatchTotal, m.dispatchLatency, m.slotChecksTotal)
	return m
}

func (m *DispatchMetrics) ObserveDispatch(function, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(function, outcome).Inc()
	m.dispatchLatency.WithLabelValues(function).Observe(seconds)
}

func (m *DispatchMetrics) ObserveSlotCheck(available bool, reason string) {
	if m == nil {
		return
	}
	label := "false"
	if available {
		label = "true"
	}
	m.slotChecksTotal.WithLabelValues(label, reason).Inc()
}
