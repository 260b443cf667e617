package strategy

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects execution counters and duration histograms for the
// strategy engine (collection only — exposing them over HTTP is
// transport, handled by the binary embedding this engine, not by this
// package).
type Metrics struct {
	executions *prometheus.CounterVec
	duration   prometheus.Histogram
}

// NewMetrics registers the strategy engine's collectors against reg. Pass
// a dedicated *prometheus.Registry (not the global DefaultRegisterer) so
// tests can construct independent Metrics instances without collisions.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strategy_executions_total",
			Help: "Strategy executions by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "strategy_execute_pass_duration_seconds",
			Help:    "Wall-clock duration of one ExecuteDueStrategies pass.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.executions, m.duration)
	}
	return m
}

func (m *Metrics) recordExecution(success bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.executions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observePassDuration(seconds float64) {
	if m == nil {
		return
	}
	m.duration.Observe(seconds)
}
