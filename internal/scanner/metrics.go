package scanner

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects scan duration and yield counters (collection only —
// exposing them over HTTP is transport, left to the embedding binary).
type Metrics struct {
	duration prometheus.Histogram
	kept     prometheus.Counter
	dropped  prometheus.Counter
}

// NewMetrics registers the scanner's collectors against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scanner_scan_duration_seconds",
			Help:    "Wall-clock duration of one Scan pass.",
			Buckets: prometheus.DefBuckets,
		}),
		kept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanner_opportunities_kept_total",
			Help: "Opportunities surviving validation and quality filtering.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanner_opportunities_dropped_total",
			Help: "Opportunities dropped by validation or quality filtering.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.duration, m.kept, m.dropped)
	}
	return m
}

func (m *Metrics) observeScanDuration(seconds float64) {
	if m == nil {
		return
	}
	m.duration.Observe(seconds)
}

func (m *Metrics) recordKept(n int) {
	if m == nil {
		return
	}
	m.kept.Add(float64(n))
}

func (m *Metrics) recordDropped(n int) {
	if m == nil {
		return
	}
	m.dropped.Add(float64(n))
}
