package poll

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports tick and message counts to Prometheus.  A nil
// *Metrics records nothing.
type Metrics struct {
	ticks    *prometheus.CounterVec
	messages *prometheus.CounterVec
	duration prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mailsnip",
			Name:      "ticks_total",
			Help:      "Polling ticks by result (ok, empty, error).",
		}, []string{"result"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mailsnip",
			Name:      "messages_total",
			Help:      "Fetched messages by outcome (written, skipped, failed).",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mailsnip",
			Name:      "tick_duration_seconds",
			Help:      "Wall time of one polling tick.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.ticks, m.messages, m.duration)
	return m
}

func (m *Metrics) observe(r *TickReport) {
	if m == nil {
		return
	}
	result := "ok"
	switch {
	case r.Err != nil:
		result = "error"
	case r.Listed == 0:
		result = "empty"
	}
	m.ticks.WithLabelValues(result).Inc()
	m.messages.WithLabelValues("written").Add(float64(r.Written))
	m.messages.WithLabelValues("skipped").Add(float64(r.Skipped))
	m.messages.WithLabelValues("failed").Add(float64(r.Failed))
	m.duration.Observe(r.Finished.Sub(r.Started).Seconds())
}
