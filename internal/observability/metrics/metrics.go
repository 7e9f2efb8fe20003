package metrics

import "github.com/prometheus/client_golang/prometheus"

// ConsoleMetrics exposes counters/histograms for suggestion resolution flows.
type ConsoleMetrics struct {
	resolutionsTotal  *prometheus.CounterVec
	resolutionLatency *prometheus.HistogramVec
	batchSize         prometheus.Histogram
	feedSeedsTotal    *prometheus.CounterVec
	outboxDelivered   *prometheus.CounterVec
}

func NewConsoleMetrics(reg prometheus.Registerer) *ConsoleMetrics {
	m := &ConsoleMetrics{
		resolutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentconsole",
			Subsystem: "resolution",
			Name:      "resolutions_total",
			Help:      "Total suggestion resolutions by action kind and outcome",
		}, []string{"action_kind", "outcome"}),
		resolutionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentconsole",
			Subsystem: "resolution",
			Name:      "resolution_latency_seconds",
			Help:      "Latency of a single accept or dismiss",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "agentconsole",
			Subsystem: "resolution",
			Name:      "batch_size",
			Help:      "Members per accepted batch group",
			Buckets:   []float64{2, 3, 5, 10, 25, 50},
		}),
		feedSeedsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentconsole",
			Subsystem: "feed",
			Name:      "seeds_total",
			Help:      "Conversations seeded from the upstream feed",
		}, []string{"source", "status"}),
		outboxDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentconsole",
			Subsystem: "events",
			Name:      "outbox_deliveries_total",
			Help:      "Outbox delivery attempts by result",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.resolutionsTotal, m.resolutionLatency, m.batchSize, m.feedSeedsTotal, m.outboxDelivered)
	return m
}

func (m *ConsoleMetrics) ObserveResolution(kind, outcome string) {
	if m == nil {
		return
	}
	m.resolutionsTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *ConsoleMetrics) ObserveLatency(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.resolutionLatency.WithLabelValues(operation).Observe(seconds)
}

func (m *ConsoleMetrics) ObserveBatch(size int) {
	if m == nil {
		return
	}
	m.batchSize.Observe(float64(size))
}

func (m *ConsoleMetrics) ObserveSeed(source, status string) {
	if m == nil {
		return
	}
	m.feedSeedsTotal.WithLabelValues(source, status).Inc()
}

func (m *ConsoleMetrics) ObserveDelivery(status string) {
	if m == nil {
		return
	}
	m.outboxDelivered.WithLabelValues(status).Inc()
}
