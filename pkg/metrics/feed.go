package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// FeedMetrics contains Prometheus metrics for the change feed.
type FeedMetrics struct {
	Subscribers     prometheus.Gauge
	EventsPublished *prometheus.CounterVec
	EventsReceived  prometheus.Counter
}

// NewFeedMetrics creates and registers change feed metrics.
func NewFeedMetrics(namespace string) *FeedMetrics {
	m := &FeedMetrics{
		Subscribers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "feed",
				Name:      "subscribers",
				Help:      "Number of active feed subscriptions",
			},
		),
		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "feed",
				Name:      "events_published_total",
				Help:      "Total number of change events published",
			},
			[]string{"publisher", "status"},
		),
		EventsReceived: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "feed",
				Name:      "events_received_total",
				Help:      "Total number of change events received from the broker",
			},
		),
	}

	MustRegister(m.Subscribers, m.EventsPublished, m.EventsReceived)

	return m
}
