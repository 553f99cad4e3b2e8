package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Roles a change-feed client plays on its exchange.
const (
	RolePublish   = "publish"
	RoleSubscribe = "subscribe"
)

// MQMetrics contains Prometheus metrics for the RabbitMQ client carrying change events.
// Every series is labelled with the exchange; the default exchange of a plain queue client
// reports as "".
type MQMetrics struct {
	Operations       *prometheus.CounterVec
	Failures         *prometheus.CounterVec
	PublishDuration  *prometheus.HistogramVec
	ConnectAttempts  *prometheus.CounterVec
	ConnectionStatus *prometheus.GaugeVec
}

// NewMQMetrics creates and registers change-feed broker metrics.
func NewMQMetrics(namespace string) *MQMetrics {
	m := &MQMetrics{
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "mq",
				Name:      "operations_total",
				Help:      "Successful broker operations per exchange: confirmed change events (publish) and queue bindings opened for consumption (subscribe)",
			},
			[]string{"exchange", "role"},
		),
		Failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "mq",
				Name:      "failures_total",
				Help:      "Failed broker operations per exchange and role",
			},
			[]string{"exchange", "role", "reason"},
		),
		PublishDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "mq",
				Name:      "publish_duration_seconds",
				Help:      "Time from publishing a change event to the broker confirmation, retries included",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"exchange"},
		),
		ConnectAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "mq",
				Name:      "connect_attempts_total",
				Help:      "Total number of broker connection attempts, reconnects included",
			},
			[]string{"exchange"},
		),
		ConnectionStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "mq",
				Name:      "connection_status",
				Help:      "Broker connection status per exchange (1=connected, 0=disconnected)",
			},
			[]string{"exchange"},
		),
	}

	MustRegister(
		m.Operations,
		m.Failures,
		m.PublishDuration,
		m.ConnectAttempts,
		m.ConnectionStatus,
	)

	return m
}
