package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SimulatorMetrics contains Prometheus metrics for the wristband simulator.
type SimulatorMetrics struct {
	ReadingsSent  *prometheus.CounterVec
	SendDuration  *prometheus.HistogramVec
	ActiveDevices prometheus.Gauge
}

// NewSimulatorMetrics creates and registers simulator metrics.
func NewSimulatorMetrics(namespace string) *SimulatorMetrics {
	m := &SimulatorMetrics{
		ReadingsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "readings_sent_total",
				Help:      "Total number of simulated readings sent",
			},
			[]string{"transport", "status"},
		),
		SendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "send_duration_seconds",
				Help:      "Duration of simulated reading deliveries",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"transport"},
		),
		ActiveDevices: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "active_devices",
				Help:      "Number of simulated wristbands currently running",
			},
		),
	}

	MustRegister(m.ReadingsSent, m.SendDuration, m.ActiveDevices)

	return m
}
