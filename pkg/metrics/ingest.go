package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// IngestMetrics contains Prometheus metrics for reading ingestion.
type IngestMetrics struct {
	ReadingsTotal       *prometheus.CounterVec
	IngestDuration      *prometheus.HistogramVec
	ValidationFailures  *prometheus.CounterVec
	EstimatedBP         prometheus.Counter
	DBOperationsTotal   *prometheus.CounterVec
	DBOperationDuration *prometheus.HistogramVec
}

// NewIngestMetrics creates and registers ingestion metrics.
func NewIngestMetrics(namespace string) *IngestMetrics {
	m := &IngestMetrics{
		ReadingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "readings_total",
				Help:      "Total number of readings received",
			},
			[]string{"source", "outcome"}, // source: http, mqtt; outcome: stored, rejected, failed
		),
		IngestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "duration_seconds",
				Help:      "Duration of reading ingestion",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"source"},
		),
		ValidationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "validation_failures_total",
				Help:      "Total number of rejected readings by field",
			},
			[]string{"field"},
		),
		EstimatedBP: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "estimated_blood_pressure_total",
				Help:      "Total number of readings whose blood pressure was estimated",
			},
		),
		DBOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "db",
				Name:      "operations_total",
				Help:      "Total number of database operations",
			},
			[]string{"operation", "status"},
		),
		DBOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "db",
				Name:      "operation_duration_seconds",
				Help:      "Duration of database operations",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}

	MustRegister(
		m.ReadingsTotal,
		m.IngestDuration,
		m.ValidationFailures,
		m.EstimatedBP,
		m.DBOperationsTotal,
		m.DBOperationDuration,
	)

	return m
}
