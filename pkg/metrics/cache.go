package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CacheMetrics contains Prometheus metrics for the latest-reading cache.
type CacheMetrics struct {
	Operations *prometheus.CounterVec
}

// NewCacheMetrics creates and registers cache metrics.
func NewCacheMetrics(namespace string) *CacheMetrics {
	m := &CacheMetrics{
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "operations_total",
				Help:      "Total number of cache operations",
			},
			[]string{"operation", "status"},
		),
	}

	MustRegister(m.Operations)

	return m
}
