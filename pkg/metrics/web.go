package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// WebMetrics contains Prometheus metrics for the web portals.
type WebMetrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight *prometheus.GaugeVec
	TemplateRenderTime   *prometheus.HistogramVec
	TemplateRenderErrors *prometheus.CounterVec
	QueryTimeouts        *prometheus.CounterVec
	AuthFailures         *prometheus.CounterVec
	LiveStreams          prometheus.Gauge
	Exports              *prometheus.CounterVec
	LiveRefreshes        *prometheus.CounterVec
	CacheFallbacks       prometheus.Counter
}

// NewWebMetrics creates and registers web metrics.
func NewWebMetrics(namespace string) *WebMetrics {
	m := &WebMetrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Number of HTTP requests currently being processed",
			},
			[]string{"method", "path"},
		),
		TemplateRenderTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "template",
				Name:      "render_duration_seconds",
				Help:      "Duration of template rendering",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"template"},
		),
		TemplateRenderErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "template",
				Name:      "render_errors_total",
				Help:      "Total number of template rendering errors",
			},
			[]string{"template"},
		),
		QueryTimeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "web",
				Name:      "query_timeouts_total",
				Help:      "Total number of view queries that hit their deadline",
			},
			[]string{"view"},
		),
		AuthFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "web",
				Name:      "auth_failures_total",
				Help:      "Total number of failed sign-ins",
			},
			[]string{"role"},
		),
		LiveStreams: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "web",
				Name:      "live_streams",
				Help:      "Number of open server-sent event streams",
			},
		),
		Exports: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "web",
				Name:      "exports_total",
				Help:      "Total number of analytics exports",
			},
			[]string{"format"},
		),
		LiveRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "web",
				Name:      "live_refreshes_total",
				Help:      "Total number of live fragments pushed to event streams",
			},
			[]string{"status"},
		),
		CacheFallbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "web",
				Name:      "cache_fallbacks_total",
				Help:      "Total number of volunteer views built from the database alone because the cache was unavailable",
			},
		),
	}

	MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.TemplateRenderTime,
		m.TemplateRenderErrors,
		m.QueryTimeouts,
		m.AuthFailures,
		m.LiveStreams,
		m.Exports,
		m.LiveRefreshes,
		m.CacheFallbacks,
	)

	return m
}
