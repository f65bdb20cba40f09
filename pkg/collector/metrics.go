package collector

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collector's prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	entries  *prometheus.CounterVec
	rejected *prometheus.CounterVec
	pruned   prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clientlog_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "clientlog_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		entries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clientlog_entries_ingested_total",
				Help: "Log entries accepted, by level",
			},
			[]string{"level"},
		),
		rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clientlog_requests_rejected_total",
				Help: "Ingest requests rejected, by reason",
			},
			[]string{"reason"},
		),
		pruned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "clientlog_entries_pruned_total",
				Help: "Log entries removed by the retention sweep",
			},
		),
	}

	m.registry.MustRegister(
		m.requests,
		m.duration,
		m.entries,
		m.rejected,
		m.pruned,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
