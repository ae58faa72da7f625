package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the decision API.
// Pass to components that need to record metrics.
type Metrics struct {
	RequestsTotal         *prometheus.CounterVec
	AuthorizationsTotal   *prometheus.CounterVec
	AuthorizationDuration prometheus.Histogram
	DerivedFacts          prometheus.Histogram
	AuditDropsTotal       prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tokenwarden",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"path", "status"},
		),
		AuthorizationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tokenwarden",
				Name:      "authorizations_total",
				Help:      "Total authorizations by outcome",
			},
			[]string{"outcome"},
		),
		AuthorizationDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "tokenwarden",
				Name:      "authorization_duration_seconds",
				Help:      "Authorization duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		DerivedFacts: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "tokenwarden",
				Name:      "derived_facts",
				Help:      "Facts derived per authorization",
				Buckets:   []float64{1, 10, 50, 100, 500, 1000, 5000},
			},
		),
		AuditDropsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "tokenwarden",
				Name:      "audit_drops_total",
				Help:      "Total decision records dropped due to backpressure",
			},
		),
	}
}
