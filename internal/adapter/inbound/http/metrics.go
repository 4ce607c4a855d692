// Package http provides the HTTP transport adapter for the content API.
package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for Celestine.
// Pass to components that need to record metrics.
type Metrics struct {
	RequestsTotal       *prometheus.CounterVec
	RequestDuration     *prometheus.HistogramVec
	ContentServed       *prometheus.CounterVec
	GenerationFailures  *prometheus.CounterVec
	RateLimitRejections *prometheus.CounterVec
	CacheEntries        prometheus.GaugeFunc
	RateLimitWindows    prometheus.GaugeFunc
}

// NewMetrics creates and registers all metrics with the given registry.
// cacheSize and windowCount feed the live gauges; either may be nil.
func NewMetrics(reg prometheus.Registerer, cacheSize, windowCount func() int) *Metrics {
	gaugeValue := func(f func() int) func() float64 {
		return func() float64 {
			if f == nil {
				return 0
			}
			return float64(f())
		}
	}

	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "celestine",
				Name:      "requests_total",
				Help:      "Total number of API requests processed",
			},
			[]string{"method", "status"}, // status=ok/error
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "celestine",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		ContentServed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "celestine",
				Name:      "content_served_total",
				Help:      "Content responses by type and source",
			},
			[]string{"type", "source"}, // source=cache/generated/stale
		),
		GenerationFailures: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "celestine",
				Name:      "generation_failures_total",
				Help:      "Failed generations by reason",
			},
			[]string{"reason"}, // reason=timeout/upstream/rate_limited
		),
		RateLimitRejections: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "celestine",
				Name:      "rate_limit_rejections_total",
				Help:      "Requests rejected by a rate-limit window",
			},
			[]string{"class"}, // class=general/generation
		),
		CacheEntries: promauto.With(reg).NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: "celestine",
				Name:      "cache_entries",
				Help:      "Number of resident content cache entries",
			},
			gaugeValue(cacheSize),
		),
		RateLimitWindows: promauto.With(reg).NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: "celestine",
				Name:      "rate_limit_windows",
				Help:      "Number of active rate limit windows",
			},
			gaugeValue(windowCount),
		),
	}
}
