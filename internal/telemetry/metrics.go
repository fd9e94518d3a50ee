// Package telemetry provides observability primitives for the storefront client.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the client.
type Metrics struct {
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	CacheHits          prometheus.Counter
	CacheMisses        prometheus.Counter
	CacheInvalidations prometheus.Counter
	Refetches          prometheus.Counter
	DedupedFetches     prometheus.Counter
	RefreshAttempts    *prometheus.CounterVec
	Notifications      *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shopfront",
			Name:      "requests_total",
			Help:      "Total number of backend requests by method and status.",
		}, []string{"method", "status"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "shopfront",
			Name:                            "request_duration_seconds",
			Help:                            "Backend request duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"method"}),

		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shopfront",
			Name:      "cache_hits_total",
			Help:      "Subscriptions served from a fresh cache entry.",
		}),

		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shopfront",
			Name:      "cache_misses_total",
			Help:      "Subscriptions that required a network fetch.",
		}),

		CacheInvalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shopfront",
			Name:      "cache_invalidations_total",
			Help:      "Cache entries marked stale by tag invalidation.",
		}),

		Refetches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shopfront",
			Name:      "cache_refetches_total",
			Help:      "Background refetches triggered by staleness or invalidation.",
		}),

		DedupedFetches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shopfront",
			Name:      "cache_deduped_fetches_total",
			Help:      "Fetches coalesced into an already in-flight request.",
		}),

		RefreshAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shopfront",
			Name:      "token_refresh_attempts_total",
			Help:      "Token refresh attempts by outcome.",
		}, []string{"outcome"}),

		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shopfront",
			Name:      "notifications_total",
			Help:      "User-visible failure notifications by category.",
		}, []string{"category"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.CacheHits,
		m.CacheMisses,
		m.CacheInvalidations,
		m.Refetches,
		m.DedupedFetches,
		m.RefreshAttempts,
		m.Notifications,
	)
	return m
}
