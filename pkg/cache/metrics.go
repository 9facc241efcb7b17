package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for cache operations.
var (
	// CacheHits counts resolver hits by tier (snapshot, ledger, memory, redis).
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yd_cache_hits_total",
		Help: "Total cache hits by tier",
	}, []string{"tier"})

	// CacheMisses counts identifiers that fell through every tier.
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yd_cache_misses_total",
		Help: "Total cache misses (network lookup required)",
	})

	// CacheEvictions counts entries dropped by the memory tier's full clear.
	CacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yd_cache_evictions_total",
		Help: "Total entries evicted by the memory tier capacity clear",
	})

	// CacheErrors counts failed cache operations by operation.
	CacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yd_cache_errors_total",
		Help: "Total cache errors by operation",
	}, []string{"operation"})
)
