// Package metrics provides the central Prometheus registry reference for
// the yoinker detector. All metrics are defined in their owning packages
// (ratelimit, cache, client, batch) to keep them next to the code they
// instrument; this package documents them in one place.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registerer. Metrics register
// themselves via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Rate Limit Metrics (pkg/ratelimit):
//   - yd_rate_limit_waits_total (Counter): Lookups that waited for window capacity
//   - yd_rate_limit_wait_seconds (Histogram): Time spent waiting for a slot
//
// Cache Metrics (pkg/cache):
//   - yd_cache_hits_total{tier} (Counter): Hits by tier (snapshot, ledger, memory, redis)
//   - yd_cache_misses_total (Counter): Identifiers that fell through to the network
//   - yd_cache_evictions_total (Counter): Entries dropped by the memory tier full clear
//   - yd_cache_errors_total{operation} (Counter): Failed cache operations
//
// Request Metrics (pkg/client):
//   - yd_requests_total{status} (Counter): Outbound requests by HTTP status
//   - yd_request_duration_seconds (Histogram): Outbound request duration
//   - yd_errors_total{class} (Counter): Attempt errors by class
//   - yd_retries_total{class} (Counter): Retry attempts by class
//   - yd_retry_exhausted_total{class} (Counter): Lookups that ran out of budget
//
// Batch Metrics (pkg/batch):
//   - yd_lookups_total{outcome} (Counter): Completed lookups by outcome
//   - yd_batches_total (Counter): Batches processed
//   - yd_task_wait_timeouts_total (Counter): Tasks that overran the wait timeout
//
// Example Prometheus Queries:
//
//   # Cache hit rate across tiers
//   sum(rate(yd_cache_hits_total[5m])) /
//   (sum(rate(yd_cache_hits_total[5m])) + sum(rate(yd_cache_misses_total[5m])))
//
//   # Share of lookups ending unresolved
//   rate(yd_lookups_total{outcome="unresolved"}[5m]) / rate(yd_lookups_total[5m])
//
//   # P95 request latency
//   histogram_quantile(0.95, rate(yd_request_duration_seconds_bucket[5m]))
