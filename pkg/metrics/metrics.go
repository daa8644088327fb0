// Package metrics provides the centralized Prometheus metrics registry
// for the GitHub client. All metrics are defined in their respective
// packages (githubapi, cache, ratelimit, resilience) to maintain
// modularity and avoid circular dependencies.
//
// This package provides documentation and reference for all available
// metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the client.
// All metrics are automatically registered via promauto in their
// respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/githubapi):
//   - github_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - github_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - github_errors_total{category} (Counter): Errors by taxonomy category
//
// Rate Limit Metrics (pkg/ratelimit):
//   - github_rate_limit_remaining{category} (Gauge): Requests remaining in the current window
//   - github_rate_limit_waits_total{category} (Counter): Requests delayed for a quota reset
//   - github_rate_limit_throttles_total{category} (Counter): Requests throttled on low quota
//
// Resilience Metrics (pkg/resilience):
//   - github_retries_total{operation} (Counter): Retry attempts by operation
//   - github_retry_backoff_seconds{operation} (Histogram): Backoff duration by operation
//   - github_retry_exhausted_total{operation} (Counter): Operations that exhausted retries
//   - github_circuit_breaker_transitions_total{scope, state} (Counter): Breaker state transitions
//
// Cache Metrics (pkg/cache):
//   - github_cache_hits_total (Counter): Response cache hits
//   - github_cache_misses_total (Counter): Response cache misses
//   - github_cache_errors_total{operation} (Counter): Cache operation errors
//   - github_cache_not_modified_total (Counter): 304 revalidations served from cache
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(github_cache_hits_total[5m])) /
//   (sum(rate(github_cache_hits_total[5m])) + sum(rate(github_cache_misses_total[5m])))
//
//   # Quota Headroom
//   github_rate_limit_remaining{category="core"} < 500
//
//   # Request Error Rate
//   rate(github_errors_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(github_request_duration_seconds_bucket[5m]))
//
//   # 304 Revalidation Rate
//   rate(github_cache_not_modified_total[5m]) / rate(github_requests_total[5m])
