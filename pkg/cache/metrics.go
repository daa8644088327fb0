package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "github_cache_hits_total",
		Help: "Total number of response cache hits",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "github_cache_misses_total",
		Help: "Total number of response cache misses",
	})

	cacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "github_cache_errors_total",
		Help: "Total number of cache operation errors",
	}, []string{"operation"})

	// NotModified counts 304 revalidations served from cache. These
	// responses are free with respect to the GitHub rate limit.
	NotModified = promauto.NewCounter(prometheus.CounterOpts{
		Name: "github_cache_not_modified_total",
		Help: "Total number of 304 Not Modified revalidations",
	})
)
