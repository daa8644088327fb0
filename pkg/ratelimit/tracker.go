package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	quotaRemaining = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "github_rate_limit_remaining",
		Help: "Requests remaining in the current rate limit window by category",
	}, []string{"category"})

	quotaWaitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "github_rate_limit_waits_total",
		Help: "Total number of requests delayed waiting for a quota reset by category",
	}, []string{"category"})

	quotaThrottlesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "github_rate_limit_throttles_total",
		Help: "Total number of requests throttled due to low remaining quota by category",
	}, []string{"category"})
)

// Quota is the most recent rate limit snapshot for one category.
// Values come straight from the X-RateLimit-* response headers.
type Quota struct {
	// Limit is the maximum number of requests in the window.
	Limit int

	// Remaining is the number of requests left in the window.
	Remaining int

	// ResetAt is when the window resets.
	ResetAt time.Time

	// Used is the number of requests consumed in the window.
	Used int
}

// Config holds tracker thresholds.
type Config struct {
	// ThrottleFraction is the fraction of remaining quota below which
	// requests are delayed proportionally instead of issued immediately.
	ThrottleFraction float64

	// ThrottleScale converts the quota deficit fraction into a delay.
	// delay = (ThrottleFraction - remaining/limit) * ThrottleScale
	ThrottleScale time.Duration
}

// DefaultConfig returns the default tracker thresholds.
func DefaultConfig() Config {
	return Config{
		ThrottleFraction: 0.10,
		ThrottleScale:    10 * time.Second,
	}
}

// Tracker stores the latest quota snapshot per category and decides
// whether callers must wait before issuing a request. Snapshots are
// last-write-wins: GitHub quotas are monotonically non-increasing within
// a reset window, so no response ordering is required.
//
// Safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	quotas map[Category]Quota
	config Config
	logger zerolog.Logger
	now    func() time.Time
}

// NewTracker creates a rate limit tracker.
func NewTracker(config Config, logger zerolog.Logger) *Tracker {
	if config.ThrottleFraction <= 0 {
		config.ThrottleFraction = 0.10
	}
	if config.ThrottleScale <= 0 {
		config.ThrottleScale = 10 * time.Second
	}
	return &Tracker{
		quotas: make(map[Category]Quota),
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// UpdateFromHeaders parses the quota headers from a response and stores
// the snapshot for the response's category. Missing or malformed headers
// are ignored; the surrounding call must never fail on quota bookkeeping.
func (t *Tracker) UpdateFromHeaders(headers http.Header) {
	limitStr := headers.Get("X-RateLimit-Limit")
	remainingStr := headers.Get("X-RateLimit-Remaining")
	resetStr := headers.Get("X-RateLimit-Reset")
	if limitStr == "" || remainingStr == "" || resetStr == "" {
		return
	}

	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		return
	}
	remaining, err := strconv.Atoi(remainingStr)
	if err != nil {
		return
	}
	resetUnix, err := strconv.ParseInt(resetStr, 10, 64)
	if err != nil {
		return
	}

	// Used is optional; leave zero when absent.
	used, _ := strconv.Atoi(headers.Get("X-RateLimit-Used"))

	category := ParseCategory(headers.Get("X-RateLimit-Resource"))

	quota := Quota{
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   time.Unix(resetUnix, 0),
		Used:      used,
	}

	t.mu.Lock()
	t.quotas[category] = quota
	t.mu.Unlock()

	quotaRemaining.WithLabelValues(string(category)).Set(float64(remaining))

	event := t.logger.Debug()
	if remaining == 0 {
		event = t.logger.Warn()
	}
	event.
		Str("category", string(category)).
		Int("remaining", remaining).
		Int("limit", limit).
		Time("reset_at", quota.ResetAt).
		Msg("Rate limit state updated")
}

// ShouldWait returns the duration a caller must wait before issuing a
// request in the given category. Returns zero when quota is healthy or
// unknown.
//
// When the quota is exhausted and the reset is in the future, the full
// time until reset is returned. When remaining quota falls below the
// throttle threshold, a small proportional delay smooths request issuance
// instead of bursting into exhaustion.
func (t *Tracker) ShouldWait(category Category) time.Duration {
	t.mu.Lock()
	quota, ok := t.quotas[category]
	t.mu.Unlock()

	if !ok || quota.Limit <= 0 {
		return 0
	}

	now := t.now()

	if quota.Remaining == 0 {
		if wait := quota.ResetAt.Sub(now); wait > 0 {
			quotaWaitsTotal.WithLabelValues(string(category)).Inc()
			t.logger.Warn().
				Str("category", string(category)).
				Dur("wait", wait).
				Msg("Rate limit exhausted, waiting for reset")
			return wait
		}
		return 0
	}

	remainingFrac := float64(quota.Remaining) / float64(quota.Limit)
	if remainingFrac < t.config.ThrottleFraction {
		delay := time.Duration((t.config.ThrottleFraction - remainingFrac) * float64(t.config.ThrottleScale))
		if delay > 0 {
			quotaThrottlesTotal.WithLabelValues(string(category)).Inc()
			t.logger.Debug().
				Str("category", string(category)).
				Dur("delay", delay).
				Int("remaining", quota.Remaining).
				Msg("Throttling request due to low quota")
			return delay
		}
	}

	return 0
}

// Status returns the latest quota snapshot for a category, or false when
// no response for that category has been seen yet.
func (t *Tracker) Status(category Category) (Quota, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	quota, ok := t.quotas[category]
	return quota, ok
}
