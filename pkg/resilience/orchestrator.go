package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ghwire/ghwire/pkg/ratelimit"
)

// Scope selects how circuit breakers are keyed.
type Scope string

const (
	// ScopePerCategory gives each rate-limit category its own breaker.
	// This is the default: GitHub quotas are already category-scoped,
	// and a noisy category should not trip unrelated traffic.
	ScopePerCategory Scope = "per_category"

	// ScopeGlobal uses a single breaker for all traffic.
	ScopeGlobal Scope = "global"
)

// QuotaGate is the rate-limit decision surface consumed by the
// orchestrator. Implemented by *ratelimit.Tracker.
type QuotaGate interface {
	ShouldWait(category ratelimit.Category) time.Duration
}

// Config holds orchestrator configuration.
type Config struct {
	// Breaker configures the circuit breakers.
	Breaker BreakerConfig

	// Retry configures the retry executor.
	Retry RetryConfig

	// BreakerScope selects global or per-category breakers.
	// Defaults to ScopePerCategory.
	BreakerScope Scope
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		Breaker:      DefaultBreakerConfig(),
		Retry:        DefaultRetryConfig(),
		BreakerScope: ScopePerCategory,
	}
}

// Orchestrator composes the circuit breaker, rate-limit gate, and retry
// executor around a single unit of work. It is the single point that
// decides whether a failure is retried or surfaced.
type Orchestrator struct {
	config  Config
	quota   QuotaGate
	retryer *Retryer
	logger  zerolog.Logger

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewOrchestrator creates an orchestrator using the given quota gate.
func NewOrchestrator(config Config, quota QuotaGate, logger zerolog.Logger) *Orchestrator {
	if config.BreakerScope == "" {
		config.BreakerScope = ScopePerCategory
	}
	return &Orchestrator{
		config:   config,
		quota:    quota,
		retryer:  NewRetryer(config.Retry, logger),
		logger:   logger,
		breakers: make(map[string]*Breaker),
	}
}

// Execute runs fn under the full resilience stack:
//
//  1. Rejects immediately with *OpenError if the breaker for the
//     category is open.
//  2. Waits out any rate-limit delay (context-aware).
//  3. Runs fn through the retry executor; fresh headers are attached by
//     fn on each attempt.
//  4. Feeds the outcome back into the breaker: success always recorded,
//     failure recorded only when a retryable error exhausted all
//     attempts.
//
// The last attempt's error is returned unmodified.
func (o *Orchestrator) Execute(ctx context.Context, operation string, category ratelimit.Category, fn func(ctx context.Context) error) error {
	breaker := o.breakerFor(category)

	if err := breaker.Allow(); err != nil {
		o.logger.Warn().
			Str("operation", operation).
			Str("category", string(category)).
			Msg("Request rejected by open circuit breaker")
		return err
	}

	if o.quota != nil {
		if wait := o.quota.ShouldWait(category); wait > 0 {
			if err := sleepContext(ctx, wait); err != nil {
				return err
			}
		}
	}

	err, exhausted := o.retryer.Do(ctx, operation, fn)
	if err == nil {
		breaker.RecordSuccess()
		return nil
	}
	if exhausted {
		breaker.RecordFailure()
	}
	return err
}

// BreakerState returns the state of the breaker guarding a category.
// With a global scope the category is ignored.
func (o *Orchestrator) BreakerState(category ratelimit.Category) State {
	return o.breakerFor(category).State()
}

// breakerFor returns the breaker for a category, creating it on first
// use.
func (o *Orchestrator) breakerFor(category ratelimit.Category) *Breaker {
	key := string(category)
	if o.config.BreakerScope == ScopeGlobal {
		key = "global"
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	breaker, ok := o.breakers[key]
	if !ok {
		breaker = NewBreaker(key, o.config.Breaker, o.logger)
		o.breakers[key] = breaker
	}
	return breaker
}
