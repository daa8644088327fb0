package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/ghwire/ghwire/pkg/apierr"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "github_retries_total",
		Help: "Total number of retry attempts by operation",
	}, []string{"operation"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "github_retry_backoff_seconds",
		Help:    "Backoff duration between retry attempts by operation",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"operation"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "github_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by operation",
	}, []string{"operation"})
)

// retryableError is implemented by errors that know whether they are
// safe to retry. Errors without this method are treated as terminal.
type retryableError interface {
	error
	Retryable() bool
}

// retryHinter is implemented by errors carrying an explicit
// server-provided wait duration (Retry-After or a quota reset time).
// The hint takes precedence over computed exponential backoff.
type retryHinter interface {
	error
	RetryHint() time.Duration
}

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts, including the
	// initial request.
	MaxAttempts int

	// InitialBackoff is the backoff before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the computed backoff.
	MaxBackoff time.Duration

	// Multiplier is the exponential backoff multiplier.
	Multiplier float64

	// Jitter is the fractional randomization applied to each backoff,
	// e.g. 0.2 yields delays in [0.8, 1.2] times the computed value.
	Jitter float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.2,
	}
}

// Retryer executes units of work with exponential backoff.
type Retryer struct {
	config RetryConfig
	logger zerolog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRetryer creates a retry executor.
func NewRetryer(config RetryConfig, logger zerolog.Logger) *Retryer {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = 1 * time.Second
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 30 * time.Second
	}
	if config.Multiplier <= 1 {
		config.Multiplier = 2.0
	}
	return &Retryer{
		config: config,
		logger: logger,
		sleep:  sleepContext,
	}
}

// Do executes fn, retrying retryable failures with backoff until the
// attempt budget is exhausted. The last error is returned unmodified so
// callers keep the original classification. Non-retryable errors
// propagate immediately.
//
// Returns exhausted=true when a retryable failure consumed all attempts;
// the circuit breaker records a failure only in that case.
func (r *Retryer) Do(ctx context.Context, operation string, fn func(ctx context.Context) error) (err error, exhausted bool) {
	var lastErr error

	for attempt := 0; attempt < r.config.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			if attempt > 0 {
				r.logger.Info().
					Str("operation", operation).
					Int("attempt", attempt+1).
					Msg("Request succeeded after retry")
			}
			return nil, false
		}

		if !isRetryable(lastErr) {
			return lastErr, false
		}

		if attempt == r.config.MaxAttempts-1 {
			break
		}

		delay := r.delayFor(attempt, lastErr)
		retriesTotal.WithLabelValues(operation).Inc()
		retryBackoffSeconds.WithLabelValues(operation).Observe(delay.Seconds())

		r.logger.Debug().
			Str("operation", operation).
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Msg("Retrying request after backoff")

		if err := r.sleep(ctx, delay); err != nil {
			return err, false
		}
	}

	retryExhaustedTotal.WithLabelValues(operation).Inc()
	r.logger.Warn().
		Str("operation", operation).
		Int("max_attempts", r.config.MaxAttempts).
		Err(lastErr).
		Msg("Retry attempts exhausted")

	return lastErr, true
}

// delayFor computes the wait before the next attempt. An explicit
// server-provided hint on the error wins over exponential backoff.
func (r *Retryer) delayFor(attempt int, err error) time.Duration {
	var hinter retryHinter
	if errors.As(err, &hinter) {
		if hint := hinter.RetryHint(); hint > 0 {
			return hint
		}
	}

	backoff := float64(r.config.InitialBackoff) * math.Pow(r.config.Multiplier, float64(attempt))
	if backoff > float64(r.config.MaxBackoff) {
		backoff = float64(r.config.MaxBackoff)
	}

	if r.config.Jitter > 0 {
		factor := 1 - r.config.Jitter + rand.Float64()*2*r.config.Jitter
		backoff *= factor
	}

	return time.Duration(backoff)
}

// isRetryable reports whether err declares itself retryable.
func isRetryable(err error) bool {
	var retryable retryableError
	if errors.As(err, &retryable) {
		return retryable.Retryable()
	}
	return false
}

// sleepContext waits for d or until the context is done, whichever
// comes first. A context abort is wrapped so it carries a taxonomy tag
// across the client boundary; errors.Is still finds the context error.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return apierr.Timeout(ctx.Err())
	case <-timer.C:
		return nil
	}
}
