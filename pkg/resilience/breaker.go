// Package resilience composes a circuit breaker, retry executor, and
// rate-limit gating around a single unit of work. It is the only layer
// that decides retry-versus-surface for request failures.
package resilience

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var breakerTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "github_circuit_breaker_transitions_total",
	Help: "Circuit breaker state transitions by scope and target state",
}, []string{"scope", "state"})

// State is a circuit breaker state.
type State string

const (
	// StateClosed lets requests through and counts failures.
	StateClosed State = "closed"

	// StateOpen rejects requests immediately until the reset timeout.
	StateOpen State = "open"

	// StateHalfOpen lets probe requests through to test recovery.
	StateHalfOpen State = "half_open"
)

// OpenError is returned when a request is rejected because the circuit
// is open. No network call was made.
type OpenError struct {
	// Scope identifies the breaker that rejected the request.
	Scope string

	// Until is when the breaker will allow a probe request.
	Until time.Time
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker open for %s until %s", e.Scope, e.Until.Format(time.RFC3339))
}

// Retryable reports false: circuit-open conditions surface immediately
// and are never retried internally.
func (e *OpenError) Retryable() bool { return false }

// BreakerConfig holds circuit breaker thresholds.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures in the
	// closed state that opens the circuit.
	FailureThreshold int

	// SuccessThreshold is the number of consecutive successes in the
	// half-open state that closes the circuit.
	SuccessThreshold int

	// ResetTimeout is how long the circuit stays open before allowing
	// a probe request.
	ResetTimeout time.Duration
}

// DefaultBreakerConfig returns the default breaker thresholds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 3,
		ResetTimeout:     60 * time.Second,
	}
}

// Breaker is a circuit breaker guarding one resilience scope. All state
// transitions happen under a single mutex so concurrent successes and
// failures cannot race into an inconsistent state.
type Breaker struct {
	scope  string
	config BreakerConfig
	logger zerolog.Logger

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openUntil time.Time
	now       func() time.Time
}

// NewBreaker creates a closed circuit breaker for the given scope.
func NewBreaker(scope string, config BreakerConfig, logger zerolog.Logger) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 3
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 60 * time.Second
	}
	return &Breaker{
		scope:  scope,
		config: config,
		logger: logger,
		state:  StateClosed,
		now:    time.Now,
	}
}

// Allow reports whether a request may proceed. An open circuit whose
// reset timeout has elapsed transitions to half-open and admits the
// request as a probe. Returns *OpenError when the request is rejected.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.now().Before(b.openUntil) {
			return &OpenError{Scope: b.scope, Until: b.openUntil}
		}
		b.transition(StateHalfOpen)
	}
	return nil
}

// RecordSuccess records a successful unit of work.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			b.transition(StateClosed)
		}
	}
}

// RecordFailure records a failed unit of work. In the closed state the
// circuit opens once the failure threshold is reached; in the half-open
// state any failure reopens the circuit immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.open()
		}
	case StateHalfOpen:
		b.open()
	}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// open transitions to the open state. Must be called with b.mu held.
func (b *Breaker) open() {
	b.openUntil = b.now().Add(b.config.ResetTimeout)
	b.transition(StateOpen)
}

// transition changes state and resets counters. Must be called with
// b.mu held.
func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	b.failures = 0
	b.successes = 0

	breakerTransitionsTotal.WithLabelValues(b.scope, string(to)).Inc()

	event := b.logger.Info()
	if to == StateOpen {
		event = b.logger.Warn()
	}
	event.
		Str("scope", b.scope).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("Circuit breaker state change")
}
