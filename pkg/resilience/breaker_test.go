package resilience

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

func TestBreaker_OpensAfterFailureThreshold(t *testing.T) {
	breaker := NewBreaker("core", DefaultBreakerConfig(), testLogger())

	for i := 0; i < 4; i++ {
		breaker.RecordFailure()
		if got := breaker.State(); got != StateClosed {
			t.Fatalf("state after %d failures = %s, want closed", i+1, got)
		}
	}

	breaker.RecordFailure()
	if got := breaker.State(); got != StateOpen {
		t.Fatalf("state after 5 failures = %s, want open", got)
	}

	err := breaker.Allow()
	var openErr *OpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("Allow() = %v, want *OpenError", err)
	}
	if openErr.Scope != "core" {
		t.Errorf("OpenError.Scope = %q, want core", openErr.Scope)
	}
	if openErr.Until.IsZero() {
		t.Error("OpenError.Until is zero")
	}
	if openErr.Retryable() {
		t.Error("circuit-open errors must not be retryable")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	breaker := NewBreaker("core", DefaultBreakerConfig(), testLogger())

	for i := 0; i < 4; i++ {
		breaker.RecordFailure()
	}
	breaker.RecordSuccess()
	for i := 0; i < 4; i++ {
		breaker.RecordFailure()
	}

	if got := breaker.State(); got != StateClosed {
		t.Errorf("state = %s, want closed (failures are consecutive)", got)
	}
}

func TestBreaker_HalfOpenAfterResetTimeout(t *testing.T) {
	breaker := NewBreaker("core", DefaultBreakerConfig(), testLogger())
	now := time.Now()
	breaker.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		breaker.RecordFailure()
	}
	if err := breaker.Allow(); err == nil {
		t.Fatal("Allow() on fresh open circuit must fail")
	}

	now = now.Add(61 * time.Second)
	if err := breaker.Allow(); err != nil {
		t.Fatalf("Allow() after reset timeout = %v, want probe admitted", err)
	}
	if got := breaker.State(); got != StateHalfOpen {
		t.Errorf("state = %s, want half_open", got)
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	breaker := NewBreaker("core", DefaultBreakerConfig(), testLogger())
	now := time.Now()
	breaker.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		breaker.RecordFailure()
	}
	now = now.Add(61 * time.Second)
	if err := breaker.Allow(); err != nil {
		t.Fatal(err)
	}

	breaker.RecordFailure()
	if got := breaker.State(); got != StateOpen {
		t.Errorf("state = %s, want open after half-open failure", got)
	}
}

func TestBreaker_HalfOpenClosesAfterSuccessThreshold(t *testing.T) {
	breaker := NewBreaker("core", DefaultBreakerConfig(), testLogger())
	now := time.Now()
	breaker.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		breaker.RecordFailure()
	}
	now = now.Add(61 * time.Second)
	if err := breaker.Allow(); err != nil {
		t.Fatal(err)
	}

	breaker.RecordSuccess()
	breaker.RecordSuccess()
	if got := breaker.State(); got != StateHalfOpen {
		t.Fatalf("state after 2 successes = %s, want half_open", got)
	}

	breaker.RecordSuccess()
	if got := breaker.State(); got != StateClosed {
		t.Errorf("state after 3 successes = %s, want closed", got)
	}
}

func TestBreaker_ConcurrentRecording(t *testing.T) {
	breaker := NewBreaker("core", BreakerConfig{FailureThreshold: 1000, SuccessThreshold: 3, ResetTimeout: time.Minute}, testLogger())

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				breaker.RecordFailure()
				breaker.RecordSuccess()
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	if got := breaker.State(); got != StateClosed {
		t.Errorf("state = %s, want closed", got)
	}
}
