package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ghwire/ghwire/pkg/apierr"
)

// fakeError is a classified test error with a controllable retry hint.
type fakeError struct {
	message   string
	retryable bool
	hint      time.Duration
}

func (e *fakeError) Error() string            { return e.message }
func (e *fakeError) Retryable() bool          { return e.retryable }
func (e *fakeError) RetryHint() time.Duration { return e.hint }

// recordingSleep captures backoff delays without waiting.
func recordingSleep(delays *[]time.Duration) func(ctx context.Context, d time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestRetryer_SucceedsFirstAttempt(t *testing.T) {
	retryer := NewRetryer(DefaultRetryConfig(), testLogger())

	calls := 0
	err, exhausted := retryer.Do(context.Background(), "test", func(context.Context) error {
		calls++
		return nil
	})

	if err != nil || exhausted {
		t.Fatalf("Do() = %v, %v; want nil, false", err, exhausted)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryer_RetriesThenSucceeds(t *testing.T) {
	retryer := NewRetryer(DefaultRetryConfig(), testLogger())
	var delays []time.Duration
	retryer.sleep = recordingSleep(&delays)

	calls := 0
	err, exhausted := retryer.Do(context.Background(), "test", func(context.Context) error {
		calls++
		if calls < 3 {
			return &fakeError{message: "transient", retryable: true}
		}
		return nil
	})

	if err != nil || exhausted {
		t.Fatalf("Do() = %v, %v; want nil, false", err, exhausted)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(delays) != 2 {
		t.Errorf("slept %d times, want 2", len(delays))
	}
}

func TestRetryer_NonRetryableFailsImmediately(t *testing.T) {
	retryer := NewRetryer(DefaultRetryConfig(), testLogger())
	var delays []time.Duration
	retryer.sleep = recordingSleep(&delays)

	terminal := &fakeError{message: "not found", retryable: false}
	calls := 0
	err, exhausted := retryer.Do(context.Background(), "test", func(context.Context) error {
		calls++
		return terminal
	})

	if !errors.Is(err, terminal) {
		t.Fatalf("Do() = %v, want the terminal error unmodified", err)
	}
	if exhausted {
		t.Error("non-retryable failures must not count as exhaustion")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if len(delays) != 0 {
		t.Errorf("slept %d times, want 0", len(delays))
	}
}

func TestRetryer_ExhaustionReturnsLastErrorUnmodified(t *testing.T) {
	retryer := NewRetryer(DefaultRetryConfig(), testLogger())
	var delays []time.Duration
	retryer.sleep = recordingSleep(&delays)

	transient := &fakeError{message: "server error", retryable: true}
	calls := 0
	err, exhausted := retryer.Do(context.Background(), "test", func(context.Context) error {
		calls++
		return transient
	})

	if err != transient {
		t.Fatalf("Do() = %v, want the last error itself (not wrapped)", err)
	}
	if !exhausted {
		t.Error("exhausted = false, want true")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want MaxAttempts (3)", calls)
	}
}

func TestRetryer_RetryHintOverridesBackoff(t *testing.T) {
	retryer := NewRetryer(DefaultRetryConfig(), testLogger())
	var delays []time.Duration
	retryer.sleep = recordingSleep(&delays)

	hinted := &fakeError{message: "rate limited", retryable: true, hint: 300 * time.Second}
	calls := 0
	_, _ = retryer.Do(context.Background(), "test", func(context.Context) error {
		calls++
		if calls == 1 {
			return hinted
		}
		return nil
	})

	if len(delays) != 1 {
		t.Fatalf("slept %d times, want 1", len(delays))
	}
	if delays[0] != 300*time.Second {
		t.Errorf("delay = %v, want the 300s hint, not exponential backoff", delays[0])
	}
}

func TestRetryer_BackoffGrowsAndStaysBounded(t *testing.T) {
	config := RetryConfig{
		MaxAttempts:    6,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     4 * time.Second,
		Multiplier:     2.0,
		Jitter:         0, // deterministic for this test
	}
	retryer := NewRetryer(config, testLogger())
	var delays []time.Duration
	retryer.sleep = recordingSleep(&delays)

	transient := &fakeError{message: "transient", retryable: true}
	_, _ = retryer.Do(context.Background(), "test", func(context.Context) error {
		return transient
	})

	want := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second, 4 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("slept %d times, want %d", len(delays), len(want))
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestRetryer_JitterStaysWithinBounds(t *testing.T) {
	config := DefaultRetryConfig()
	retryer := NewRetryer(config, testLogger())

	transient := &fakeError{message: "transient", retryable: true}
	for i := 0; i < 100; i++ {
		delay := retryer.delayFor(0, transient)
		if delay < 800*time.Millisecond || delay > 1200*time.Millisecond {
			t.Fatalf("delay = %v, want within 1s +/- 20%%", delay)
		}
	}
}

func TestRetryer_ContextCancelledDuringBackoff(t *testing.T) {
	retryer := NewRetryer(DefaultRetryConfig(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	transient := &fakeError{message: "transient", retryable: true}
	err, exhausted := retryer.Do(ctx, "test", func(context.Context) error {
		return transient
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do() = %v, want context.Canceled", err)
	}
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Category != apierr.CategoryNetwork {
		t.Fatalf("Do() = %v, want a network-classified error around the cancellation", err)
	}
	if exhausted {
		t.Error("cancellation must not count as exhaustion")
	}
}
