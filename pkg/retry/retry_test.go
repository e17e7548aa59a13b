package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoSucceedsAfterRetries(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	}, &Policy{MaxAttempts: 5, Backoff: FixedBackoff{Delay: time.Millisecond}})

	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestDoRespectsMaxAttempts(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), func() error {
		attempts++
		return errors.New("always fails")
	}, &Policy{MaxAttempts: 3, Backoff: FixedBackoff{Delay: time.Millisecond}})

	if err == nil {
		t.Fatal("Expected error after exhausting attempts")
	}
	if attempts != 3 {
		t.Errorf("Expected exactly 3 attempts, got %d", attempts)
	}
}

func TestDoHonorsRetryIf(t *testing.T) {
	permanent := errors.New("permanent")
	attempts := 0
	err := Do(context.Background(), func() error {
		attempts++
		return permanent
	}, &Policy{
		MaxAttempts: 5,
		Backoff:     FixedBackoff{Delay: time.Millisecond},
		RetryIf:     func(err error) bool { return !errors.Is(err, permanent) },
	})

	if !errors.Is(err, permanent) {
		t.Fatalf("Expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt for non-retryable error, got %d", attempts)
	}
}

func TestDoStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, func() error {
		attempts++
		return errors.New("transient")
	}, &Policy{MaxAttempts: 100, Backoff: FixedBackoff{Delay: 10 * time.Millisecond}})

	if err == nil {
		t.Fatal("Expected cancellation error")
	}
	if attempts >= 100 {
		t.Errorf("Expected cancellation to cut attempts short, got %d", attempts)
	}
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	got, err := DoWithResult(context.Background(), func() (string, error) {
		calls++
		if calls < 2 {
			return "", errors.New("transient")
		}
		return "value", nil
	}, &Policy{MaxAttempts: 3, Backoff: FixedBackoff{Delay: time.Millisecond}})

	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if got != "value" {
		t.Errorf("Expected value, got %q", got)
	}
}

func TestExponentialBackoff(t *testing.T) {
	eb := &ExponentialBackoff{BaseDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2.0}

	if d := eb.NextDelay(1); d != time.Second {
		t.Errorf("Expected 1s for attempt 1, got %v", d)
	}
	if d := eb.NextDelay(2); d != 2*time.Second {
		t.Errorf("Expected 2s for attempt 2, got %v", d)
	}
	if d := eb.NextDelay(10); d != 5*time.Second {
		t.Errorf("Expected cap at 5s, got %v", d)
	}
	if d := eb.NextDelay(0); d != 0 {
		t.Errorf("Expected 0 for attempt 0, got %v", d)
	}
}
