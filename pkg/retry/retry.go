// Package retry provides an explicit, bounded retry policy. Callers pass the
// policy as configuration instead of hiding attempt counters inside recursive
// calls, which keeps retry behavior testable independent of network timing.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Operation is a function that performs an operation that might need retrying.
type Operation func() error

// OperationWithResult is a function that returns a result and might need
// retrying.
type OperationWithResult[T any] func() (T, error)

// Policy holds retry configuration.
type Policy struct {
	// MaxAttempts bounds the total number of attempts (must be >= 1).
	MaxAttempts int
	// Backoff strategy to use between attempts.
	Backoff BackoffStrategy
	// RetryIf determines whether an error should be retried. A nil RetryIf
	// retries everything except context cancellation.
	RetryIf func(error) bool
	// OnRetry is called before each retry attempt.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy returns a policy with sensible defaults.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts: 3,
		Backoff:     DefaultExponentialBackoff(),
	}
}

func (p *Policy) shouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if p.RetryIf == nil {
		return true
	}
	return p.RetryIf(err)
}

// Do executes op under the policy, waiting between attempts.
func Do(ctx context.Context, op Operation, p *Policy) error {
	if p == nil {
		p = DefaultPolicy()
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !p.shouldRetry(lastErr) {
			return lastErr
		}
		if attempt >= p.MaxAttempts {
			return fmt.Errorf("max retry attempts (%d) exceeded: %w", p.MaxAttempts, lastErr)
		}

		delay := time.Duration(0)
		if p.Backoff != nil {
			delay = p.Backoff.NextDelay(attempt)
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, lastErr, delay)
		}
		if err := Wait(ctx, delay); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}
	}
}

// DoWithResult executes an operation that returns a result under the policy.
func DoWithResult[T any](ctx context.Context, op OperationWithResult[T], p *Policy) (T, error) {
	var result T
	err := Do(ctx, func() error {
		var opErr error
		result, opErr = op()
		return opErr
	}, p)
	return result, err
}
