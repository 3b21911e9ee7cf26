// Package retry establishes connections to remote dependencies with a bounded
// number of attempts and a fixed delay between them.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrCancelled is returned (wrapped together with the context error) when the
// context is cancelled while a dial or a retry delay is in progress.
var ErrCancelled = errors.New("connection attempt cancelled")

// Policy describes a bounded-attempt, fixed-delay retry.
type Policy struct {
	MaxAttempts int           // Total number of dial attempts, at least 1
	RetryDelay  time.Duration // Pause between two consecutive attempts
}

// DefaultPolicy returns the policy used for database and broker dials.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 60,
		RetryDelay:  time.Second,
	}
}

// Validate checks that the policy can be executed.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("retry: max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.RetryDelay < 0 {
		return fmt.Errorf("retry: retry delay cannot be negative, got %s", p.RetryDelay)
	}
	return nil
}

// ConnectionExhaustedError is returned when every attempt allowed by the
// policy failed.
type ConnectionExhaustedError struct {
	Target   string
	Attempts int
	LastErr  error
}

func (e *ConnectionExhaustedError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("connection failed after %d attempts: %v", e.Attempts, e.LastErr)
	}
	return fmt.Sprintf("connection to %s failed after %d attempts: %v", e.Target, e.Attempts, e.LastErr)
}

func (e *ConnectionExhaustedError) Unwrap() error {
	return e.LastErr
}

// DialFunc opens a connection. It must honour ctx.
type DialFunc[T any] func(ctx context.Context) (T, error)

// ConnectWithRetry calls dial until it succeeds or policy.MaxAttempts calls
// have failed. It sleeps policy.RetryDelay between attempts but never after the
// last one. Every attempt and every failure is reported to obs, which may be nil.
//
// Cancelling ctx interrupts both the dial and the delay; the returned error
// then matches ErrCancelled and the context error.
func ConnectWithRetry[T any](ctx context.Context, target string, policy Policy, dial DialFunc[T], obs Observer) (T, error) {
	var zero T

	if err := policy.Validate(); err != nil {
		return zero, err
	}
	if obs == nil {
		obs = nopObserver{}
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("%w before attempt %d: %w", ErrCancelled, attempt, err)
		}

		obs.OnAttempt(target, attempt)
		conn, err := dial(ctx)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		obs.OnFailure(target, attempt, err)

		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, fmt.Errorf("%w during attempt %d: %w", ErrCancelled, attempt, ctxErr)
		}

		if attempt == policy.MaxAttempts {
			break
		}

		if policy.RetryDelay > 0 {
			timer := time.NewTimer(policy.RetryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, fmt.Errorf("%w while waiting for attempt %d: %w", ErrCancelled, attempt+1, ctx.Err())
			case <-timer.C:
			}
		}
	}

	return zero, &ConnectionExhaustedError{
		Target:   target,
		Attempts: policy.MaxAttempts,
		LastErr:  lastErr,
	}
}
