// Package retry runs an operation with bounded attempts, a per-attempt
// timeout and a pluggable backoff between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Backoff returns the wait before attempt+1, given the 1-based attempt that
// just failed.
type Backoff func(attempt int) time.Duration

// Policy parameterizes Do for one call site.
type Policy struct {
	// MaxAttempts caps the number of calls. Values below 1 mean one attempt.
	MaxAttempts int
	// Backoff computes the wait between attempts. Nil means no wait.
	Backoff Backoff
	// Timeout bounds each attempt. Zero leaves the parent deadline in charge.
	Timeout time.Duration
	// Retryable filters errors worth another attempt. Nil retries everything
	// except parent context cancellation.
	Retryable func(err error) bool
	// OnRetry is called before sleeping for the next attempt.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// ExhaustedError is returned when every attempt failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Op is one attempt. attempt starts at 1.
type Op func(ctx context.Context, attempt int) error

// Do calls op until it succeeds, the policy gives up, or ctx is done.
// A non-retryable error is returned as is; exhausting the attempts returns
// an *ExhaustedError wrapping the last error.
func Do(ctx context.Context, p Policy, op Op) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("retry aborted: %w", errors.Join(err, lastErr))
			}
			return fmt.Errorf("retry aborted: %w", err)
		}
		lastErr = runAttempt(ctx, p.Timeout, attempt, op)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("retry aborted: %w", lastErr)
		}
		if !p.retryable(lastErr) {
			return lastErr
		}
		if attempt == maxAttempts {
			break
		}
		var wait time.Duration
		if p.Backoff != nil {
			wait = p.Backoff(attempt)
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, wait, lastErr)
		}
		if err := sleep(ctx, wait); err != nil {
			return fmt.Errorf("retry aborted: %w", errors.Join(err, lastErr))
		}
	}
	return &ExhaustedError{Attempts: maxAttempts, Err: lastErr}
}

func runAttempt(ctx context.Context, timeout time.Duration, attempt int, op Op) error {
	if timeout <= 0 {
		return op(ctx, attempt)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return op(attemptCtx, attempt)
}

func (p Policy) retryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return !errors.Is(err, context.Canceled)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Constant waits d between every attempt.
func Constant(d time.Duration) Backoff {
	return func(int) time.Duration {
		return d
	}
}

// Exponential doubles base per attempt up to max and applies half jitter,
// so the wait lands in [delay/2, delay).
func Exponential(base, maxDelay time.Duration) Backoff {
	return func(attempt int) time.Duration {
		if base <= 0 {
			return 0
		}
		delay := float64(base) * math.Pow(2, float64(attempt-1))
		if maxDelay > 0 && delay > float64(maxDelay) {
			delay = float64(maxDelay)
		}
		half := time.Duration(delay / 2)
		return half + randomJitter(half)
	}
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return rand.N(limit)
}
