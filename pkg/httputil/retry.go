// Package httputil provides retry helpers for talking to rate-limited,
// eventually-consistent package registries.
package httputil

import (
	"context"
	"errors"
	"time"
)

// RetryableError wraps an error to indicate it should trigger a retry.
// Wrap transient failures (network timeouts, rate limits, 5xx responses)
// with this type so that [Retry] knows to attempt the operation again.
// Errors not wrapped this way are returned immediately.
type RetryableError struct{ Err error }

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable wraps err as a RetryableError. Returns nil for a nil err.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err is wrapped with [RetryableError].
func IsRetryable(err error) bool {
	return errors.As(err, new(*RetryableError))
}

// Policy controls retry behavior.
type Policy struct {
	// Attempts is the total number of tries, including the first.
	// Values below 1 are treated as 1.
	Attempts int
	// Delay is the wait before the second attempt; it doubles after
	// each failed attempt.
	Delay time.Duration
	// OnRetry, if set, is called before each wait with the attempt
	// number just failed (1-based) and the error that caused it.
	OnRetry func(attempt int, err error)
}

// DefaultPolicy is used by [RetryWithBackoff]: 3 attempts starting at
// one second, doubling each retry.
var DefaultPolicy = Policy{Attempts: 3, Delay: time.Second}

// Retry executes fn according to p, with exponential backoff between
// attempts. Only errors wrapped with [RetryableError] are retried.
// Returns the last error if all attempts fail, or ctx.Err() if the
// context is cancelled while waiting.
func Retry(ctx context.Context, p Policy, fn func() error) error {
	attempts := max(p.Attempts, 1)
	delay := p.Delay
	var lastErr error

	for i := 1; i <= attempts; i++ {
		if err := fn(); err == nil {
			return nil
		} else if lastErr = err; !IsRetryable(err) {
			return err
		}

		if i < attempts {
			if p.OnRetry != nil {
				p.OnRetry(i, lastErr)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				delay *= 2
			}
		}
	}
	return lastErr
}

// RetryWithBackoff runs fn under [DefaultPolicy].
func RetryWithBackoff(ctx context.Context, fn func() error) error {
	return Retry(ctx, DefaultPolicy, fn)
}
