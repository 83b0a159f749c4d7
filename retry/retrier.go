// Package retry provides a pluggable retry mechanism for store requests.
//
// By default no retries are performed. Callers opt in by injecting a retrier
// into the context:
//
//	retrier := retry.NewExponentialBackoffRetrier().
//	    WithMaxAttempts(3).
//	    WithInitialDelay(100 * time.Millisecond)
//	ctx = retry.ToContext(ctx, retrier)
//
// Which errors are worth retrying is decided by the transport layer; the store
// client only ever retries idempotent reads.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Retrier defines the interface for retry behavior.
type Retrier interface {
	// ShouldRetry determines if an error should be retried.
	// attempt is the current attempt number (1-indexed).
	ShouldRetry(ctx context.Context, err error, attempt int) bool

	// Wait waits before the next retry attempt.
	// Returns an error if the context was cancelled during the wait.
	Wait(ctx context.Context, attempt int) error

	// MaxAttempts returns the maximum number of attempts (including the initial attempt).
	MaxAttempts() int
}

// NoopRetrier is a retrier that never retries.
type NoopRetrier struct{}

func (r *NoopRetrier) ShouldRetry(ctx context.Context, err error, attempt int) bool {
	return false
}

func (r *NoopRetrier) Wait(ctx context.Context, attempt int) error {
	return nil
}

func (r *NoopRetrier) MaxAttempts() int {
	return 1
}

// ExponentialBackoffRetrier retries any error except context cancellation,
// waiting InitialDelay * Multiplier^(attempt-1) between attempts, capped at MaxDelay.
type ExponentialBackoffRetrier struct {
	// MaxAttemptsValue is the maximum number of attempts (including the initial attempt).
	// Default is 3.
	MaxAttemptsValue int
	// InitialDelay is the delay before the first retry. Default is 100ms.
	InitialDelay time.Duration
	// MaxDelay caps the delay between retries. Default is 5 seconds.
	MaxDelay time.Duration
	// Multiplier is the exponential backoff multiplier. Default is 2.0.
	Multiplier float64
	// Jitter randomizes delays to avoid thundering herds. Default is true.
	Jitter bool
}

// NewExponentialBackoffRetrier creates a new ExponentialBackoffRetrier with default values.
func NewExponentialBackoffRetrier() *ExponentialBackoffRetrier {
	return &ExponentialBackoffRetrier{
		MaxAttemptsValue: 3,
		InitialDelay:     100 * time.Millisecond,
		MaxDelay:         5 * time.Second,
		Multiplier:       2.0,
		Jitter:           true,
	}
}

func (r *ExponentialBackoffRetrier) ShouldRetry(ctx context.Context, err error, attempt int) bool {
	if err == nil {
		return false
	}

	if maxAttempts := r.MaxAttempts(); maxAttempts > 0 && attempt >= maxAttempts {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	return ctx.Err() == nil
}

// Wait waits before the next retry attempt using exponential backoff.
func (r *ExponentialBackoffRetrier) Wait(ctx context.Context, attempt int) error {
	delay := float64(r.InitialDelay) * math.Pow(r.Multiplier, float64(attempt-1))
	if delay > float64(r.MaxDelay) {
		delay = float64(r.MaxDelay)
	}

	if r.Jitter {
		jitter := rand.Float64() * delay
		delay = delay*0.5 + jitter*0.5
	}

	timer := time.NewTimer(time.Duration(delay))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *ExponentialBackoffRetrier) MaxAttempts() int {
	if r.MaxAttemptsValue <= 0 {
		return 3
	}
	return r.MaxAttemptsValue
}

func (r *ExponentialBackoffRetrier) WithMaxAttempts(attempts int) *ExponentialBackoffRetrier {
	r.MaxAttemptsValue = attempts
	return r
}

func (r *ExponentialBackoffRetrier) WithInitialDelay(delay time.Duration) *ExponentialBackoffRetrier {
	r.InitialDelay = delay
	return r
}

func (r *ExponentialBackoffRetrier) WithMaxDelay(delay time.Duration) *ExponentialBackoffRetrier {
	r.MaxDelay = delay
	return r
}

func (r *ExponentialBackoffRetrier) WithMultiplier(multiplier float64) *ExponentialBackoffRetrier {
	r.Multiplier = multiplier
	return r
}

func (r *ExponentialBackoffRetrier) WithoutJitter() *ExponentialBackoffRetrier {
	r.Jitter = false
	return r
}
