// Package retry provides a small retry policy with exponential backoff and
// jitter for calls to the embedding server and vector index.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// ErrInvalidPolicy indicates invalid policy parameters.
var ErrInvalidPolicy = errors.New("invalid retry policy")

// Policy describes an exponential backoff schedule.
//
// Delay for attempt n (0-based) is BaseDelay * 2^n, capped at MaxDelay,
// then randomized by ±JitterFraction to avoid synchronized retry storms
// across concurrent callers.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the delay before the second attempt.
	BaseDelay time.Duration

	// MaxDelay caps the computed backoff delay.
	MaxDelay time.Duration

	// JitterFraction randomizes each delay by ±fraction (0 disables jitter).
	JitterFraction float64
}

// DefaultPolicy returns the policy used for embedding batch calls:
// 3 attempts, 500ms base, 10s cap, ±25% jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		BaseDelay:      500 * time.Millisecond,
		MaxDelay:       10 * time.Second,
		JitterFraction: 0.25,
	}
}

// Validate checks the policy parameters.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("%w: max attempts must be >= 1, got %d", ErrInvalidPolicy, p.MaxAttempts)
	}
	if p.BaseDelay < 0 || p.MaxDelay < 0 {
		return fmt.Errorf("%w: delays must be >= 0", ErrInvalidPolicy)
	}
	if p.JitterFraction < 0 || p.JitterFraction > 1 {
		return fmt.Errorf("%w: jitter fraction must be in [0,1], got %v", ErrInvalidPolicy, p.JitterFraction)
	}
	return nil
}

// Delay returns the jittered backoff delay after the given 0-based attempt.
func (p Policy) Delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			d = p.MaxDelay
			break
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return Jitter(d, p.JitterFraction)
}

// Jitter randomizes d by ±fraction.
func Jitter(d time.Duration, fraction float64) time.Duration {
	if fraction <= 0 || d <= 0 {
		return d
	}
	// Uniform in [1-fraction, 1+fraction).
	factor := 1 + fraction*(2*rand.Float64()-1)
	return time.Duration(float64(d) * factor)
}

// Do runs op up to MaxAttempts times, sleeping the jittered backoff between
// attempts. It stops early when op succeeds, when retryable reports the
// error as permanent, or when ctx is done.
//
// A nil retryable treats every error as transient.
func (p Policy) Do(ctx context.Context, op func() error, retryable func(error) bool) error {
	if err := p.Validate(); err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry canceled: %w", ctx.Err())
		case <-time.After(p.Delay(attempt)):
		}
	}
	return fmt.Errorf("all %d attempts failed: %w", p.MaxAttempts, lastErr)
}
