// Package retry runs an operation with bounded exponential backoff.
package retry

import (
	"context"
	"time"
)

type Policy struct {
	MaxRetries   int
	InitialDelay time.Duration
	Factor       float64
	// ShouldRetry reports whether err is transient. Nil retries every error.
	ShouldRetry func(err error) bool
	// OnRetry is called before sleeping for the next attempt.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Do calls fn until it succeeds, returns a non-retryable error, or MaxRetries
// retries have been spent. The last error is returned.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := DoValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func DoValue[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	delay := p.InitialDelay
	factor := p.Factor
	if factor < 1 {
		factor = 1
	}
	for attempt := 0; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if attempt >= p.MaxRetries || (p.ShouldRetry != nil && !p.ShouldRetry(err)) {
			return v, err
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, delay, err)
		}
		select {
		case <-ctx.Done():
			return v, err
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * factor)
	}
}
