package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cobabot-go/internal/signal"
)

// ErrFetchExhausted is returned once every attempt allowed by a RetryPolicy failed.
var ErrFetchExhausted = errors.New("bar fetch retries exhausted")

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the timer-backed Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryPolicy bounds how often a fetch is attempted and how long to wait in between.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// DefaultRetryPolicy is three attempts five seconds apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Delay: 5 * time.Second}
}

// FetchResult is either Bars (Err nil) or an exhausted fetch.
type FetchResult struct {
	Bars     []signal.Bar
	Attempts int
	Err      error
}

// OK reports whether the fetch succeeded.
func (r FetchResult) OK() bool { return r.Err == nil }

// Fetch calls fn until it succeeds, the attempts run out or ctx is done.
// onAttempt, when set, sees the error of every attempt (nil on success).
func (p RetryPolicy) Fetch(ctx context.Context, fn func(context.Context) ([]signal.Bar, error), sleep Sleeper, onAttempt func(error)) FetchResult {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	if sleep == nil {
		sleep = Sleep
	}

	var last error
	for i := 1; i <= attempts; i++ {
		if err := ctx.Err(); err != nil {
			return FetchResult{Attempts: i - 1, Err: err}
		}
		bars, err := fn(ctx)
		if onAttempt != nil {
			onAttempt(err)
		}
		if err == nil {
			return FetchResult{Bars: bars, Attempts: i}
		}
		last = err
		if i < attempts {
			if err := sleep(ctx, p.Delay); err != nil {
				return FetchResult{Attempts: i, Err: err}
			}
		}
	}
	return FetchResult{Attempts: attempts, Err: fmt.Errorf("%w after %d attempts: %w", ErrFetchExhausted, attempts, last)}
}
