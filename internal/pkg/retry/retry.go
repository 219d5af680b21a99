// Package retry runs an operation a bounded number of times with fixed delays.
//
// One Policy covers every upstream call site: a generic delay between attempts,
// a longer delay when the upstream answered 429, and a permanent-error check that
// stops retrying immediately (e.g. 404).
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the production Sleeper.
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

// Policy describes how an operation is retried.
type Policy struct {
	// MaxAttempts is the total number of calls, including the first one.
	MaxAttempts int
	// Delay is waited before a retry after a generic failure.
	Delay time.Duration
	// RateLimitDelay replaces Delay when IsRateLimited reports true.
	RateLimitDelay time.Duration
	// IsRateLimited classifies 429-style errors. Optional.
	IsRateLimited func(error) bool
	// IsPermanent stops retrying and returns the error as is. Optional.
	IsPermanent func(error) bool
	// OnRetry is called before each wait. Optional.
	OnRetry func(attempt int, wait time.Duration, err error)
	// Sleep defaults to Sleep.
	Sleep Sleeper
}

// ErrExhausted wraps the last error once every attempt failed.
var ErrExhausted = errors.New("retry: attempts exhausted")

// ExhaustedError carries the last failure of an exhausted retry loop.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry: attempts exhausted after %d tries: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() []error {
	return []error{ErrExhausted, e.Last}
}

// Do calls fn until it succeeds, fails permanently, or MaxAttempts is reached.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		last = err

		if p.IsPermanent != nil && p.IsPermanent(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		wait := p.Delay
		if p.IsRateLimited != nil && p.IsRateLimited(err) && p.RateLimitDelay > 0 {
			wait = p.RateLimitDelay
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, wait, err)
		}
		if serr := sleep(ctx, wait); serr != nil {
			return serr
		}
	}

	return &ExhaustedError{Attempts: attempts, Last: last}
}

// Between draws a uniform duration in [min, max]. A non-positive min is raised to
// one millisecond so callers always get a real pause; max below min collapses to min.
func Between(rng *rand.Rand, min, max time.Duration) time.Duration {
	if min <= 0 {
		min = time.Millisecond
	}
	if max <= min {
		return min
	}
	span := int64(max - min)
	var n int64
	if rng != nil {
		n = rng.Int63n(span + 1)
	} else {
		n = rand.Int63n(span + 1)
	}
	return min + time.Duration(n)
}
