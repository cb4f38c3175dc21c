// Package retry wraps fallible operations with delayed retries.
//
// Failure is absorbed at this layer: once the attempt budget is spent the
// caller receives the configured default value, not an error.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// Policy configures a retry loop.
type Policy struct {
	// BaseDelay is the delay unit between attempts.
	BaseDelay time.Duration

	// MaxAttempts is the attempt budget. Values below 1 mean 1.
	MaxAttempts int

	// Multiplier scales the delay. Zero means 1.
	Multiplier float64

	// Logger receives one record per failed attempt. Nil disables logging.
	Logger *slog.Logger

	// Sleeper overrides how waits are performed (useful for tests).
	Sleeper func(time.Duration)
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p Policy) multiplier() float64 {
	if p.Multiplier == 0 {
		return 1
	}
	return p.Multiplier
}

// LinearDelay returns BaseDelay * attempt * Multiplier.
func (p Policy) LinearDelay(attempt int) time.Duration {
	return time.Duration(float64(p.BaseDelay) * float64(attempt) * p.multiplier())
}

// ExponentialDelay returns BaseDelay * Multiplier^(attempt-1).
func (p Policy) ExponentialDelay(attempt int) time.Duration {
	return time.Duration(float64(p.BaseDelay) * math.Pow(p.multiplier(), float64(attempt-1)))
}

// Do runs op until it succeeds or MaxAttempts calls have failed. Between
// attempts it waits LinearDelay(attempt). When every attempt fails, or ctx
// is done while waiting, def is returned.
func Do[T any](ctx context.Context, p Policy, def T, op func(context.Context) (T, error)) T {
	attempts := p.attempts()
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := call(ctx, op)
		if err == nil {
			return result
		}
		if attempt == attempts {
			p.logFailure(attempt, 0, err)
			break
		}
		delay := p.LinearDelay(attempt)
		p.logFailure(attempt, delay, err)
		if Wait(ctx, p.Sleeper, delay) != nil {
			break
		}
	}
	return def
}

// DoAsync runs op on its own goroutine and delivers the outcome on the
// returned channel. Every failed attempt waits ExponentialDelay(attempt)
// before the next one, the last attempt included. Waits select on ctx, so
// cancellation releases the goroutine early with def.
func DoAsync[T any](ctx context.Context, p Policy, def T, op func(context.Context) (T, error)) <-chan T {
	resultCh := make(chan T, 1)
	go func() {
		defer close(resultCh)
		attempts := p.attempts()
		for attempt := 1; attempt <= attempts; attempt++ {
			result, err := call(ctx, op)
			if err == nil {
				resultCh <- result
				return
			}
			delay := p.ExponentialDelay(attempt)
			p.logFailure(attempt, delay, err)
			if Wait(ctx, p.Sleeper, delay) != nil {
				break
			}
		}
		resultCh <- def
	}()
	return resultCh
}

// call isolates panics raised by op so a single misbehaving call counts as
// a failed attempt instead of taking down sibling work.
func call[T any](ctx context.Context, op func(context.Context) (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			result = zero
			err = fmt.Errorf("retry: recovered panic: %v", r)
		}
	}()
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}
	return op(ctx)
}

func (p Policy) logFailure(attempt int, delay time.Duration, err error) {
	if p.Logger == nil {
		return
	}
	p.Logger.Warn("attempt failed",
		slog.Int("attempt", attempt),
		slog.Int("max_attempts", p.attempts()),
		slog.Duration("delay", delay),
		slog.String("error", err.Error()),
	)
}

// Wait blocks for delay or until ctx is done. A non-nil sleeper replaces the
// real timer.
func Wait(ctx context.Context, sleeper func(time.Duration), delay time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if delay <= 0 {
		return nil
	}
	if sleeper != nil {
		sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
