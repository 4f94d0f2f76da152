package fn

import (
	"context"
	"math/rand"
	"time"
)

// RetryOpts configures retry behavior.
type RetryOpts struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Jitter      bool
	// Linear, when true, advances the wait by InitialWait per attempt
	// instead of doubling it, giving the "1s x retry#" shape of the
	// embedding server's backoff contract.
	Linear bool
}

// DefaultRetry provides sensible exponential-backoff retry defaults.
var DefaultRetry = RetryOpts{
	MaxAttempts: 3,
	InitialWait: time.Second,
	MaxWait:     30 * time.Second,
	Jitter:      true,
}

// LinearRetry provides a 1s*attempt backoff capped at 5s. The embedding
// client does not use it; embedclient.dispatchBatch runs its own retry loop.
var LinearRetry = RetryOpts{
	MaxAttempts: 5,
	InitialWait: time.Second,
	MaxWait:     5 * time.Second,
	Linear:      true,
}

// Retry retries f up to MaxAttempts times with exponential or linear backoff.
func Retry[T any](ctx context.Context, opts RetryOpts, f func(context.Context) Result[T]) Result[T] {
	var result Result[T]
	wait := opts.InitialWait

	for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
		result = f(ctx)
		if result.IsOk() {
			return result
		}
		if attempt == opts.MaxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return Err[T](ctx.Err())
		default:
		}

		var sleepDur time.Duration
		if opts.Linear {
			sleepDur = opts.InitialWait * time.Duration(attempt+1)
		} else {
			sleepDur = wait
			if opts.Jitter {
				sleepDur = time.Duration(float64(wait) * (0.5 + rand.Float64()))
			}
		}
		if sleepDur > opts.MaxWait {
			sleepDur = opts.MaxWait
		}

		select {
		case <-ctx.Done():
			return Err[T](ctx.Err())
		case <-time.After(sleepDur):
		}

		if !opts.Linear {
			wait *= 2
			if wait > opts.MaxWait {
				wait = opts.MaxWait
			}
		}
	}
	return result
}

// RetryStage wraps a Stage with retry logic.
func RetryStage[In, Out any](opts RetryOpts, stage Stage[In, Out]) Stage[In, Out] {
	return func(ctx context.Context, in In) Result[Out] {
		return Retry(ctx, opts, func(ctx context.Context) Result[Out] {
			return stage(ctx, in)
		})
	}
}
