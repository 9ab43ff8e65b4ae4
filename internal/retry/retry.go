// Package retry wraps a single operation with bounded exponential backoff.
package retry

import (
	"context"
	"time"

	"policy-console/internal/logging"
)

const (
	DefaultMaxRetries   = 2
	DefaultInitialDelay = time.Second
)

// Options configures Do. The delay before retry N (1-based) is
// InitialDelay * 2^(N-1); there is no jitter and every error is retried.
type Options struct {
	MaxRetries   int
	InitialDelay time.Duration
	// Sleep waits between attempts. Nil means a timer that stops early
	// when ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error
	// Op names the operation in retry log lines.
	Op string
}

func DefaultOptions() Options {
	return Options{MaxRetries: DefaultMaxRetries, InitialDelay: DefaultInitialDelay}
}

// Do runs op up to opts.MaxRetries+1 times and returns the last error once
// the budget is spent.
func Do[T any](ctx context.Context, opts Options, op func(ctx context.Context) (T, error)) (T, error) {
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	remaining := opts.MaxRetries
	delay := opts.InitialDelay
	for {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if remaining <= 0 {
			return v, err
		}

		logging.Ctx(ctx).Warn().
			Err(err).
			Str("op", opts.Op).
			Int("remaining", remaining).
			Dur("delay", delay).
			Msg("Retrying")

		if serr := sleep(ctx, delay); serr != nil {
			return v, err
		}
		remaining--
		delay *= 2
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
