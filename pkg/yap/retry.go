package yap

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryBusy wraps operation with exponential backoff, retrying only on
// ErrBusy (write lane contention or a SQLite-level busy/locked report
// that surfaced past the pool's own busy_timeout). Any other error, or
// context cancellation, stops the retry loop immediately.
func RetryBusy(ctx context.Context, operation func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 25 * time.Millisecond
	b.MaxInterval = 1 * time.Second
	b.MaxElapsedTime = 5 * time.Second
	b.RandomizationFactor = 0.1

	return backoff.Retry(func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}

		err := operation()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrBusy) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(b, ctx))
}
