package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	errs "transferhub/pkg/errors"
	"transferhub/storage"
)

const (
	defaultMaxRetries = 16
	defaultRetryBase  = 10 * time.Millisecond
	maxRetryDelay     = 250 * time.Millisecond
	retryJitterPct    = 50
)

// DispatchOptions bounds how often a transaction is rerun after a
// serialization conflict. Zero values take the defaults.
type DispatchOptions struct {
	MaxRetries int
	RetryBase  time.Duration
}

func (o DispatchOptions) withDefaults() DispatchOptions {
	if o.MaxRetries <= 0 {
		o.MaxRetries = defaultMaxRetries
	}
	if o.RetryBase <= 0 {
		o.RetryBase = defaultRetryBase
	}
	return o
}

// backoff spreads retries so transactions that lost the same lock do not
// collide again on the next round.
func (o DispatchOptions) backoff() retry.Backoff {
	b := retry.NewExponential(o.RetryBase)
	b = retry.WithJitterPercent(retryJitterPct, b)
	b = retry.WithCappedDuration(maxRetryDelay, b)
	return retry.WithMaxRetries(uint64(o.MaxRetries), b)
}

// withConflictRetry reruns fn while it fails with storage.ErrConflict.
// onRetry, when set, is called before every attempt after the first.
// Running out of retries yields CONFLICT; other errors are returned as is.
func withConflictRetry(ctx context.Context, opts DispatchOptions, op string, onRetry func(attempt int), fn func(ctx context.Context) error) error {
	attempt := 0
	err := retry.Do(ctx, opts.backoff(), func(ctx context.Context) error {
		attempt++
		if attempt > 1 && onRetry != nil {
			onRetry(attempt)
		}
		err := fn(ctx)
		if errors.Is(err, storage.ErrConflict) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil && errs.As(err) == nil && errors.Is(err, storage.ErrConflict) {
		return errs.Wrap(errs.CodeConflict, err, fmt.Sprintf("%s: conflict persisted after %d attempts", op, attempt))
	}
	return err
}
