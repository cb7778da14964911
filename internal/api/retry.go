package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultMaxAttempts  = 3
	DefaultInitialDelay = time.Second
)

// RetryOptions tunes WithRetry. Zero values take the defaults above.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
}

func (o RetryOptions) withDefaults() RetryOptions {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = DefaultInitialDelay
	}
	return o
}

// WithRetry runs op up to MaxAttempts times with doubling delay between
// attempts (initial, 2x, 4x, ...). Failures that Retryable rejects propagate
// after the first attempt; once attempts are exhausted the last observed
// error is returned unchanged. Cancelling ctx interrupts the delay.
func WithRetry[T any](ctx context.Context, log *slog.Logger, name string, op func(context.Context) (T, error), opts RetryOptions) (T, error) {
	opts = opts.withDefaults()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = opts.InitialDelay
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxInterval = time.Hour
	bo.MaxElapsedTime = 0

	var result T
	attempt := 0
	operation := func() error {
		attempt++
		v, err := op(ctx)
		if err != nil {
			if !Retryable(err) {
				return backoff.Permanent(err)
			}
			log.Debug("retrying after failure",
				slog.String("operation", name),
				slog.Int("attempt", attempt),
				slog.Any("error", err))
			return err
		}
		result = v
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(opts.MaxAttempts-1)), ctx))
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// WithRetryNoResult is WithRetry for operations that return only an error.
func WithRetryNoResult(ctx context.Context, log *slog.Logger, name string, op func(context.Context) error, opts RetryOptions) error {
	_, err := WithRetry(ctx, log, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, opts)
	return err
}
