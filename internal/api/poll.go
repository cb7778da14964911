package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// errPending marks a snapshot that is neither done nor failed, telling the
// backoff loop to keep going.
var errPending = errors.New("pending")

// Poller repeatedly fetches a remote snapshot until Success fires, Failure
// returns a terminal error, attempts run out, or ctx is cancelled. The
// interval between polls grows by 1.5x per attempt up to MaxInterval.
//
// Success is always evaluated before Failure, so a snapshot satisfying both
// counts as success. An error from Poll itself aborts the loop: transient
// retries belong to the individual call sites, not the poll loop.
type Poller[T any] struct {
	// Name labels the operation in errors and logs.
	Name    string
	Poll    func(context.Context) (T, error)
	Success func(T) bool
	// Failure maps a terminally failed snapshot to its error, nil otherwise.
	Failure func(T) error
	// Observe, when set, runs once per poll with the snapshot and the
	// 1-based attempt index.
	Observe func(T, int)

	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Run executes the poll loop. Exhausting MaxAttempts yields a
// *PollTimeoutError carrying the attempt count.
func (p Poller[T]) Run(ctx context.Context) (T, error) {
	var zero T
	if p.Poll == nil || p.Success == nil || p.MaxAttempts <= 0 {
		return zero, fmt.Errorf("poller %q misconfigured", p.Name)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialInterval
	bo.RandomizationFactor = 0
	bo.Multiplier = 1.5
	bo.MaxInterval = p.MaxInterval
	bo.MaxElapsedTime = 0

	var result T
	attempt := 0
	operation := func() error {
		attempt++
		snap, err := p.Poll(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		if p.Observe != nil {
			p.Observe(snap, attempt)
		}
		if p.Success(snap) {
			result = snap
			return nil
		}
		if p.Failure != nil {
			if ferr := p.Failure(snap); ferr != nil {
				return backoff.Permanent(ferr)
			}
		}
		return errPending
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(p.MaxAttempts-1)), ctx))
	if err != nil {
		if errors.Is(err, errPending) {
			return zero, &PollTimeoutError{Operation: p.Name, Attempts: attempt}
		}
		return zero, err
	}
	return result, nil
}
