// Package retry re-runs operations that failed for a transient reason, with
// exponential backoff and jitter.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy bounds one retried operation.
type Policy struct {
	// MaxAttempts counts the first attempt. Values below 1 mean 1.
	MaxAttempts int

	InitialDelay time.Duration
	MaxDelay     time.Duration

	// Jitter randomizes each delay by up to ±Jitter of its value.
	Jitter float64

	// Transient reports whether an error is worth another attempt.
	// Nil retries every error.
	Transient func(error) bool

	// OnRetry is called before sleeping.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Connect is used when opening a pool against a server that may still be
// starting.
func Connect() Policy {
	return Policy{
		MaxAttempts:  5,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     3 * time.Second,
		Jitter:       0.2,
	}
}

// Transaction is used for transactions aborted by a serialization failure
// or a deadlock.
func Transaction() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 20 * time.Millisecond,
		MaxDelay:     500 * time.Millisecond,
		Jitter:       0.5,
	}
}

// Permanent stops retrying and returns err as is.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a non-transient error or runs out of
// attempts, and returns op's last error. When ctx is done first, the context
// error is returned.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	_, err := DoWithData(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoWithData is Do for operations that produce a value.
func DoWithData[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	b := backoff.NewExponentialBackOff()
	if p.InitialDelay > 0 {
		b.InitialInterval = p.InitialDelay
	}
	if p.MaxDelay > 0 {
		b.MaxInterval = p.MaxDelay
	}
	b.RandomizationFactor = p.Jitter

	attempt := 0
	var last error
	res, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		last = err

		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return v, err
		}
		if p.Transient != nil && !p.Transient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.MaxAttempts)),
		backoff.WithNotify(func(err error, d time.Duration) {
			if p.OnRetry != nil {
				p.OnRetry(attempt, err, d)
			}
		}),
	)
	if err != nil && last != nil && ctx.Err() == nil {
		var perm *backoff.PermanentError
		if errors.As(last, &perm) {
			return res, perm.Err
		}
		return res, last
	}
	return res, err
}
