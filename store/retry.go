package store

import (
	"context"
	"errors"
	"time"
)

// Retrying decorates a Store with bounded retries of idempotent operations.
//
// Only ErrUnavailable is retried, and only for Get, Set and Delete.
// CompareAndSwap is passed straight through: a swap whose reply was lost may
// already have been applied, and repeating it would turn a successful
// rotation into a reported conflict.
type Retrying struct {
	inner    Store
	attempts int
	backoff  time.Duration
}

// NewRetrying wraps inner. attempts counts the first try; values below 1 are
// treated as 1. The delay before retry n is n*backoff.
func NewRetrying(inner Store, attempts int, backoff time.Duration) *Retrying {
	if attempts < 1 {
		attempts = 1
	}
	if backoff < 0 {
		backoff = 0
	}
	return &Retrying{inner: inner, attempts: attempts, backoff: backoff}
}

func (r *Retrying) do(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = fn()
		if lastErr == nil || !errors.Is(lastErr, ErrUnavailable) {
			return lastErr
		}
		if attempt == r.attempts {
			break
		}

		if r.backoff > 0 {
			timer := time.NewTimer(time.Duration(attempt) * r.backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return lastErr
			case <-timer.C:
			}
		}
	}
	return lastErr
}

// Get implements Store.
func (r *Retrying) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		value []byte
		found bool
	)
	err := r.do(ctx, func() error {
		var err error
		value, found, err = r.inner.Get(ctx, key)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return value, found, nil
}

// Set implements Store.
func (r *Retrying) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.do(ctx, func() error {
		return r.inner.Set(ctx, key, value, ttl)
	})
}

// CompareAndSwap implements Store. It is never retried.
func (r *Retrying) CompareAndSwap(ctx context.Context, key string, expected, next []byte, ttl time.Duration) (bool, error) {
	return r.inner.CompareAndSwap(ctx, key, expected, next, ttl)
}

// Delete implements Store.
func (r *Retrying) Delete(ctx context.Context, key string) error {
	return r.do(ctx, func() error {
		return r.inner.Delete(ctx, key)
	})
}
