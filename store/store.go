package store

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable reports that the backing store could not be reached or
// answered with an error. It never means "key absent".
var ErrUnavailable = errors.New("store unavailable")

// Store is the consumed key-value contract.
//
// CompareAndSwap replaces the value at key with next only when the current
// value equals expected. A nil expected means "create only if absent". A ttl
// <= 0 keeps the remaining TTL of the existing key. The swap is atomic with
// respect to every other Store call on the same key.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	CompareAndSwap(ctx context.Context, key string, expected, next []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}
