package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrMiss is returned by Backend.Get when the key is absent or expired.
	ErrMiss = errors.New("cache miss")

	// ErrStoreUnavailable wraps backend failures surfaced to callers.
	ErrStoreUnavailable = errors.New("cache backend unavailable")
)

// Backend stores opaque values with a time to live.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
