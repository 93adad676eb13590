package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned when a key or hash field is absent. A miss is not
// data absence: callers fall through to the authoritative source.
var ErrMiss = errors.New("cache: miss")

// Cache is a key-value store with per-key expiry plus hash-style fields
// for per-user lookups. It is ephemeral; everything in it is recoverable
// from the durable store or backup records.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error

	HGet(ctx context.Context, key, field string) ([]byte, error)
	HSet(ctx context.Context, key string, fields map[string][]byte, ttl time.Duration) error
}
