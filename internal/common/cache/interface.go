// Package cache wraps Redis for the read-through caches, rate counters,
// idempotency keys and submit locks of the grading service.
package cache

import (
	"context"
	"time"
)

type Cache interface {
	KV
	Locker

	Ping(ctx context.Context) error
	Close() error
}

type KV interface {
	// Get reports a missing key as "" with no error.
	Get(ctx context.Context, key string) (string, error)
	// Set stores value; ttl zero keeps it forever.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)
	// IncrWithin increments a fixed-window counter. The window starts with
	// the first increment and the counter expires with it.
	IncrWithin(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Locker is an owner-checked lease: only the token that took a key can
// release it.
type Locker interface {
	TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key, token string) error
}
