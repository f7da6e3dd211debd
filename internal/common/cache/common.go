package cache

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"time"
)

// missMarker is stored for lookups that found nothing, so a stream of
// requests for a deleted task does not reach MySQL every time.
const missMarker = "\x00miss"

// Loader is a read-through cache for one value type, stored as JSON.
// A nil Cache turns every Load into a direct call to fetch.
type Loader[T any] struct {
	Cache    Cache
	TTL      time.Duration
	EmptyTTL time.Duration
	// IsEmpty reports values cached as a miss. Nil means nothing is.
	IsEmpty func(T) bool
}

// Load returns the cached value for key or calls fetch and caches its result.
// Cache failures and undecodable entries fall through to fetch; fetch errors
// are returned and never cached.
func (l Loader[T]) Load(ctx context.Context, key string, fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	if l.Cache != nil {
		if raw, err := l.Cache.Get(ctx, key); err == nil && raw != "" {
			if raw == missMarker {
				return zero, nil
			}
			var v T
			if json.Unmarshal([]byte(raw), &v) == nil {
				return v, nil
			}
		}
	}

	v, err := fetch(ctx)
	if err != nil || l.Cache == nil {
		return v, err
	}
	if l.IsEmpty != nil && l.IsEmpty(v) {
		_ = l.Cache.Set(ctx, key, missMarker, JitterTTL(l.EmptyTTL))
		return v, nil
	}
	if data, err := json.Marshal(v); err == nil {
		_ = l.Cache.Set(ctx, key, data, JitterTTL(l.TTL))
	}
	return v, nil
}

// Forget drops key so the next Load refetches.
func (l Loader[T]) Forget(ctx context.Context, key string) error {
	if l.Cache == nil {
		return nil
	}
	return l.Cache.Del(ctx, key)
}

// JitterTTL trims up to a tenth off ttl so keys written together expire
// apart.
func JitterTTL(ttl time.Duration) time.Duration {
	spread := int64(ttl / 10)
	if spread <= 0 {
		return ttl
	}
	return ttl - time.Duration(rand.Int64N(spread+1))
}
