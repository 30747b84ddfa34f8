// Package kvstore provides the TTL key-value store backing the throttle
// counters and lockout flags, with Redis and in-memory backends.
package kvstore

import (
	"context"
	"time"
)

// Store is a key-value store with per-key expiry. All throttle counters and
// lockout entries live behind this interface.
type Store interface {
	// Get returns the value for key and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key with the given TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
	// IncrWithTTL atomically increments the integer counter at key and
	// returns the post-increment value. The TTL is applied only when the
	// key is created, so the window is anchored at the first hit.
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}
