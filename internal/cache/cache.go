// Package cache provides the read-through keyed cache in front of the sync
// read paths. The cache is a derived, disposable optimization: every caller
// must behave correctly (just slower) when it is entirely unavailable, so
// cache failures degrade to direct store access and are never surfaced.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is not present. A miss is an
// expected outcome, distinct from the cache being unreachable.
var ErrMiss = errors.New("cache miss")

// DefaultTTL is used when Set is called with a non-positive TTL.
const DefaultTTL = time.Hour

// Cache is a keyed byte cache with TTL-bound entries and prefix
// invalidation.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. ttl <= 0 selects DefaultTTL; entries
	// without an expiry are not allowed.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error

	// InvalidateByPrefix removes every key starting with prefix. It does
	// not return until all matching keys present at call time are gone, so
	// callers never observe a partially-invalidated state for one logical
	// invalidation.
	InvalidateByPrefix(ctx context.Context, prefix string) error
}
