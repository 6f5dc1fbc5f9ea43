package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"
)

// GetOrSet implements the read-through pattern: return the cached value for
// key, or run the loader, cache its result, and return it. Any cache failure
// (unreachable server, timeout, corrupt entry) degrades to calling the
// loader directly; the caller only ever sees loader errors.
func GetOrSet[T any](ctx context.Context, c Cache, key string, ttl time.Duration, loader func(context.Context) (T, error)) (T, error) {
	var zero T
	if c == nil {
		return loader(ctx)
	}

	cached, err := c.Get(ctx, key)
	if err == nil {
		var value T
		if err := json.Unmarshal(cached, &value); err == nil {
			return value, nil
		}
		// Corrupt entry: drop it and fall through to the loader.
		if err := c.Delete(ctx, key); err != nil {
			slog.Debug("cache delete failed", "component", "cache", "key", key, "error", err)
		}
	} else if !errors.Is(err, ErrMiss) {
		slog.Debug("cache unavailable, reading from store",
			"component", "cache",
			"key", key,
			"error", err,
		)
	}

	value, err := loader(ctx)
	if err != nil {
		return zero, err
	}

	if encoded, err := json.Marshal(value); err == nil {
		if err := c.Set(ctx, key, encoded, ttl); err != nil {
			slog.Debug("cache set failed", "component", "cache", "key", key, "error", err)
		}
	}

	return value, nil
}
