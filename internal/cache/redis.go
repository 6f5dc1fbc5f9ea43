package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// invalidateScanCount is the SCAN batch size used during prefix invalidation.
const invalidateScanCount = 500

// RedisCache is a Cache backed by a Redis server. Every operation carries a
// bounded timeout so a slow or unreachable cache cannot stall a request
// beyond opTimeout.
type RedisCache struct {
	client     *redis.Client
	defaultTTL time.Duration
	opTimeout  time.Duration
}

// NewRedisCache creates a Redis-backed cache. defaultTTL <= 0 falls back to
// DefaultTTL; opTimeout <= 0 falls back to one second.
func NewRedisCache(addr string, defaultTTL, opTimeout time.Duration) *RedisCache {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	if opTimeout <= 0 {
		opTimeout = time.Second
	}
	return &RedisCache{
		client: redis.NewClient(&redis.Options{
			Addr:         addr,
			DialTimeout:  opTimeout,
			ReadTimeout:  opTimeout,
			WriteTimeout: opTimeout,
		}),
		defaultTTL: defaultTTL,
		opTimeout:  opTimeout,
	}
}

// Get retrieves a value. Returns ErrMiss when the key is absent.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}
	return val, nil
}

// Set stores a value with the given TTL (defaultTTL when ttl <= 0).
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Delete removes a single key.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// InvalidateByPrefix removes all keys starting with prefix using SCAN so the
// server is never blocked by a KEYS call. The sweep runs to completion:
// opTimeout bounds each SCAN/DEL round, not the whole loop, so a large
// keyspace cannot leave a logical invalidation half finished.
func (c *RedisCache) InvalidateByPrefix(ctx context.Context, prefix string) error {
	match := escapeMatch(prefix) + "*"

	var cursor uint64
	for {
		next, err := c.scanRound(ctx, cursor, match)
		if err != nil {
			return err
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// scanRound performs one SCAN iteration and deletes its matches under a
// fresh op timeout.
func (c *RedisCache) scanRound(ctx context.Context, cursor uint64, match string) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	keys, next, err := c.client.Scan(ctx, cursor, match, invalidateScanCount).Result()
	if err != nil {
		return 0, fmt.Errorf("cache scan: %w", err)
	}
	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return 0, fmt.Errorf("cache delete batch: %w", err)
		}
	}
	return next, nil
}

// escapeMatch escapes Redis glob metacharacters so a prefix containing *, ?,
// or bracket characters matches literally.
func escapeMatch(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Close releases the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
