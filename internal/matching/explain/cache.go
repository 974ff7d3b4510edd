// internal/matching/explain/cache.go
package explain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores generated explanations by prompt.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string) error
}

const cacheKeyPrefix = "match:explanation:"

// CacheKey derives a stable key from the prompt text.
func CacheKey(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisCache(client redis.Cmdable, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// Get treats every error, including a miss, as absent.
func (c *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	val, err := c.client.Get(ctx, key).Result()
	if err != nil || val == "" {
		return "", false
	}
	return val, true
}

func (c *RedisCache) Set(ctx context.Context, key, value string) error {
	return c.client.Set(ctx, key, value, c.ttl).Err()
}
