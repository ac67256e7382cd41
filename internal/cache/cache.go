package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

const resultPrefix = "hrbot:result:"

// Cache stores JSON encoded responses in Redis
type Cache struct {
	redis *redis.Client
	ttl   time.Duration
}

// New creates a cache with the given default TTL. A zero TTL disables caching.
func New(redisClient *redis.Client, ttl time.Duration) *Cache {
	return &Cache{
		redis: redisClient,
		ttl:   ttl,
	}
}

// ResultKey builds the cache key for a rendered query over one dataset version.
// Keys change whenever the dataset content changes.
func ResultKey(fingerprint, sql string) string {
	sum := sha256.Sum256([]byte(sql))
	return resultPrefix + shortFingerprint(fingerprint) + ":" + hex.EncodeToString(sum[:16])
}

func shortFingerprint(fingerprint string) string {
	fingerprint = strings.TrimPrefix(fingerprint, "sha256:")
	if len(fingerprint) > 16 {
		return fingerprint[:16]
	}
	return fingerprint
}

// Get loads the value stored under key into dest. It reports false on a miss.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if c == nil || c.ttl <= 0 {
		return false, nil
	}

	data, err := c.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read cache: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		// Drop entries we can no longer decode
		c.redis.Del(ctx, key)
		return false, fmt.Errorf("failed to unmarshal cached value: %w", err)
	}

	return true, nil
}

// Set stores value under key for the cache TTL
func (c *Cache) Set(ctx context.Context, key string, value interface{}) error {
	if c == nil || c.ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	return nil
}

// Delete removes key from the cache
func (c *Cache) Delete(ctx context.Context, key string) error {
	if c == nil {
		return nil
	}
	return c.redis.Del(ctx, key).Err()
}

// Ping checks the Redis connection
func (c *Cache) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}
