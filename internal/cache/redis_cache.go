package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// CacheStats tracks cache performance metrics
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
	mu     sync.RWMutex
}

// RedisJSONCache stores JSON-encoded read responses in Redis.
type RedisJSONCache struct {
	redis  *redis.Client
	ttl    time.Duration
	stats  *CacheStats
	prefix string
	logger logrus.FieldLogger
}

// NewRedisJSONCache creates a new Redis-based response cache
func NewRedisJSONCache(redisClient *redis.Client, ttl time.Duration, logger logrus.FieldLogger) *RedisJSONCache {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RedisJSONCache{
		redis:  redisClient,
		ttl:    ttl,
		stats:  &CacheStats{},
		prefix: "cryptopulse:",
		logger: logger,
	}
}

// Get decodes the cached value for key into dest. Redis failures count as misses.
func (c *RedisJSONCache) Get(ctx context.Context, key string, dest interface{}) bool {
	data, err := c.redis.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.record(func(s *CacheStats) { s.Misses++ })
		return false
	}
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Redis error reading cache entry")
		c.record(func(s *CacheStats) { s.Misses++ })
		return false
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Failed to decode cache entry")
		c.record(func(s *CacheStats) { s.Misses++ })
		return false
	}

	c.record(func(s *CacheStats) { s.Hits++ })
	return true
}

// Set stores value under key with the cache TTL
func (c *RedisJSONCache) Set(ctx context.Context, key string, value interface{}) error {
	return c.SetWithTTL(ctx, key, value, c.ttl)
}

// SetWithTTL stores value under key with an explicit TTL
func (c *RedisJSONCache) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry %s: %w", key, err)
	}
	if err := c.redis.Set(ctx, c.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store cache entry %s: %w", key, err)
	}
	c.record(func(s *CacheStats) { s.Sets++ })
	return nil
}

// Delete removes a single entry
func (c *RedisJSONCache) Delete(ctx context.Context, key string) error {
	return c.redis.Del(ctx, c.prefix+key).Err()
}

// Clear removes every entry owned by this cache
func (c *RedisJSONCache) Clear(ctx context.Context) error {
	var keys []string
	iter := c.redis.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("error scanning cache keys: %w", err)
	}

	if len(keys) == 0 {
		return nil
	}

	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("error clearing cache: %w", err)
	}

	c.logger.WithField("count", len(keys)).Info("Cleared response cache entries")
	return nil
}

// GetStats returns current cache statistics
func (c *RedisJSONCache) GetStats() CacheStats {
	c.stats.mu.RLock()
	defer c.stats.mu.RUnlock()
	return CacheStats{
		Hits:   c.stats.Hits,
		Misses: c.stats.Misses,
		Sets:   c.stats.Sets,
	}
}

func (c *RedisJSONCache) record(update func(s *CacheStats)) {
	c.stats.mu.Lock()
	update(c.stats)
	c.stats.mu.Unlock()
}
