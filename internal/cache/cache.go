package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"finboard/internal/client"
	"finboard/internal/config"
	"finboard/internal/util"
)

// Cache is a best-effort read-through layer over Redis. Whether a backend
// exists is decided once at construction; after that callers never branch.
// Every store failure is absorbed into a miss or a no-op and logged, so a
// degraded Redis slows the service down but never breaks it.
type Cache struct {
	redis       *client.RedisClient
	defaultTTL  time.Duration
	attempts    int
	backoffBase time.Duration
	backoffMax  time.Duration
	enabled     bool
}

func New(redisClient *client.RedisClient, cfg *config.Config) *Cache {
	if redisClient == nil {
		return Disabled()
	}
	return &Cache{
		redis:       redisClient,
		defaultTTL:  cfg.Cache.DefaultTTL,
		attempts:    cfg.Cache.RetryAttempts,
		backoffBase: cfg.Cache.RetryBackoffBase,
		backoffMax:  cfg.Cache.RetryBackoffMax,
		enabled:     true,
	}
}

// Disabled returns a cache with no backend. Reads miss, writes vanish.
func Disabled() *Cache {
	return &Cache{enabled: false}
}

func (c *Cache) Enabled() bool {
	return c.enabled
}

// Get returns the cached value and whether it was present.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	if !c.enabled {
		return "", false
	}

	var val string
	err := c.withRetry(ctx, func() error {
		var err error
		val, err = c.redis.Get(ctx, key)
		return err
	})
	if err != nil {
		if !errors.Is(err, client.ErrKeyNotFound) {
			util.Warn("Cache get failed, treating as miss",
				zap.String("key", key),
				zap.Error(err))
		}
		return "", false
	}

	return val, true
}

// GetJSON unmarshals the cached value into dest. A corrupt entry counts as
// a miss.
func (c *Cache) GetJSON(ctx context.Context, key string, dest interface{}) bool {
	raw, ok := c.Get(ctx, key)
	if !ok {
		return false
	}

	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		util.Warn("Cache entry is not valid JSON, treating as miss",
			zap.String("key", key),
			zap.Error(err))
		return false
	}

	return true
}

// Set stores a value. A non-positive ttl selects the default.
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if !c.enabled {
		return
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	err := c.withRetry(ctx, func() error {
		return c.redis.Set(ctx, key, value, ttl)
	})
	if err != nil {
		util.Warn("Cache set failed, skipping",
			zap.String("key", key),
			zap.Error(err))
	}
}

func (c *Cache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if !c.enabled {
		return
	}

	raw, err := json.Marshal(value)
	if err != nil {
		util.Warn("Cache set skipped, value not serializable",
			zap.String("key", key),
			zap.Error(err))
		return
	}

	c.Set(ctx, key, string(raw), ttl)
}

// Delete removes keys. Missing keys are not an error.
func (c *Cache) Delete(ctx context.Context, keys ...string) {
	if !c.enabled || len(keys) == 0 {
		return
	}

	err := c.withRetry(ctx, func() error {
		return c.redis.Del(ctx, keys...)
	})
	if err != nil {
		util.Warn("Cache delete failed, skipping",
			zap.Int("keys", len(keys)),
			zap.Error(err))
	}
}

// DeleteByPattern removes every key matching a Redis glob pattern and
// returns how many went away.
func (c *Cache) DeleteByPattern(ctx context.Context, pattern string) int {
	if !c.enabled {
		return 0
	}

	var keys []string
	err := c.withRetry(ctx, func() error {
		var err error
		keys, err = c.redis.ScanKeys(ctx, pattern, 100)
		return err
	})
	if err != nil {
		util.Warn("Cache pattern scan failed, skipping",
			zap.String("pattern", pattern),
			zap.Error(err))
		return 0
	}

	if len(keys) == 0 {
		return 0
	}

	err = c.withRetry(ctx, func() error {
		return c.redis.Del(ctx, keys...)
	})
	if err != nil {
		util.Warn("Cache pattern delete failed, skipping",
			zap.String("pattern", pattern),
			zap.Error(err))
		return 0
	}

	util.Info("Cache keys invalidated",
		zap.String("pattern", pattern),
		zap.Int("deleted", len(keys)))

	return len(keys)
}

// withRetry runs fn up to the configured attempt count, sleeping
// attempt*base between tries, capped. A clean miss is returned immediately
// since retrying cannot change it.
func (c *Cache) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, client.ErrKeyNotFound) {
			return err
		}
		lastErr = err

		if attempt < c.attempts {
			backoff := time.Duration(attempt) * c.backoffBase
			if backoff > c.backoffMax {
				backoff = c.backoffMax
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}
