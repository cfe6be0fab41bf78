package engine

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/liamcoop/rulecheck/internal/logger"
)

const redisOpTimeout = 2 * time.Second

// RedisRulesetCache stores the active ruleset list as one JSON value so
// several server replicas share it. Redis errors degrade to cache misses.
type RedisRulesetCache struct {
	client redis.UniversalClient
	key    string
	config CacheConfig
}

// NewRedisRulesetCache caches under key. Use one key per tenant.
func NewRedisRulesetCache(client redis.UniversalClient, key string, config CacheConfig) *RedisRulesetCache {
	return &RedisRulesetCache{
		client: client,
		key:    key,
		config: config,
	}
}

// ConnectRedis parses url and pings the server before returning a client.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// Get returns nil on a miss, an expired key or any Redis error
func (c *RedisRulesetCache) Get() []*RulesetRecord {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	raw, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		logger.Warn("ruleset cache read failed", "key", c.key, "error", err)
		return nil
	}

	var records []*RulesetRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		logger.Warn("ruleset cache holds undecodable data", "key", c.key, "error", err)
		return nil
	}
	if records == nil {
		records = []*RulesetRecord{}
	}
	return records
}

// Set stores records with the configured TTL
func (c *RedisRulesetCache) Set(records []*RulesetRecord) {
	if records == nil {
		records = []*RulesetRecord{}
	}
	raw, err := json.Marshal(records)
	if err != nil {
		logger.Warn("ruleset cache encode failed", "key", c.key, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := c.client.Set(ctx, c.key, raw, c.config.TTL).Err(); err != nil {
		logger.Warn("ruleset cache write failed", "key", c.key, "error", err)
	}
}

// Invalidate deletes the key
func (c *RedisRulesetCache) Invalidate() {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		logger.Warn("ruleset cache invalidation failed", "key", c.key, "error", err)
	}
}

// IsValid reports whether the key exists
func (c *RedisRulesetCache) IsValid() bool {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	n, err := c.client.Exists(ctx, c.key).Result()
	return err == nil && n > 0
}
