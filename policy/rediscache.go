package policy

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vyrodovalexey/avaccess/observability"
)

// defaultRedisKeyPrefix prefixes decision cache keys in redis.
const defaultRedisKeyPrefix = "avaccess:decision:"

// redisDecisionCache implements DecisionCache backed by redis.
type redisDecisionCache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    observability.Logger
	metrics   *Metrics
}

// RedisCacheOption is a functional option for the redis cache.
type RedisCacheOption func(*redisDecisionCache)

// WithRedisCacheLogger sets the logger.
func WithRedisCacheLogger(logger observability.Logger) RedisCacheOption {
	return func(c *redisDecisionCache) {
		c.logger = logger
	}
}

// WithRedisCacheMetrics sets the metrics.
func WithRedisCacheMetrics(metrics *Metrics) RedisCacheOption {
	return func(c *redisDecisionCache) {
		c.metrics = metrics
	}
}

// WithRedisKeyPrefix sets the key prefix.
func WithRedisKeyPrefix(prefix string) RedisCacheOption {
	return func(c *redisDecisionCache) {
		c.keyPrefix = prefix
	}
}

// NewRedisDecisionCache creates a redis-backed decision cache. The cache
// takes ownership of the client and closes it on Close.
func NewRedisDecisionCache(client *redis.Client, ttl time.Duration, opts ...RedisCacheOption) DecisionCache {
	c := &redisDecisionCache{
		client:    client,
		keyPrefix: defaultRedisKeyPrefix,
		ttl:       ttl,
		logger:    observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Get retrieves a cached decision.
func (c *redisDecisionCache) Get(ctx context.Context, key *CacheKey) (*CachedDecision, bool) {
	data, err := c.client.Get(ctx, c.keyPrefix+key.String()).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("decision cache read failed", observability.Error(err))
		}
		if c.metrics != nil {
			c.metrics.RecordCacheMiss()
		}
		return nil, false
	}

	var decision CachedDecision
	if err := json.Unmarshal(data, &decision); err != nil {
		c.logger.Warn("decision cache entry malformed", observability.Error(err))
		if c.metrics != nil {
			c.metrics.RecordCacheMiss()
		}
		return nil, false
	}

	if c.metrics != nil {
		c.metrics.RecordCacheHit()
	}
	return &decision, true
}

// Set stores a decision in the cache.
func (c *redisDecisionCache) Set(ctx context.Context, key *CacheKey, decision *CachedDecision) {
	now := time.Now()
	decision.CachedAt = now
	decision.ExpiresAt = now.Add(c.ttl)

	data, err := json.Marshal(decision)
	if err != nil {
		c.logger.Warn("decision cache encode failed", observability.Error(err))
		return
	}

	if err := c.client.Set(ctx, c.keyPrefix+key.String(), data, c.ttl).Err(); err != nil {
		c.logger.Warn("decision cache write failed", observability.Error(err))
	}
}

// Delete removes a decision from the cache.
func (c *redisDecisionCache) Delete(ctx context.Context, key *CacheKey) {
	if err := c.client.Del(ctx, c.keyPrefix+key.String()).Err(); err != nil {
		c.logger.Warn("decision cache delete failed", observability.Error(err))
	}
}

// Clear removes all cached decisions under the key prefix.
func (c *redisDecisionCache) Clear(ctx context.Context) {
	iter := c.client.Scan(ctx, 0, c.keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			c.logger.Warn("decision cache delete failed", observability.Error(err))
		}
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("decision cache scan failed", observability.Error(err))
	}
}

// Close closes the underlying client.
func (c *redisDecisionCache) Close() error {
	return c.client.Close()
}

// Ensure redisDecisionCache implements DecisionCache.
var _ DecisionCache = (*redisDecisionCache)(nil)
