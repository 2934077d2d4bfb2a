package dedup

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyPrefix  = "webhook:seen:"
	defaultTTL = 30 * 24 * time.Hour
)

var _ Cache = (*redisCache)(nil)

// redisCache shares dedup state between processes through the same
// redis the task queue already runs on. Redis errors degrade to cache
// misses; they never fail the webhook call.
type redisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedis(client *redis.Client, logger *zap.Logger, opts ...RedisOption) Cache {
	c := &redisCache{
		client: client,
		ttl:    defaultTTL,
		logger: logger,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type RedisOption func(*redisCache)

func WithTTL(ttl time.Duration) RedisOption {
	return func(c *redisCache) {
		c.ttl = ttl
	}
}

func (c *redisCache) Seen(ctx context.Context, key string) bool {
	n, err := c.client.Exists(ctx, keyPrefix+key).Result()
	if err != nil {
		c.logger.Warn("dedup cache lookup failed", zap.String("key", key), zap.Error(err))
		return false
	}

	return n > 0
}

func (c *redisCache) Mark(ctx context.Context, key string) {
	if err := c.client.Set(ctx, keyPrefix+key, 1, c.ttl).Err(); err != nil {
		c.logger.Warn("dedup cache mark failed", zap.String("key", key), zap.Error(err))
	}
}
