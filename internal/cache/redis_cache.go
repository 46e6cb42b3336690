package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	shopscale "github.com/ZanzyTHEbar/shopscale-genkit"
)

// RedisCache shares extracted plans between server replicas.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	logger *zap.Logger
}

// NewRedisClient parses a redis:// URL, falling back to treating it as a bare address.
func NewRedisClient(url string) *redis.Client {
	opt, err := redis.ParseURL(url)
	if err != nil {
		opt = &redis.Options{Addr: url}
	}
	return redis.NewClient(opt)
}

// NewRedisCache wraps client. Keys are stored under prefix.
func NewRedisCache(client *redis.Client, ttl time.Duration, prefix string, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{client: client, ttl: ttl, prefix: prefix, logger: logger}
}

// Ping checks connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Get retrieves a plan from redis.
func (c *RedisCache) Get(ctx context.Context, key string) (*shopscale.Plan, bool, error) {
	if err := errbuilder.WrapIfContextDone(ctx, ctx.Err()); err != nil {
		return nil, false, err
	}

	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errbuilder.GenericErr("redis get", err)
	}

	var plan shopscale.Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		// A corrupt entry behaves like a miss and is overwritten on the next Set.
		c.logger.Warn("discarding undecodable cached plan", zap.String("key", key), zap.Error(err))
		return nil, false, nil
	}
	return &plan, true, nil
}

// Set stores a plan with the cache TTL.
func (c *RedisCache) Set(ctx context.Context, key string, plan *shopscale.Plan) error {
	if err := errbuilder.WrapIfContextDone(ctx, ctx.Err()); err != nil {
		return err
	}
	if plan == nil {
		return errbuilder.GenericErr("cannot cache a nil plan", nil)
	}

	data, err := json.Marshal(plan)
	if err != nil {
		return errbuilder.GenericErr("encode plan", err)
	}
	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		return errbuilder.GenericErr("redis set", err)
	}
	return nil
}

// Close releases the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
