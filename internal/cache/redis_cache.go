package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"vendormall/backend/internal/domain"
)

const keyPrefix = "vendormall:report:"

func NewRedisClient(addr string, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

type RedisReportCache struct {
	client redis.UniversalClient
}

func NewRedisReportCache(client redis.UniversalClient) *RedisReportCache {
	return &RedisReportCache{client: client}
}

func (c *RedisReportCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisReportCache) Get(ctx context.Context, key string) (*domain.SalesLeaders, bool, error) {
	val, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var leaders domain.SalesLeaders
	if err := json.Unmarshal(val, &leaders); err != nil {
		return nil, false, err
	}
	return &leaders, true, nil
}

func (c *RedisReportCache) Set(ctx context.Context, key string, value *domain.SalesLeaders, ttl time.Duration) error {
	if value == nil || ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, keyPrefix+key, payload, ttl).Err()
}

func (c *RedisReportCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, 0, len(keys))
	for _, key := range keys {
		prefixed = append(prefixed, keyPrefix+key)
	}
	return c.client.Del(ctx, prefixed...).Err()
}
