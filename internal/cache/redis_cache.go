package cache

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const valuationKeyPrefix = "facturepro:valuation:"

type RedisValuationCache struct {
	client *redis.Client
	prefix string
}

func NewRedisValuationCache(addr string, password string, db int) *RedisValuationCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisValuationCache{client: client, prefix: valuationKeyPrefix}
}

func (c *RedisValuationCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisValuationCache) Close() error {
	return c.client.Close()
}

func (c *RedisValuationCache) Get(ctx context.Context, date string) (decimal.Decimal, bool, error) {
	val, err := c.client.Get(ctx, c.prefix+date).Result()
	if err == redis.Nil {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}

	value, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, false, err
	}
	return value, true, nil
}

func (c *RedisValuationCache) Set(ctx context.Context, date string, value decimal.Decimal, ttl time.Duration) error {
	return c.client.Set(ctx, c.prefix+date, value.String(), ttl).Err()
}

// Invalidate drops every cached date. Keys are found with SCAN so large
// keyspaces are not blocked.
func (c *RedisValuationCache) Invalidate(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	batch := make([]string, 0, 100)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return c.client.Del(ctx, batch...).Err()
	}
	return nil
}
