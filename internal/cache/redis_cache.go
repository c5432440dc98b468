package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"bakkal/backoffice/internal/domain"
)

const keyPrefix = "backoffice:category-discounts:"

type RedisDiscountCache struct {
	client *redis.Client
}

func NewRedisDiscountCache(addr string, password string, db int) *RedisDiscountCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisDiscountCache{client: client}
}

func (c *RedisDiscountCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisDiscountCache) Close() error {
	return c.client.Close()
}

func (c *RedisDiscountCache) Get(ctx context.Context, partition string) ([]domain.CategoryDiscount, bool, error) {
	val, err := c.client.Get(ctx, keyPrefix+partition).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var discounts []domain.CategoryDiscount
	if err := json.Unmarshal([]byte(val), &discounts); err != nil {
		return nil, false, err
	}
	return discounts, true, nil
}

func (c *RedisDiscountCache) Set(ctx context.Context, partition string, value []domain.CategoryDiscount, ttl time.Duration) error {
	if value == nil {
		value = []domain.CategoryDiscount{}
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, keyPrefix+partition, payload, ttl).Err()
}

func (c *RedisDiscountCache) Invalidate(ctx context.Context, partition string) error {
	return c.client.Del(ctx, keyPrefix+partition).Err()
}
