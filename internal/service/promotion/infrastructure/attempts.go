package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"storefront/internal/pkg/redis"
)

const attemptKeyPrefix = "promo:fail:"

// RedisAttemptCounter 记录每个客户试错促销码的次数，窗口过期后自动清零
type RedisAttemptCounter struct {
	client *redis.Client
	window time.Duration
}

func NewRedisAttemptCounter(client *redis.Client, window time.Duration) *RedisAttemptCounter {
	return &RedisAttemptCounter{client: client, window: window}
}

// Failures 返回当前窗口内的失败次数
func (c *RedisAttemptCounter) Failures(ctx context.Context, customerID string) (int64, error) {
	n, err := c.client.GetClient().Get(ctx, attemptKeyPrefix+customerID).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, errors.Wrap(err, "get promo failures")
}

// RecordFailure 自增并在第一次失败时设置窗口
func (c *RedisAttemptCounter) RecordFailure(ctx context.Context, customerID string) error {
	key := attemptKeyPrefix + customerID
	rdb := c.client.GetClient()
	n, err := rdb.Incr(ctx, key).Result()
	if err != nil {
		return errors.Wrap(err, "record promo failure")
	}
	if n == 1 {
		return errors.Wrap(rdb.Expire(ctx, key, c.window).Err(), "expire promo failures")
	}
	return nil
}
