package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/redis"
	"storefront/internal/service/catalog/domain"
)

const productCachePrefix = "catalog:product:"

// RedisProductCache 用 JSON 字符串缓存商品，读写失败都只当作未命中
type RedisProductCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisProductCache(client *redis.Client, ttl time.Duration) *RedisProductCache {
	return &RedisProductCache{client: client, ttl: ttl}
}

func (c *RedisProductCache) Get(ctx context.Context, key string) (*domain.Product, bool) {
	raw, err := c.client.GetClient().Get(ctx, productCachePrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("product cache read failed")
		}
		return nil, false
	}
	var p domain.Product
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, false
	}
	return &p, true
}

func (c *RedisProductCache) Set(ctx context.Context, key string, p *domain.Product) {
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := c.client.GetClient().Set(ctx, productCachePrefix+key, raw, c.ttl).Err(); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("product cache write failed")
	}
}

func (c *RedisProductCache) Invalidate(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	// 集群模式下多 key 可能跨槽，逐个删除
	pipe := c.client.GetClient().Pipeline()
	for _, k := range keys {
		pipe.Del(ctx, productCachePrefix+k)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Strs("keys", keys).Msg("product cache invalidation failed")
	}
}
