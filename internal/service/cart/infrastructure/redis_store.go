package infrastructure

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"storefront/internal/pkg/redis"
	"storefront/internal/service/cart/domain"
)

const (
	scriptCartUpsert = "cart_upsert"
	cartTTL          = 30 * 24 * time.Hour
)

// cartUpsertLua 在一个脚本里完成数量上限和行数上限检查，避免并发加购越界
// 返回 -1 表示数量超限，-2 表示行数超限
const cartUpsertLua = `
local key = KEYS[1]
local field = ARGV[1]
local qty = tonumber(ARGV[2])
local mode = ARGV[3]
local maxQty = tonumber(ARGV[4])
local maxLines = tonumber(ARGV[5])
local ttl = tonumber(ARGV[6])

local cur = tonumber(redis.call('HGET', key, field) or '0')
if cur == 0 and redis.call('HLEN', key) >= maxLines then
  return -2
end
local nextQty = qty
if mode == 'add' then
  nextQty = cur + qty
end
if nextQty > maxQty then
  return -1
end
redis.call('HSET', key, field, nextQty)
redis.call('EXPIRE', key, ttl)
return nextQty
`

// RedisStore 用 Redis hash 保存购物车，key 为 cart:{customerID}
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) (*RedisStore, error) {
	if err := client.LoadScriptFromContent(scriptCartUpsert, cartUpsertLua); err != nil {
		return nil, err
	}
	return &RedisStore{client: client}, nil
}

func cartKey(customerID string) string { return "cart:" + customerID }

func (s *RedisStore) Items(ctx context.Context, customerID string) (map[string]int, error) {
	raw, err := s.client.GetClient().HGetAll(ctx, cartKey(customerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read cart: %w", err)
	}
	items := make(map[string]int, len(raw))
	for productID, v := range raw {
		qty, err := strconv.Atoi(v)
		if err != nil || qty <= 0 {
			continue
		}
		items[productID] = qty
	}
	return items, nil
}

func (s *RedisStore) upsert(ctx context.Context, customerID, productID string, qty int, mode string) (int, error) {
	res, err := s.client.RunScript(ctx, scriptCartUpsert, []string{cartKey(customerID)},
		productID, qty, mode, domain.MaxLineQuantity, domain.MaxLines, int64(cartTTL/time.Second))
	if err != nil {
		return 0, fmt.Errorf("update cart: %w", err)
	}
	n, ok := res.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected script result %T", res)
	}
	switch n {
	case -1:
		return 0, domain.ErrQuantityLimit
	case -2:
		return 0, domain.ErrTooManyLines
	}
	return int(n), nil
}

func (s *RedisStore) Add(ctx context.Context, customerID, productID string, qty int) (int, error) {
	return s.upsert(ctx, customerID, productID, qty, "add")
}

func (s *RedisStore) Set(ctx context.Context, customerID, productID string, qty int) error {
	_, err := s.upsert(ctx, customerID, productID, qty, "set")
	return err
}

func (s *RedisStore) Remove(ctx context.Context, customerID, productID string) (bool, error) {
	n, err := s.client.GetClient().HDel(ctx, cartKey(customerID), productID).Result()
	if err != nil {
		return false, fmt.Errorf("remove cart item: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) Clear(ctx context.Context, customerID string) error {
	if err := s.client.GetClient().Del(ctx, cartKey(customerID)).Err(); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
