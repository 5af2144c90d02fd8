// Package session 在 Redis 中维护会话相关的共享状态。
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Manager 记录已登出令牌的 jti，以及按客户整体吊销的时间点
type Manager struct {
	rdb goredis.UniversalClient
	now func() time.Time
}

func NewManager(rdb goredis.UniversalClient) *Manager {
	return &Manager{rdb: rdb, now: time.Now}
}

func revokedKey(tokenID string) string { return "session:revoked:" + tokenID }

func customerKey(customerID string) string { return "session:revoked-before:" + customerID }

// Revoke 吊销令牌，expiresAt 之后 key 自动过期
func (m *Manager) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(m.now())
	if ttl <= 0 {
		return nil
	}
	if err := m.rdb.Set(ctx, revokedKey(tokenID), 1, ttl).Err(); err != nil {
		return fmt.Errorf("revoke session %s: %w", tokenID, err)
	}
	return nil
}

// RevokeCustomer 吊销客户此刻之前签发的所有令牌。ttl 取会话有效期，之后旧令牌已自然过期。
func (m *Manager) RevokeCustomer(ctx context.Context, customerID string, ttl time.Duration) error {
	if err := m.rdb.Set(ctx, customerKey(customerID), m.now().Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("revoke sessions of %s: %w", customerID, err)
	}
	return nil
}

// IsRevoked 实现 auth.RevocationChecker。同一秒内签发的令牌也视为已吊销。
func (m *Manager) IsRevoked(ctx context.Context, tokenID, customerID string, issuedAt time.Time) (bool, error) {
	pipe := m.rdb.Pipeline()
	exists := pipe.Exists(ctx, revokedKey(tokenID))
	before := pipe.Get(ctx, customerKey(customerID))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return false, fmt.Errorf("check session %s: %w", tokenID, err)
	}
	if exists.Val() > 0 {
		return true, nil
	}
	raw, err := before.Result()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check sessions of %s: %w", customerID, err)
	}
	cut, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false, fmt.Errorf("corrupt revocation mark for %s: %w", customerID, err)
	}
	return issuedAt.Unix() <= cut, nil
}
