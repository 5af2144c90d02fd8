// Package domain 定义积分账户、会员等级与积分流水。
package domain

import (
	"context"
	"time"

	"storefront/internal/pkg/apperr"
)

// Tier 会员等级，只由累计积分决定
type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
	TierDiamond  Tier = "diamond"
)

type tierRule struct {
	tier       Tier
	threshold  int64 // 累计积分下限
	multiplier int64 // 百分比
}

// 按门槛升序
var tierRules = []tierRule{
	{TierBronze, 0, 100},
	{TierSilver, 1000, 125},
	{TierGold, 5000, 150},
	{TierPlatinum, 15000, 175},
	{TierDiamond, 50000, 200},
}

// TierFor 根据累计积分计算等级
func TierFor(lifetime int64) Tier {
	t := TierBronze
	for _, r := range tierRules {
		if lifetime >= r.threshold {
			t = r.tier
		}
	}
	return t
}

// Multiplier 返回等级的积分倍率（百分比），未知等级按 100
func Multiplier(t Tier) int64 {
	for _, r := range tierRules {
		if r.tier == t {
			return r.multiplier
		}
	}
	return 100
}

// NextTier 返回下一等级及其门槛，已是最高级时 ok 为 false
func NextTier(t Tier) (next Tier, threshold int64, ok bool) {
	for i, r := range tierRules {
		if r.tier == t && i+1 < len(tierRules) {
			return tierRules[i+1].tier, tierRules[i+1].threshold, true
		}
	}
	return "", 0, false
}

// PointsFor 每消费 1 元（100 分）得 1 分，再乘等级倍率，均向下取整
func PointsFor(paidCents int64, t Tier) int64 {
	if paidCents <= 0 {
		return 0
	}
	return paidCents / 100 * Multiplier(t) / 100
}

type Status string

const (
	StatusActive Status = "ACTIVE"
	StatusFrozen Status = "FROZEN"
)

// TxType 积分流水类型
type TxType string

const (
	TxEarn    TxType = "EARN"
	TxRedeem  TxType = "REDEEM"
	TxReverse TxType = "REVERSE"
	TxAdjust  TxType = "ADJUST"
	TxExpire  TxType = "EXPIRE"
)

var (
	ErrAccountNotFound    = apperr.New(apperr.CodeNotFound, "loyalty account not found")
	ErrAccountExists      = apperr.New(apperr.CodeAlreadyExists, "loyalty account already exists")
	ErrAccountFrozen      = apperr.New(apperr.CodeForbidden, "loyalty account is frozen")
	ErrInsufficientPoints = apperr.New(apperr.CodeUnprocessable, "not enough points")
	ErrBalanceNegative    = apperr.New(apperr.CodeUnprocessable, "adjustment would make the balance negative")
)

// Account 积分账户，每个客户一个
type Account struct {
	ID             string
	CustomerID     string
	Tier           Tier
	PointsBalance  int64
	LifetimePoints int64
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PointsTransaction 积分流水，Points 带符号
type PointsTransaction struct {
	ID           string
	AccountID    string
	Type         TxType
	Points       int64
	BalanceAfter int64
	OrderID      string
	Note         string
	CreatedAt    time.Time
}

// Repository 账户与流水仓储，余额变化和流水写在同一事务里
type Repository interface {
	Create(ctx context.Context, a *Account) error
	FindByCustomer(ctx context.Context, customerID string) (*Account, error)
	// Earn 同一订单只累计一次，并按新的累计积分重算等级
	Earn(ctx context.Context, accountID, orderID string, points int64) (*PointsTransaction, error)
	// Redeem 条件扣减 balance >= points，同一订单只扣一次
	Redeem(ctx context.Context, accountID, orderID string, points int64) (*PointsTransaction, error)
	// ReverseOrder 退回订单抵扣的积分并收回赠送的积分，余额不低于 0
	ReverseOrder(ctx context.Context, orderID string) ([]*PointsTransaction, error)
	Adjust(ctx context.Context, accountID string, delta int64, note string) (*PointsTransaction, error)
	ListTransactions(ctx context.Context, accountID string, limit int) ([]*PointsTransaction, error)
}
