// Package domain 定义礼品卡及其账本。余额始终等于账本金额之和。
package domain

import (
	"context"
	"crypto/rand"
	"math/big"
	"strings"
	"time"

	"storefront/internal/pkg/apperr"
)

const (
	MaxIssueCents = 1_000_000
	codeGroups    = 4
	codeGroupLen  = 4
	codeAlphabet  = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // 去掉易混淆的 0/O、1/I
)

type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusDisabled Status = "DISABLED"
)

// TxType 账本流水类型
type TxType string

const (
	TxIssue  TxType = "ISSUE"
	TxRedeem TxType = "REDEEM"
	TxRefund TxType = "REFUND"
	TxAdjust TxType = "ADJUST"
)

var (
	ErrGiftCardNotFound    = apperr.New(apperr.CodeNotFound, "gift card not found")
	ErrGiftCardDisabled    = apperr.New(apperr.CodeUnprocessable, "gift card is disabled")
	ErrGiftCardExpired     = apperr.New(apperr.CodeUnprocessable, "gift card has expired")
	ErrInsufficientBalance = apperr.New(apperr.CodeUnprocessable, "gift card balance is insufficient")
	ErrCodeCollision       = apperr.New(apperr.CodeConflict, "gift card code collision")
	ErrBalanceNegative     = apperr.New(apperr.CodeUnprocessable, "adjustment would make the balance negative")
)

// GiftCard 礼品卡
type GiftCard struct {
	ID             string
	Code           string
	InitialCents   int64
	BalanceCents   int64
	Currency       string
	Status         Status
	ExpiresAt      *time.Time
	PurchaserID    string
	RecipientEmail string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CheckUsable 校验卡能否被扣款
func (g *GiftCard) CheckUsable(now time.Time) error {
	switch {
	case g.Status != StatusActive:
		return ErrGiftCardDisabled
	case g.ExpiresAt != nil && !now.Before(*g.ExpiresAt):
		return ErrGiftCardExpired
	}
	return nil
}

// MaskedCode 只露出最后一组
func (g *GiftCard) MaskedCode() string { return MaskCode(g.Code) }

// Transaction 是一条账本流水，AmountCents 带符号
type Transaction struct {
	ID           string
	GiftCardID   string
	Type         TxType
	AmountCents  int64
	BalanceAfter int64
	OrderID      string
	Note         string
	CreatedAt    time.Time
}

// GenerateCode 生成 XXXX-XXXX-XXXX-XXXX 格式的卡号
func GenerateCode() (string, error) {
	base := big.NewInt(int64(len(codeAlphabet)))
	var b strings.Builder
	for g := 0; g < codeGroups; g++ {
		if g > 0 {
			b.WriteByte('-')
		}
		for i := 0; i < codeGroupLen; i++ {
			n, err := rand.Int(rand.Reader, base)
			if err != nil {
				return "", err
			}
			b.WriteByte(codeAlphabet[n.Int64()])
		}
	}
	return b.String(), nil
}

// NormalizeCode 统一大写，允许用户省略或写错分隔符
func NormalizeCode(code string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(code) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	raw := b.String()
	if len(raw) != codeGroups*codeGroupLen {
		return raw
	}
	parts := make([]string, 0, codeGroups)
	for i := 0; i < len(raw); i += codeGroupLen {
		parts = append(parts, raw[i:i+codeGroupLen])
	}
	return strings.Join(parts, "-")
}

func MaskCode(code string) string {
	if len(code) < codeGroupLen {
		return strings.Repeat("*", len(code))
	}
	return "****-****-****-" + code[len(code)-codeGroupLen:]
}

// Repository 礼品卡与账本仓储。所有余额变化都和流水写在同一个事务里。
type Repository interface {
	Create(ctx context.Context, card *GiftCard, issue *Transaction) error
	FindByID(ctx context.Context, id string) (*GiftCard, error)
	FindByCode(ctx context.Context, code string) (*GiftCard, error)
	// Debit 条件扣减余额，同一张卡同一订单重复调用返回第一次的流水
	Debit(ctx context.Context, cardID string, amount int64, orderID string, now time.Time) (*Transaction, error)
	// RefundOrder 把订单在各卡上未退回的扣款退回，退后余额不超过面值
	RefundOrder(ctx context.Context, orderID string) ([]*Transaction, error)
	Adjust(ctx context.Context, cardID string, delta int64, note string) (*Transaction, error)
	SetStatus(ctx context.Context, cardID string, status Status) error
	ListTransactions(ctx context.Context, cardID string) ([]*Transaction, error)
}
