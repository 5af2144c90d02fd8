package application

import (
	"time"

	"storefront/internal/service/giftcard/domain"
)

// IssueRequest 后台或购买流程发卡
type IssueRequest struct {
	AmountCents    int64      `json:"amount_cents"`
	ExpiresAt      *time.Time `json:"expires_at"`
	RecipientEmail string     `json:"recipient_email"`
}

type AdjustRequest struct {
	DeltaCents int64  `json:"delta_cents"`
	Note       string `json:"note"`
}

// GiftCardDTO 是发卡后返回给后台的完整信息，包含明文卡号
type GiftCardDTO struct {
	ID             string     `json:"id"`
	Code           string     `json:"code"`
	InitialCents   int64      `json:"initial_cents"`
	BalanceCents   int64      `json:"balance_cents"`
	Currency       string     `json:"currency"`
	Status         string     `json:"status"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	RecipientEmail string     `json:"recipient_email,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func ToGiftCardDTO(g *domain.GiftCard) *GiftCardDTO {
	return &GiftCardDTO{
		ID:             g.ID,
		Code:           g.Code,
		InitialCents:   g.InitialCents,
		BalanceCents:   g.BalanceCents,
		Currency:       g.Currency,
		Status:         string(g.Status),
		ExpiresAt:      g.ExpiresAt,
		RecipientEmail: g.RecipientEmail,
		CreatedAt:      g.CreatedAt,
	}
}

// BalanceView 是查询余额的结果，卡号打码
type BalanceView struct {
	MaskedCode   string     `json:"masked_code"`
	BalanceCents int64      `json:"balance_cents"`
	Currency     string     `json:"currency"`
	Status       string     `json:"status"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Expired      bool       `json:"expired"`
}

type TransactionDTO struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	AmountCents  int64     `json:"amount_cents"`
	BalanceAfter int64     `json:"balance_after_cents"`
	OrderID      string    `json:"order_id,omitempty"`
	Note         string    `json:"note,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func ToTransactionDTO(t *domain.Transaction) *TransactionDTO {
	return &TransactionDTO{
		ID:           t.ID,
		Type:         string(t.Type),
		AmountCents:  t.AmountCents,
		BalanceAfter: t.BalanceAfter,
		OrderID:      t.OrderID,
		Note:         t.Note,
		CreatedAt:    t.CreatedAt,
	}
}
