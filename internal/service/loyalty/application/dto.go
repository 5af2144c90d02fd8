package application

import (
	"time"

	"storefront/internal/service/loyalty/domain"
)

// AccountDTO 积分账户概览，附带距离下一等级的差额
type AccountDTO struct {
	CustomerID       string `json:"customer_id"`
	Tier             string `json:"tier"`
	Multiplier       int64  `json:"multiplier_percent"`
	PointsBalance    int64  `json:"points_balance"`
	LifetimePoints   int64  `json:"lifetime_points"`
	Status           string `json:"status"`
	NextTier         string `json:"next_tier,omitempty"`
	PointsToNextTier int64  `json:"points_to_next_tier,omitempty"`
}

func ToAccountDTO(a *domain.Account) *AccountDTO {
	dto := &AccountDTO{
		CustomerID:     a.CustomerID,
		Tier:           string(a.Tier),
		Multiplier:     domain.Multiplier(a.Tier),
		PointsBalance:  a.PointsBalance,
		LifetimePoints: a.LifetimePoints,
		Status:         string(a.Status),
	}
	if next, threshold, ok := domain.NextTier(a.Tier); ok {
		dto.NextTier = string(next)
		dto.PointsToNextTier = threshold - a.LifetimePoints
	}
	return dto
}

type TransactionDTO struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Points       int64     `json:"points"`
	BalanceAfter int64     `json:"balance_after"`
	OrderID      string    `json:"order_id,omitempty"`
	Note         string    `json:"note,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func ToTransactionDTO(t *domain.PointsTransaction) *TransactionDTO {
	return &TransactionDTO{
		ID:           t.ID,
		Type:         string(t.Type),
		Points:       t.Points,
		BalanceAfter: t.BalanceAfter,
		OrderID:      t.OrderID,
		Note:         t.Note,
		CreatedAt:    t.CreatedAt,
	}
}

// RedemptionQuote 抵扣试算结果
type RedemptionQuote struct {
	Points        int64 `json:"points"`
	DiscountCents int64 `json:"discount_cents"`
}

type AdjustRequest struct {
	DeltaPoints int64  `json:"delta_points"`
	Note        string `json:"note"`
}
