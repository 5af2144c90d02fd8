package application

import (
	"time"

	"storefront/internal/service/promotion/domain"
)

// CreatePromotionRequest 是后台创建促销的输入
type CreatePromotionRequest struct {
	Code             string     `json:"code"`
	Name             string     `json:"name"`
	Type             string     `json:"type"`
	Value            int64      `json:"value"`
	MaxDiscountCents int64      `json:"max_discount_cents"`
	MinOrderCents    int64      `json:"min_order_cents"`
	StartsAt         *time.Time `json:"starts_at"` // 为空时立即生效
	EndsAt           *time.Time `json:"ends_at"`
	UsageLimit       int64      `json:"usage_limit"`
	PerCustomerLimit int64      `json:"per_customer_limit"`
	Scope            string     `json:"scope"` // 为空时为 ALL
	ScopeIDs         []string   `json:"scope_ids"`
	Rule             string     `json:"rule"`
}

// UpdatePromotionRequest 只修改非 nil 的字段，促销码不可修改
type UpdatePromotionRequest struct {
	Name             *string    `json:"name"`
	Value            *int64     `json:"value"`
	MaxDiscountCents *int64     `json:"max_discount_cents"`
	MinOrderCents    *int64     `json:"min_order_cents"`
	StartsAt         *time.Time `json:"starts_at"`
	EndsAt           *time.Time `json:"ends_at"`
	ClearEndsAt      bool       `json:"clear_ends_at"`
	UsageLimit       *int64     `json:"usage_limit"`
	PerCustomerLimit *int64     `json:"per_customer_limit"`
	Scope            *string    `json:"scope"`
	ScopeIDs         []string   `json:"scope_ids"`
	Rule             *string    `json:"rule"`
	Status           *string    `json:"status"`
}

// RedeemRequest 下单时核销促销码
type RedeemRequest struct {
	Code          string
	CustomerID    string
	OrderID       string
	DiscountCents int64
}

type ListPromotionsQuery struct {
	Status string
	Cursor string
	Limit  int
}

// PromotionDTO 是后台看到的促销
type PromotionDTO struct {
	ID               string     `json:"id"`
	Code             string     `json:"code"`
	Name             string     `json:"name"`
	Type             string     `json:"type"`
	Value            int64      `json:"value"`
	MaxDiscountCents int64      `json:"max_discount_cents"`
	MinOrderCents    int64      `json:"min_order_cents"`
	StartsAt         time.Time  `json:"starts_at"`
	EndsAt           *time.Time `json:"ends_at,omitempty"`
	UsageLimit       int64      `json:"usage_limit"`
	PerCustomerLimit int64      `json:"per_customer_limit"`
	UsedCount        int64      `json:"used_count"`
	Scope            string     `json:"scope"`
	ScopeIDs         []string   `json:"scope_ids,omitempty"`
	Rule             string     `json:"rule,omitempty"`
	Status           string     `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func ToPromotionDTO(p *domain.Promotion) *PromotionDTO {
	return &PromotionDTO{
		ID:               p.ID,
		Code:             p.Code,
		Name:             p.Name,
		Type:             string(p.Type),
		Value:            p.Value,
		MaxDiscountCents: p.MaxDiscountCents,
		MinOrderCents:    p.MinOrderCents,
		StartsAt:         p.StartsAt,
		EndsAt:           p.EndsAt,
		UsageLimit:       p.UsageLimit,
		PerCustomerLimit: p.PerCustomerLimit,
		UsedCount:        p.UsedCount,
		Scope:            string(p.Scope),
		ScopeIDs:         p.ScopeIDs,
		Rule:             p.Rule,
		Status:           string(p.Status),
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}
