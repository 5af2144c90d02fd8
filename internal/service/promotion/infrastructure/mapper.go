package infrastructure

import (
	"strings"

	"storefront/internal/service/promotion/domain"
)

// ToDomainPromotion 将数据库模型转换为领域模型
func ToDomainPromotion(m *PromotionModel) *domain.Promotion {
	if m == nil {
		return nil
	}
	var scopeIDs []string
	if m.ScopeIDs != "" {
		scopeIDs = strings.Split(m.ScopeIDs, ",") // 将字符串转换为切片
	}
	return &domain.Promotion{
		ID:               m.ID,
		Code:             m.Code,
		Name:             m.Name,
		Type:             domain.DiscountType(m.Type),
		Value:            m.Value,
		MaxDiscountCents: m.MaxDiscountCents,
		MinOrderCents:    m.MinOrderCents,
		StartsAt:         m.StartsAt,
		EndsAt:           m.EndsAt,
		UsageLimit:       m.UsageLimit,
		PerCustomerLimit: m.PerCustomerLimit,
		UsedCount:        m.UsedCount,
		Scope:            domain.Scope(m.Scope),
		ScopeIDs:         scopeIDs,
		Rule:             m.Rule,
		Status:           domain.Status(m.Status),
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

// FromDomainPromotion 将领域模型转换为数据库模型
func FromDomainPromotion(p *domain.Promotion) *PromotionModel {
	if p == nil {
		return nil
	}
	return &PromotionModel{
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
		ScopeIDs:         strings.Join(p.ScopeIDs, ","),
		Rule:             p.Rule,
		Status:           string(p.Status),
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

func ToDomainRedemption(m *RedemptionModel) *domain.Redemption {
	return &domain.Redemption{
		ID:            m.ID,
		PromotionID:   m.PromotionID,
		CustomerID:    m.CustomerID,
		OrderID:       m.OrderID,
		DiscountCents: m.DiscountCents,
		Status:        domain.RedemptionStatus(m.Status),
		CreatedAt:     m.CreatedAt,
	}
}

func FromDomainRedemption(r *domain.Redemption) *RedemptionModel {
	return &RedemptionModel{
		ID:            r.ID,
		PromotionID:   r.PromotionID,
		CustomerID:    r.CustomerID,
		OrderID:       r.OrderID,
		DiscountCents: r.DiscountCents,
		Status:        string(r.Status),
		CreatedAt:     r.CreatedAt,
	}
}
