package infrastructure

import (
	"storefront/internal/service/order/domain"
)

func ToDomainOrder(m *OrderModel) *domain.Order {
	lines := make([]domain.Line, 0, len(m.Lines))
	for _, l := range m.Lines {
		lines = append(lines, domain.Line{
			ProductID:  l.ProductID,
			SKU:        l.SKU,
			Name:       l.Name,
			CategoryID: l.CategoryID,
			UnitCents:  l.UnitCents,
			Quantity:   l.Quantity,
		})
	}
	return &domain.Order{
		ID:              m.ID,
		CustomerID:      m.CustomerID,
		State:           domain.State(m.Status),
		Lines:           lines,
		Currency:        m.Currency,
		SubtotalCents:   m.SubtotalCents,
		DiscountCents:   m.DiscountCents,
		ShippingCents:   m.ShippingCents,
		TaxCents:        m.TaxCents,
		PointsRedeemed:  m.PointsRedeemed,
		PointsCents:     m.PointsCents,
		GiftCardCents:   m.GiftCardCents,
		TotalCents:      m.TotalCents,
		PromoCode:       m.PromoCode,
		GiftCardCode:    m.GiftCardCode,
		ShippingAddress: m.ShippingAddress,
		FailureReason:   m.FailureReason,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
		PaidAt:          m.PaidAt,
	}
}

func FromDomainOrder(o *domain.Order) *OrderModel {
	lines := make([]OrderLineModel, 0, len(o.Lines))
	for i, l := range o.Lines {
		lines = append(lines, OrderLineModel{
			OrderID:    o.ID,
			ProductID:  l.ProductID,
			Position:   i,
			SKU:        l.SKU,
			Name:       l.Name,
			CategoryID: l.CategoryID,
			UnitCents:  l.UnitCents,
			Quantity:   l.Quantity,
		})
	}
	return &OrderModel{
		ID:              o.ID,
		CustomerID:      o.CustomerID,
		Status:          string(o.State),
		Currency:        o.Currency,
		SubtotalCents:   o.SubtotalCents,
		DiscountCents:   o.DiscountCents,
		ShippingCents:   o.ShippingCents,
		TaxCents:        o.TaxCents,
		PointsRedeemed:  o.PointsRedeemed,
		PointsCents:     o.PointsCents,
		GiftCardCents:   o.GiftCardCents,
		TotalCents:      o.TotalCents,
		PromoCode:       o.PromoCode,
		GiftCardCode:    o.GiftCardCode,
		ShippingAddress: o.ShippingAddress,
		FailureReason:   o.FailureReason,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
		PaidAt:          o.PaidAt,
		Lines:           lines,
	}
}
