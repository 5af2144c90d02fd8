// internal/service/order/application/dto.go
package application

import (
	"time"

	"storefront/internal/service/order/domain"
)

// CheckoutRequest 是结账用例的输入数据
type CheckoutRequest struct {
	AddressID    string `json:"address_id"`
	PromoCode    string `json:"promo_code,omitempty"`
	GiftCardCode string `json:"gift_card_code,omitempty"`
	RedeemPoints int64  `json:"redeem_points,omitempty"`
}

// ListOrdersQuery 订单列表查询参数
type ListOrdersQuery struct {
	Status string
	Cursor string
	Limit  int
}

type OrderLineDTO struct {
	ProductID  string `json:"product_id"`
	SKU        string `json:"sku"`
	Name       string `json:"name"`
	UnitCents  int64  `json:"unit_cents"`
	Quantity   int    `json:"quantity"`
	TotalCents int64  `json:"total_cents"`
}

// OrderDTO 是订单的对外视图
type OrderDTO struct {
	ID              string         `json:"id"`
	CustomerID      string         `json:"customer_id"`
	Status          domain.State   `json:"status"`
	Lines           []OrderLineDTO `json:"lines"`
	Currency        string         `json:"currency"`
	SubtotalCents   int64          `json:"subtotal_cents"`
	DiscountCents   int64          `json:"discount_cents"`
	ShippingCents   int64          `json:"shipping_cents"`
	TaxCents        int64          `json:"tax_cents"`
	PointsRedeemed  int64          `json:"points_redeemed"`
	PointsCents     int64          `json:"points_cents"`
	GiftCardCents   int64          `json:"gift_card_cents"`
	TotalCents      int64          `json:"total_cents"`
	PromoCode       string         `json:"promo_code,omitempty"`
	GiftCardCode    string         `json:"gift_card_code,omitempty"`
	ShippingAddress string         `json:"shipping_address"`
	FailureReason   string         `json:"failure_reason,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	PaidAt          *time.Time     `json:"paid_at,omitempty"`
}

func ToOrderDTO(o *domain.Order) *OrderDTO {
	lines := make([]OrderLineDTO, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, OrderLineDTO{
			ProductID:  l.ProductID,
			SKU:        l.SKU,
			Name:       l.Name,
			UnitCents:  l.UnitCents,
			Quantity:   l.Quantity,
			TotalCents: l.TotalCents(),
		})
	}
	return &OrderDTO{
		ID:              o.ID,
		CustomerID:      o.CustomerID,
		Status:          o.State,
		Lines:           lines,
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
	}
}
