package adapter

import (
	"context"

	promoapp "storefront/internal/service/promotion/application"
	promotion "storefront/internal/service/promotion/domain"
)

// PromotionAdapter 把促销应用服务适配成 port.PromotionService
type PromotionAdapter struct {
	service *promoapp.PromotionService
}

func NewPromotionAdapter(service *promoapp.PromotionService) *PromotionAdapter {
	return &PromotionAdapter{service: service}
}

func (a *PromotionAdapter) Evaluate(ctx context.Context, code string, in promotion.EvaluationInput) (*promotion.Quote, error) {
	return a.service.Evaluate(ctx, code, in)
}

func (a *PromotionAdapter) Redeem(ctx context.Context, quote *promotion.Quote, customerID, orderID string) error {
	_, err := a.service.Redeem(ctx, promoapp.RedeemRequest{
		Code:          quote.Code,
		CustomerID:    customerID,
		OrderID:       orderID,
		DiscountCents: quote.DiscountCents,
	})
	return err
}

func (a *PromotionAdapter) Release(ctx context.Context, orderID string) error {
	return a.service.Release(ctx, orderID)
}
