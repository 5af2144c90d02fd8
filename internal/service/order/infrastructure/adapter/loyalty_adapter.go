package adapter

import (
	"context"

	loyaltyapp "storefront/internal/service/loyalty/application"
)

// LoyaltyAdapter 把积分应用服务适配成 port.LoyaltyService
type LoyaltyAdapter struct {
	service *loyaltyapp.LoyaltyService
}

func NewLoyaltyAdapter(service *loyaltyapp.LoyaltyService) *LoyaltyAdapter {
	return &LoyaltyAdapter{service: service}
}

func (a *LoyaltyAdapter) Tier(ctx context.Context, customerID string) (string, error) {
	acct, err := a.service.GetOrCreateAccount(ctx, customerID)
	if err != nil {
		return "", err
	}
	return string(acct.Tier), nil
}

func (a *LoyaltyAdapter) QuoteRedemption(ctx context.Context, customerID string, points, maxCents int64) (int64, int64, error) {
	q, err := a.service.QuoteRedemption(ctx, customerID, points, maxCents)
	if err != nil {
		return 0, 0, err
	}
	return q.Points, q.DiscountCents, nil
}

func (a *LoyaltyAdapter) Redeem(ctx context.Context, customerID, orderID string, points int64) (int64, error) {
	_, discount, err := a.service.Redeem(ctx, customerID, orderID, points)
	return discount, err
}

func (a *LoyaltyAdapter) Reverse(ctx context.Context, orderID string) error {
	return a.service.Reverse(ctx, orderID)
}
