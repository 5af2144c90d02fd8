package adapter

import (
	"context"

	loyaltyapp "storefront/internal/service/loyalty/application"
)

// RewardAdapter 把积分应用服务适配成 port.RewardService
type RewardAdapter struct {
	service *loyaltyapp.LoyaltyService
}

func NewRewardAdapter(service *loyaltyapp.LoyaltyService) *RewardAdapter {
	return &RewardAdapter{service: service}
}

func (a *RewardAdapter) Earn(ctx context.Context, customerID, orderID string, paidCents int64) error {
	_, err := a.service.Earn(ctx, customerID, orderID, paidCents)
	return err
}
