package port

import (
	"context"

	promotion "storefront/internal/service/promotion/domain"
)

// PromotionService 是促销服务的出站端口
type PromotionService interface {
	Evaluate(ctx context.Context, code string, in promotion.EvaluationInput) (*promotion.Quote, error)

	// Redeem 按试算结果核销，同一订单重复调用是幂等的
	Redeem(ctx context.Context, quote *promotion.Quote, customerID, orderID string) error

	// Release 是 Redeem 的补偿操作
	Release(ctx context.Context, orderID string) error
}
