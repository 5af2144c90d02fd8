package port

import "context"

// LoyaltyService 是积分服务的出站端口
type LoyaltyService interface {
	// Tier 返回客户当前等级，促销规则会用到
	Tier(ctx context.Context, customerID string) (string, error)

	// QuoteRedemption 在 maxCents 以内试算可用积分，返回实际使用的积分和抵扣金额
	QuoteRedemption(ctx context.Context, customerID string, points, maxCents int64) (int64, int64, error)

	// Redeem 扣积分，返回抵扣金额
	Redeem(ctx context.Context, customerID, orderID string, points int64) (int64, error)

	// Reverse 退回订单扣掉的积分并收回订单送出的积分
	Reverse(ctx context.Context, orderID string) error
}
