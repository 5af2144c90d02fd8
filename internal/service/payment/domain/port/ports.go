package port

import "context"

// OrderSnapshot 是支付需要的订单信息
type OrderSnapshot struct {
	ID         string
	CustomerID string
	State      string
	TotalCents int64
	Currency   string
}

// OrderService 订单状态由订单服务维护，支付只通过它推进
type OrderService interface {
	// OrderForPayment customerID 为空表示后台调用，不校验归属
	OrderForPayment(ctx context.Context, customerID, orderID string) (*OrderSnapshot, error)
	MarkPaid(ctx context.Context, orderID string) error
	MarkRefunded(ctx context.Context, orderID string) error
}

// RewardService 收款后按实付金额送积分
type RewardService interface {
	Earn(ctx context.Context, customerID, orderID string, paidCents int64) error
}

type ChargeRequest struct {
	Token       string
	AmountCents int64
	Currency    string
	PaymentID   string
}

// CardProcessor 是卡组织/收单方的抽象
type CardProcessor interface {
	// Charge 授权并立即请款，返回授权码
	Charge(ctx context.Context, req ChargeRequest) (string, error)
	Refund(ctx context.Context, authCode string, amountCents int64) error
}
