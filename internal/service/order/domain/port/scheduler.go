package port

import (
	"context"
	"time"
)

// DelayScheduler 是延迟任务调度器的出站端口。
type DelayScheduler interface {
	// SchedulePaymentTimeout 安排在 deadline 检查订单是否已支付
	SchedulePaymentTimeout(ctx context.Context, orderID, customerID string, deadline time.Time) error
}
