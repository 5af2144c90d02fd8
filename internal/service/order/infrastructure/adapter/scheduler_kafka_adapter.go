package adapter

import (
	"context"
	"encoding/json"
	"time"

	"storefront/internal/pkg/mq"
	"storefront/internal/service/order/domain"
)

// SchedulerKafkaAdapter 实现了 port.DelayScheduler 接口。
// 任务写入延迟 topic，到期后由 worker 的 DelayScheduler 转投到 realTopic。
type SchedulerKafkaAdapter struct {
	delayWriter mq.MessageWriter
	realTopic   string
}

// NewSchedulerKafkaAdapter 创建一个新的延迟任务调度器适配器。
func NewSchedulerKafkaAdapter(delayWriter mq.MessageWriter, realTopic string) *SchedulerKafkaAdapter {
	return &SchedulerKafkaAdapter{delayWriter: delayWriter, realTopic: realTopic}
}

// SchedulePaymentTimeout 实现了发送延迟消息的逻辑。
func (a *SchedulerKafkaAdapter) SchedulePaymentTimeout(ctx context.Context, orderID, customerID string, deadline time.Time) error {
	task, err := json.Marshal(domain.PaymentTimeoutCheck{
		OrderID:    orderID,
		CustomerID: customerID,
		Deadline:   deadline.UTC(),
	})
	if err != nil {
		return err
	}
	return mq.ProduceDelayed(ctx, a.delayWriter, a.realTopic, deadline, []byte(orderID), task)
}
