package interfaces

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
	"storefront/internal/pkg/mq"
	"storefront/internal/service/order/domain"
)

// TimeoutProcessor 是超时检查消息的处理方，由 OrderApplicationService 实现
type TimeoutProcessor interface {
	HandlePaymentTimeout(ctx context.Context, event *domain.PaymentTimeoutCheck) error
}

// NewOrderTimeoutHandler 返回超时 topic 的消息处理函数，交给 mq.Consumer 驱动
func NewOrderTimeoutHandler(appSvc TimeoutProcessor) mq.HandlerFunc {
	return func(ctx context.Context, msg kafka.Message) error {
		var event domain.PaymentTimeoutCheck
		if err := json.Unmarshal(msg.Value, &event); err != nil || event.OrderID == "" {
			// 坏消息重试也不会成功，直接丢弃
			logger.Ctx(ctx).Error().Err(err).Str("key", string(msg.Key)).Msg("malformed timeout check message, skipped")
			metrics.EventsConsumed.WithLabelValues("order.timeout", "skipped").Inc()
			return nil
		}
		if err := appSvc.HandlePaymentTimeout(ctx, &event); err != nil {
			metrics.EventsConsumed.WithLabelValues("order.timeout", "error").Inc()
			return err
		}
		metrics.EventsConsumed.WithLabelValues("order.timeout", "ok").Inc()
		return nil
	}
}
