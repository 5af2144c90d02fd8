package interfaces

import (
	"context"

	"github.com/segmentio/kafka-go"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/mq"
)

// EventProcessor 由 NotificationService 实现
type EventProcessor interface {
	Handle(ctx context.Context, ev mq.Event) error
}

// NewEventHandler 消费 storefront.events。解不开的消息直接丢弃，重试也不会成功。
func NewEventHandler(p EventProcessor) mq.HandlerFunc {
	return func(ctx context.Context, msg kafka.Message) error {
		ev, err := mq.DecodeEvent(msg.Value)
		if err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("key", string(msg.Key)).Int64("offset", msg.Offset).Msg("dropping undecodable event")
			return nil
		}
		return p.Handle(ctx, ev)
	}
}
