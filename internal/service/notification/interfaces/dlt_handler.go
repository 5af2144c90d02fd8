package interfaces

import (
	"context"

	"github.com/segmentio/kafka-go"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
	"storefront/internal/pkg/mq"
)

// NewDeadLetterHandler 记录死信消息详情。死信总是直接提交，记录日志即视为处理完成。
func NewDeadLetterHandler() mq.HandlerFunc {
	return func(ctx context.Context, msg kafka.Message) error {
		original := mq.HeaderValue(msg.Headers, mq.HeaderOriginalTopic)
		metrics.EventsConsumed.WithLabelValues(mq.HeaderValue(msg.Headers, mq.HeaderEventType), "dead_letter").Inc()

		// 使用结构化日志记录，便于后续分析
		logger.Ctx(ctx).Error().
			Str("reason", "dead_letter_message_received").
			Str("dlt_topic", msg.Topic).
			Str("original_topic", original).
			Str("original_partition", mq.HeaderValue(msg.Headers, mq.HeaderOriginalPartition)).
			Str("original_offset", mq.HeaderValue(msg.Headers, mq.HeaderOriginalOffset)).
			Str("retry_count", mq.HeaderValue(msg.Headers, mq.HeaderRetryCount)).
			Str("exception_fqcn", mq.HeaderValue(msg.Headers, mq.HeaderExceptionFqcn)).
			Str("exception_message", mq.HeaderValue(msg.Headers, mq.HeaderExceptionMessage)).
			Str("key", string(msg.Key)).
			Str("value", string(msg.Value)).
			Msg("🚨 CRITICAL: Dead letter message received")
		return nil
	}
}
