package mq

import (
	"context"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"

	"storefront/internal/pkg/logger"
)

// 死信消息携带的头，DLT 消费者据此还原现场
const (
	HeaderRetryCount        = "x-retry-count"
	HeaderOriginalTopic     = "x-original-topic"
	HeaderOriginalPartition = "x-original-partition"
	HeaderOriginalOffset    = "x-original-offset"
	HeaderExceptionFqcn     = "x-exception-fqcn"
	HeaderExceptionMessage  = "x-exception-message"
)

// DLTTopic 返回某个 topic 对应的死信 topic
func DLTTopic(topic string) string { return topic + ".dlt" }

// FailureHandler 处理消费失败的消息：先原样重投到原 topic，超过次数后转入死信 topic
type FailureHandler struct {
	writer     MessageWriter // 不绑定 topic 的 writer
	maxRetries int
}

func NewFailureHandler(writer MessageWriter, maxRetries int) *FailureHandler {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &FailureHandler{writer: writer, maxRetries: maxRetries}
}

// Handle 重投或转死信。返回 error 表示连死信都没写成功，调用方不应提交 offset。
func (h *FailureHandler) Handle(ctx context.Context, msg kafka.Message, cause error) error {
	retries, _ := strconv.Atoi(HeaderValue(msg.Headers, HeaderRetryCount))
	original := HeaderValue(msg.Headers, HeaderOriginalTopic)
	if original == "" {
		original = msg.Topic
	}

	var out kafka.Message
	if retries < h.maxRetries {
		out = kafka.Message{
			Topic: original,
			Key:   msg.Key,
			Value: msg.Value,
			Headers: withHeaders(msg.Headers, map[string]string{
				HeaderRetryCount:    strconv.Itoa(retries + 1),
				HeaderOriginalTopic: original,
			}),
		}
		logger.Ctx(ctx).Warn().Err(cause).Str("topic", original).Int("retry", retries+1).Msg("message processing failed, retrying")
	} else {
		out = kafka.Message{
			Topic: DLTTopic(original),
			Key:   msg.Key,
			Value: msg.Value,
			Headers: withHeaders(msg.Headers, map[string]string{
				HeaderRetryCount:        strconv.Itoa(retries),
				HeaderOriginalTopic:     original,
				HeaderOriginalPartition: strconv.Itoa(msg.Partition),
				HeaderOriginalOffset:    strconv.FormatInt(msg.Offset, 10),
				HeaderExceptionFqcn:     fmt.Sprintf("%T", cause),
				HeaderExceptionMessage:  cause.Error(),
			}),
		}
		logger.Ctx(ctx).Error().Err(cause).Str("topic", original).Str("dlt", out.Topic).Msg("retries exhausted, sending to DLT")
	}

	if err := h.writer.WriteMessages(ctx, out); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("topic", out.Topic).Msg("failed to hand off failed message")
		return err
	}
	return nil
}

func withHeaders(headers []kafka.Header, set map[string]string) []kafka.Header {
	out := make([]kafka.Header, 0, len(headers)+len(set))
	for _, h := range headers {
		if _, replaced := set[h.Key]; !replaced {
			out = append(out, h)
		}
	}
	for k, v := range set {
		out = append(out, kafka.Header{Key: k, Value: []byte(v)})
	}
	return out
}
