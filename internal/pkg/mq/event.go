package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// 领域事件类型
const (
	EventOrderPlaced      = "order.placed"
	EventOrderCancelled   = "order.cancelled"
	EventOrderFulfilled   = "order.fulfilled"
	EventPaymentCaptured  = "payment.captured"
	EventPaymentRefunded  = "payment.refunded"
	EventGiftCardIssued   = "giftcard.issued"
	EventStreamStarted    = "stream.started"
	EventCustomerSignedUp = "customer.registered"

	HeaderEventType = "event-type"
)

// Event 是所有领域事件在总线上的统一信封
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Key        string          `json:"key"` // 分区键，通常是聚合根 ID
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

// NewEvent 把任意 payload 包装成事件
func NewEvent(eventType, key string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Key:        key,
		OccurredAt: time.Now().UTC(),
		Payload:    raw,
	}, nil
}

// Publisher 是事件出站端口，Kafka 和 RabbitMQ 各有一个实现
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// KafkaPublisher 把事件写入事件 topic
type KafkaPublisher struct {
	writer MessageWriter
}

func NewKafkaPublisher(writer MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return ProduceMessage(ctx, p.writer, []byte(event.Key), body,
		kafka.Header{Key: HeaderEventType, Value: []byte(event.Type)})
}

// DecodeEvent 解析消息体里的事件信封
func DecodeEvent(value []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(value, &e); err != nil {
		return Event{}, err
	}
	if e.Type == "" {
		return Event{}, fmt.Errorf("event without type")
	}
	return e, nil
}
