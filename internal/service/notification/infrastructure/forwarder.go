package infrastructure

import (
	"context"
	"time"

	"storefront/internal/pkg/httpclient"
	"storefront/internal/pkg/mq"
	"storefront/internal/service/notification/domain"
)

// EventNotificationCreated 是转发到 RabbitMQ 的消息类型
const EventNotificationCreated = "notification.created"

const webhookTimeout = 5 * time.Second

// Payload 是转发出去的通知内容
type Payload struct {
	ID         string    `json:"id"`
	EventID    string    `json:"eventId"`
	EventType  string    `json:"eventType"`
	CustomerID string    `json:"customerId,omitempty"`
	Recipient  string    `json:"recipient,omitempty"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"createdAt"`
}

func toPayload(n *domain.Notification) Payload {
	return Payload{
		ID:         n.ID,
		EventID:    n.EventID,
		EventType:  n.EventType,
		CustomerID: n.CustomerID,
		Recipient:  n.Recipient,
		Subject:    n.Subject,
		Body:       n.Body,
		CreatedAt:  n.CreatedAt,
	}
}

// WebhookForwarder 通过带链路追踪的 HTTP 客户端 POST 到配置的地址
type WebhookForwarder struct {
	client *httpclient.Client
	url    string
}

func NewWebhookForwarder(client *httpclient.Client, url string) *WebhookForwarder {
	return &WebhookForwarder{client: client, url: url}
}

func (f *WebhookForwarder) Forward(ctx context.Context, n *domain.Notification) error {
	ctx, cancel := context.WithTimeout(ctx, webhookTimeout)
	defer cancel()
	return f.client.PostJSON(ctx, f.url, toPayload(n), map[string]string{
		"X-Event-Id":      n.EventID,
		"Idempotency-Key": n.EventID,
	})
}

// QueueForwarder 把通知投递到只接了 RabbitMQ 的下游
type QueueForwarder struct {
	publisher mq.Publisher
}

func NewQueueForwarder(publisher mq.Publisher) *QueueForwarder {
	return &QueueForwarder{publisher: publisher}
}

func (f *QueueForwarder) Forward(ctx context.Context, n *domain.Notification) error {
	ev, err := mq.NewEvent(EventNotificationCreated, n.EventID, toPayload(n))
	if err != nil {
		return err
	}
	return f.publisher.Publish(ctx, ev)
}

// Forwarders 依次转发，任何一个失败即返回
type Forwarders []interface {
	Forward(ctx context.Context, n *domain.Notification) error
}

func (fs Forwarders) Forward(ctx context.Context, n *domain.Notification) error {
	for _, f := range fs {
		if err := f.Forward(ctx, n); err != nil {
			return err
		}
	}
	return nil
}
