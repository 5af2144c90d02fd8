package application

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
	"storefront/internal/pkg/mq"
	"storefront/internal/service/notification/domain"
)

const defaultListLimit = 50

// Forwarder 把通知转发到外部系统，失败时消息会被重试
type Forwarder interface {
	Forward(ctx context.Context, n *domain.Notification) error
}

// NotificationService 把领域事件转成通知并记录
type NotificationService struct {
	repo      domain.Repository
	forwarder Forwarder
	tracer    trace.Tracer
	now       func() time.Time
}

// NewNotificationService forwarder 可以为 nil
func NewNotificationService(repo domain.Repository, forwarder Forwarder, tracer trace.Tracer) *NotificationService {
	return &NotificationService{
		repo:      repo,
		forwarder: forwarder,
		tracer:    tracer,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Handle 处理一个事件。返回 error 只代表可以重试的失败。
func (s *NotificationService) Handle(ctx context.Context, ev mq.Event) error {
	ctx, span := s.tracer.Start(ctx, "notification.Handle", trace.WithAttributes(
		attribute.String("event.type", ev.Type),
		attribute.String("event.id", ev.ID),
	))
	defer span.End()

	n, err := compose(ev)
	if err != nil {
		metrics.EventsConsumed.WithLabelValues(ev.Type, "malformed").Inc()
		logger.Ctx(ctx).Error().Err(err).Str("event_id", ev.ID).Str("event", ev.Type).Msg("dropping malformed event")
		return nil
	}
	if n == nil {
		metrics.EventsConsumed.WithLabelValues(ev.Type, "ignored").Inc()
		return nil
	}

	seen, err := s.repo.ExistsForEvent(ctx, ev.ID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if seen {
		metrics.EventsConsumed.WithLabelValues(ev.Type, "duplicate").Inc()
		return nil
	}

	n.ID = uuid.NewString()
	n.CreatedAt = s.now()
	if s.forwarder != nil {
		if err := s.forwarder.Forward(ctx, n); err != nil {
			span.RecordError(err)
			metrics.EventsConsumed.WithLabelValues(ev.Type, "failed").Inc()
			return errors.Wrapf(err, "forward notification for event %s", ev.ID)
		}
	}
	if err := s.repo.Create(ctx, n); err != nil && !errors.Is(err, domain.ErrAlreadyRecorded) {
		span.RecordError(err)
		return err
	}

	metrics.EventsConsumed.WithLabelValues(ev.Type, "ok").Inc()
	logger.Ctx(ctx).Info().
		Str("event", ev.Type).
		Str("customer_id", n.CustomerID).
		Str("recipient", n.Recipient).
		Str("subject", n.Subject).
		Msg("notification recorded")
	return nil
}

func (s *NotificationService) ListForCustomer(ctx context.Context, customerID string, limit int) ([]*NotificationDTO, error) {
	ctx, span := s.tracer.Start(ctx, "notification.ListForCustomer")
	defer span.End()

	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	list, err := s.repo.ListByCustomer(ctx, customerID, limit)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	out := make([]*NotificationDTO, 0, len(list))
	for _, n := range list {
		out = append(out, ToNotificationDTO(n))
	}
	return out, nil
}

// compose 为关心的事件生成通知内容，其他事件返回 nil
func compose(ev mq.Event) (*domain.Notification, error) {
	n := &domain.Notification{EventID: ev.ID, EventType: ev.Type}
	switch ev.Type {
	case mq.EventOrderPlaced:
		var p orderPlaced
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return nil, err
		}
		n.CustomerID = p.CustomerID
		n.Subject = "Order placed"
		n.Body = fmt.Sprintf("Order %s for %s has been placed.", p.OrderID, money(p.TotalCents, p.Currency))
		if !p.PaymentDueBy.IsZero() {
			n.Body += fmt.Sprintf(" Please complete payment by %s.", p.PaymentDueBy.UTC().Format(time.RFC1123))
		}
	case mq.EventOrderCancelled:
		var p orderCancelled
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return nil, err
		}
		n.CustomerID = p.CustomerID
		n.Subject = "Order cancelled"
		n.Body = fmt.Sprintf("Order %s has been cancelled (%s).", p.OrderID, p.Reason)
	case mq.EventPaymentCaptured:
		var p paymentCaptured
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return nil, err
		}
		n.CustomerID = p.CustomerID
		n.Subject = "Payment received"
		n.Body = fmt.Sprintf("We received your %s payment of %s for order %s.", p.Method, money(p.AmountCents, ""), p.OrderID)
	case mq.EventGiftCardIssued:
		var p giftCardIssued
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return nil, err
		}
		if p.RecipientEmail == "" {
			return nil, nil
		}
		n.Recipient = p.RecipientEmail
		n.Subject = "You received a gift card"
		n.Body = fmt.Sprintf("Gift card %s worth %s is ready to use.", p.MaskedCode, money(p.AmountCents, p.Currency))
	default:
		return nil, nil
	}
	if n.CustomerID == "" && n.Recipient == "" {
		return nil, fmt.Errorf("%s event %s has no recipient", ev.Type, ev.ID)
	}
	return n, nil
}

func money(cents int64, currency string) string {
	s := fmt.Sprintf("%d.%02d", cents/100, cents%100)
	if currency != "" {
		s += " " + currency
	}
	return s
}
