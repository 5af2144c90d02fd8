package saga

import (
	"go.opentelemetry.io/otel/attribute"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/mq"
	"storefront/internal/service/order/domain"
)

// NotificationHandler 是 Saga 流程的最后一步，清空购物车并发布下单事件。
// 这一步的失败都不是关键路径，只记录不回滚。
type NotificationHandler struct {
	NextHandler
}

func (h *NotificationHandler) Handle(checkoutCtx *CheckoutContext) error {
	ctx, span := checkoutCtx.Tracer.Start(checkoutCtx.Ctx, "saga.Notification")
	defer span.End()

	logger.Ctx(ctx).Debug().Msg("【Saga】=> 步骤 Final: 清空购物车并发送下单事件...")

	order := checkoutCtx.Order
	if err := checkoutCtx.Cart.Clear(ctx, order.CustomerID); err != nil {
		span.RecordError(err)
		logger.Ctx(ctx).Warn().Err(err).Str("order_id", order.ID).Msg("failed to clear cart")
	}

	if checkoutCtx.Events != nil {
		span.SetAttributes(attribute.String("messaging.system", "kafka"), attribute.String("event.type", mq.EventOrderPlaced))
		placed := domain.OrderPlaced{
			OrderID:    order.ID,
			CustomerID: order.CustomerID,
			Status:     order.State,
			TotalCents: order.TotalCents,
			Currency:   order.Currency,
			ItemCount:  order.ItemCount(),
		}
		if order.State == domain.StatePendingPayment {
			placed.PaymentDueBy = order.CreatedAt.Add(checkoutCtx.PaymentTimeout)
		}
		ev, err := mq.NewEvent(mq.EventOrderPlaced, order.ID, placed)
		if err == nil {
			err = checkoutCtx.Events.Publish(ctx, ev)
		}
		if err != nil {
			span.RecordError(err) // 在 tracing 中依然要记录这个非致命错误，以便排查
			logger.Ctx(ctx).Error().Err(err).Str("order_id", order.ID).Msg("failed to publish order.placed")
		}
	}

	span.AddEvent("Saga process finalized and notification sent (or attempted).")

	// 由于这是链的末端，调用 executeNext 会返回 nil，代表整个流程成功结束。
	return h.executeNext(checkoutCtx)
}
