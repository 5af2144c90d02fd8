package saga

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/order/domain"
)

// CreateOrderHandler 负责确定订单状态、持久化并调度支付超时检查。
type CreateOrderHandler struct {
	NextHandler
	repo domain.OrderRepository // <-- 注入仓储接口
}

func NewCreateOrderHandler(repo domain.OrderRepository) *CreateOrderHandler {
	return &CreateOrderHandler{repo: repo}
}

func (h *CreateOrderHandler) Handle(checkoutCtx *CheckoutContext) error {
	ctx, span := checkoutCtx.Tracer.Start(checkoutCtx.Ctx, "saga.CreateOrder")
	defer span.End()

	logger.Ctx(ctx).Debug().Msg("【Saga】=> 步骤 7: 保存订单并调度支付超时任务...")

	// 1. 应付为 0 的订单直接完成支付，否则等待支付
	order := checkoutCtx.Order
	order.RecomputeTotal()
	var err error
	if order.TotalCents == 0 {
		err = order.MarkAsPaid(checkoutCtx.Now)
	} else {
		err = order.MarkAsPendingPayment(checkoutCtx.Now)
	}
	if err != nil {
		return err
	}
	if err := h.repo.Update(ctx, order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save order failed")
		return err
	}
	span.SetAttributes(attribute.String("order.state", string(order.State)), attribute.Int64("order.total_cents", order.TotalCents))
	span.AddEvent("Order saved to DB.")

	if order.State != domain.StatePendingPayment || checkoutCtx.Scheduler == nil {
		return h.executeNext(checkoutCtx)
	}

	// 2. 调用抽象的调度器接口
	err = checkoutCtx.Scheduler.SchedulePaymentTimeout(ctx, order.ID, order.CustomerID, order.CreatedAt.Add(checkoutCtx.PaymentTimeout))
	if err != nil {
		// 订单已经创建成功，调度失败由 worker 的超时订单巡检兜底，这里只记录错误
		span.RecordError(err)
		logger.Ctx(ctx).Error().Err(err).Str("order_id", order.ID).Msg("failed to schedule payment timeout")
	}

	return h.executeNext(checkoutCtx)
}
