package saga

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"storefront/internal/pkg/logger"
	cart "storefront/internal/service/cart/domain"
	"storefront/internal/service/order/domain"
)

// CartHandler 读取计价后的购物车，生成行项目快照并保存 CREATED 订单
type CartHandler struct {
	NextHandler
	repo domain.OrderRepository
}

func NewCartHandler(repo domain.OrderRepository) *CartHandler {
	return &CartHandler{repo: repo}
}

func (h *CartHandler) Handle(checkoutCtx *CheckoutContext) error {
	ctx, span := checkoutCtx.Tracer.Start(checkoutCtx.Ctx, "saga.LoadCart")
	defer span.End()

	logger.Ctx(ctx).Debug().Msg("【Saga】=> 步骤 1: 读取购物车...")

	c, err := checkoutCtx.Cart.GetCart(ctx, checkoutCtx.Order.CustomerID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if len(c.Lines) == 0 {
		return cart.ErrCartEmpty
	}
	if c.HasUnavailable() {
		return cart.ErrCartHasUnavailable
	}

	lines := make([]domain.Line, 0, len(c.Lines))
	for _, l := range c.Lines {
		lines = append(lines, domain.Line{
			ProductID:  l.ProductID,
			SKU:        l.SKU,
			Name:       l.Name,
			CategoryID: l.CategoryID,
			UnitCents:  l.UnitCents,
			Quantity:   l.Quantity,
		})
	}
	checkoutCtx.Order.SetLines(lines)
	span.SetAttributes(attribute.Int("order.lines", len(lines)), attribute.Int64("order.subtotal_cents", checkoutCtx.Order.SubtotalCents))

	if err := h.repo.Create(ctx, checkoutCtx.Order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save draft order failed")
		return err
	}
	checkoutCtx.Persisted = true
	span.AddEvent("Draft order saved with CREATED state.")

	return h.executeNext(checkoutCtx)
}
