package saga

import (
	"go.opentelemetry.io/otel/attribute"

	"storefront/internal/pkg/logger"
)

// PricingHandler 计算运费和税。纯计算，没有补偿。
type PricingHandler struct {
	NextHandler
}

func (h *PricingHandler) Handle(checkoutCtx *CheckoutContext) error {
	ctx, span := checkoutCtx.Tracer.Start(checkoutCtx.Ctx, "saga.Pricing")
	defer span.End()

	logger.Ctx(ctx).Debug().Msg("【Saga】=> 步骤 4: 计算运费和税...")

	order := checkoutCtx.Order
	checkoutCtx.Pricing.Apply(order, checkoutCtx.FreeShipping)
	span.SetAttributes(
		attribute.Int64("order.shipping_cents", order.ShippingCents),
		attribute.Int64("order.tax_cents", order.TaxCents),
		attribute.Int64("order.chargeable_cents", order.ChargeableCents()),
	)

	return h.executeNext(checkoutCtx)
}
