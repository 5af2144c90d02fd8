package saga

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/order/domain"
)

// LoyaltyHandler 用积分抵扣剩余金额
type LoyaltyHandler struct {
	NextHandler
}

func (h *LoyaltyHandler) Handle(checkoutCtx *CheckoutContext) error {
	if checkoutCtx.RedeemPoints == 0 {
		return h.executeNext(checkoutCtx)
	}

	ctx, span := checkoutCtx.Tracer.Start(checkoutCtx.Ctx, "saga.RedeemPoints")
	defer span.End()

	logger.Ctx(ctx).Debug().Msg("【Saga】=> 步骤 5: 积分抵扣...")

	order := checkoutCtx.Order
	points, _, err := checkoutCtx.Loyalty.QuoteRedemption(ctx, order.CustomerID, checkoutCtx.RedeemPoints, order.RemainingCents())
	if err != nil {
		span.RecordError(err)
		return err
	}
	if points == 0 {
		return domain.ErrNothingToRedeem
	}
	discount, err := checkoutCtx.Loyalty.Redeem(ctx, order.CustomerID, order.ID, points)
	if err != nil {
		span.RecordError(err)
		return err
	}

	checkoutCtx.AddCompensation(func(compCtx context.Context) {
		compCtx, compSpan := checkoutCtx.Tracer.Start(compCtx, "saga.compensation.ReversePoints")
		defer compSpan.End()
		if err := checkoutCtx.Loyalty.Reverse(compCtx, order.ID); err != nil {
			compSpan.RecordError(err)
			logger.Ctx(compCtx).Error().Err(err).Str("order_id", order.ID).Msg("CRITICAL: reverse points failed")
		}
	})

	order.PointsRedeemed = points
	order.PointsCents = discount
	order.RecomputeTotal()
	span.SetAttributes(attribute.Int64("loyalty.points", points), attribute.Int64("loyalty.discount_cents", discount))

	return h.executeNext(checkoutCtx)
}
