package saga

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/order/domain"
	promotion "storefront/internal/service/promotion/domain"
)

// PromotionHandler 试算并核销促销码，没有填促销码时直接跳过
type PromotionHandler struct {
	NextHandler
}

// EvaluationInput 用订单行项目构造促销试算输入，运费按基础运费计算
func EvaluationInput(o *domain.Order, tier string, firstOrder bool, shippingCents int64) promotion.EvaluationInput {
	lines := make([]promotion.OrderLine, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, promotion.OrderLine{
			ProductID:  l.ProductID,
			CategoryID: l.CategoryID,
			UnitCents:  l.UnitCents,
			Quantity:   l.Quantity,
		})
	}
	return promotion.EvaluationInput{
		CustomerID:    o.CustomerID,
		CustomerTier:  tier,
		FirstOrder:    firstOrder,
		Lines:         lines,
		ShippingCents: shippingCents,
	}
}

func (h *PromotionHandler) Handle(checkoutCtx *CheckoutContext) error {
	order := checkoutCtx.Order
	if order.PromoCode == "" {
		return h.executeNext(checkoutCtx)
	}

	ctx, span := checkoutCtx.Tracer.Start(checkoutCtx.Ctx, "saga.ApplyPromotion")
	defer span.End()
	span.SetAttributes(attribute.String("promotion.code", order.PromoCode))

	logger.Ctx(ctx).Debug().Msg("【Saga】=> 步骤 3: 核销促销码...")

	in := EvaluationInput(order, checkoutCtx.CustomerTier, checkoutCtx.FirstOrder, checkoutCtx.Pricing.FlatShippingCents)
	quote, err := checkoutCtx.Promotions.Evaluate(ctx, order.PromoCode, in)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if quote.FreeShipping && checkoutCtx.Pricing.Shipping(order.SubtotalCents, 0, false) == 0 {
		// 已达包邮门槛，包邮券不核销
		logger.Ctx(ctx).Info().Str("promotion", quote.Code).Msg("order already ships free, free shipping promotion not redeemed")
		span.SetAttributes(attribute.Bool("promotion.skipped", true))
		order.PromoCode = ""
		return h.executeNext(checkoutCtx)
	}
	if err := checkoutCtx.Promotions.Redeem(ctx, quote, order.CustomerID, order.ID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Promotion redemption failed")
		return err
	}

	checkoutCtx.AddCompensation(func(compCtx context.Context) {
		compCtx, compSpan := checkoutCtx.Tracer.Start(compCtx, "saga.compensation.ReleasePromotion")
		defer compSpan.End()
		if err := checkoutCtx.Promotions.Release(compCtx, order.ID); err != nil {
			compSpan.RecordError(err)
			logger.Ctx(compCtx).Error().Err(err).Str("order_id", order.ID).Msg("CRITICAL: release promotion failed")
		}
	})

	order.PromoCode = quote.Code
	if quote.FreeShipping {
		checkoutCtx.FreeShipping = true
	} else {
		order.DiscountCents = quote.DiscountCents
	}
	span.SetAttributes(attribute.Int64("promotion.discount_cents", quote.DiscountCents), attribute.Bool("promotion.free_shipping", quote.FreeShipping))

	return h.executeNext(checkoutCtx)
}
