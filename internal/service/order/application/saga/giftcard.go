package saga

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"storefront/internal/pkg/logger"
	giftcard "storefront/internal/service/giftcard/domain"
)

// GiftCardHandler 用礼品卡余额支付剩余金额，最多扣到 0
type GiftCardHandler struct {
	NextHandler
}

func (h *GiftCardHandler) Handle(checkoutCtx *CheckoutContext) error {
	if checkoutCtx.GiftCardCode == "" {
		return h.executeNext(checkoutCtx)
	}

	ctx, span := checkoutCtx.Tracer.Start(checkoutCtx.Ctx, "saga.RedeemGiftCard")
	defer span.End()

	logger.Ctx(ctx).Debug().Msg("【Saga】=> 步骤 6: 礼品卡支付...")

	order := checkoutCtx.Order
	card, err := checkoutCtx.GiftCards.Lookup(ctx, checkoutCtx.GiftCardCode)
	if err != nil {
		span.RecordError(err)
		return err
	}
	order.GiftCardCode = card.MaskedCode()

	remaining := order.RemainingCents()
	if remaining == 0 {
		// 积分已经抵扣完，卡不需要扣款
		return h.executeNext(checkoutCtx)
	}
	amount := min(card.BalanceCents, remaining)
	if amount <= 0 {
		return giftcard.ErrInsufficientBalance
	}
	t, err := checkoutCtx.GiftCards.Redeem(ctx, checkoutCtx.GiftCardCode, amount, order.ID)
	if err != nil {
		span.RecordError(err)
		return err
	}

	checkoutCtx.AddCompensation(func(compCtx context.Context) {
		compCtx, compSpan := checkoutCtx.Tracer.Start(compCtx, "saga.compensation.RefundGiftCard")
		defer compSpan.End()
		if err := checkoutCtx.GiftCards.Refund(compCtx, order.ID); err != nil {
			compSpan.RecordError(err)
			logger.Ctx(compCtx).Error().Err(err).Str("order_id", order.ID).Msg("CRITICAL: refund gift card failed")
		}
	})

	order.GiftCardCents = -t.AmountCents
	order.RecomputeTotal()
	span.SetAttributes(attribute.String("giftcard.id", card.ID), attribute.Int64("giftcard.amount_cents", order.GiftCardCents))

	return h.executeNext(checkoutCtx)
}
