package saga

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"storefront/internal/pkg/logger"
	catalog "storefront/internal/service/catalog/domain"
	"storefront/internal/service/order/domain"
)

// InventoryHandler 负责库存预占步骤。
type InventoryHandler struct {
	NextHandler
}

// StockLines 把订单行合并成库存行
func StockLines(lines []domain.Line) []catalog.StockLine {
	out := make([]catalog.StockLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, catalog.StockLine{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return catalog.MergeLines(out)
}

func (h *InventoryHandler) Handle(checkoutCtx *CheckoutContext) error {
	ctx, span := checkoutCtx.Tracer.Start(checkoutCtx.Ctx, "saga.InventoryReserve")
	defer span.End()

	logger.Ctx(ctx).Debug().Msg("【Saga】=> 步骤 2: 预占库存...")

	lines := StockLines(checkoutCtx.Order.Lines)
	span.SetAttributes(attribute.Int("items", len(lines)))

	if err := checkoutCtx.Inventory.ReserveStock(ctx, lines); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Inventory reservation failed")
		return err
	}

	checkoutCtx.AddCompensation(func(compCtx context.Context) {
		compCtx, compSpan := checkoutCtx.Tracer.Start(compCtx, "saga.compensation.ReleaseStock")
		defer compSpan.End()

		// 补偿失败需要记录严重错误，并可能需要人工介入
		if err := checkoutCtx.Inventory.ReleaseStock(compCtx, lines); err != nil {
			compSpan.RecordError(err)
			logger.Ctx(compCtx).Error().Err(err).Str("order_id", checkoutCtx.Order.ID).Msg("CRITICAL: release stock failed")
		}
	})

	span.AddEvent("All items reserved successfully")
	return h.executeNext(checkoutCtx)
}
