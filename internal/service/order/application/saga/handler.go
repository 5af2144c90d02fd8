package saga

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/mq"
	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/domain/port"
)

// CheckoutContext 在 Saga 流程中传递上下文数据。
// 所有外部依赖都是出站端口。
type CheckoutContext struct {
	Ctx    context.Context
	Order  *domain.Order
	Tracer trace.Tracer
	Now    time.Time

	// 结账请求
	GiftCardCode string
	RedeemPoints int64

	// 促销规则需要的客户信息
	CustomerTier string
	FirstOrder   bool
	FreeShipping bool

	Pricing        domain.PricingRules
	PaymentTimeout time.Duration

	// 依赖出站端口 (Interfaces)
	Cart       port.CartService
	Inventory  port.InventoryService
	Promotions port.PromotionService
	Loyalty    port.LoyaltyService
	GiftCards  port.GiftCardService
	Scheduler  port.DelayScheduler
	Events     mq.Publisher

	// 订单是否已经落库，失败时据此决定要不要标记 FAILED
	Persisted bool

	compensations []func(ctx context.Context)
	compLock      sync.Mutex
}

// AddCompensation 后注册的先执行
func (c *CheckoutContext) AddCompensation(comp func(ctx context.Context)) {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	c.compensations = append([]func(context.Context){comp}, c.compensations...)
}

// TriggerCompensation 按注册的逆序执行补偿，执行过的不会再执行
func (c *CheckoutContext) TriggerCompensation(ctx context.Context) {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	logger.Ctx(ctx).Info().Str("order_id", c.Order.ID).Int("count", len(c.compensations)).Msg("executing compensation functions")
	for _, comp := range c.compensations {
		comp(ctx)
	}
	c.compensations = nil
}

// Handler 和 NextHandler 构成责任链
type Handler interface {
	SetNext(handler Handler) Handler
	Handle(checkoutCtx *CheckoutContext) error
}

type NextHandler struct {
	next Handler
}

func (h *NextHandler) SetNext(handler Handler) Handler {
	h.next = handler
	return handler
}

func (h *NextHandler) executeNext(checkoutCtx *CheckoutContext) error {
	if h.next != nil {
		return h.next.Handle(checkoutCtx)
	}
	return nil
}
