// internal/service/order/application/service.go
package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/apperr"
	"storefront/internal/pkg/lock"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
	"storefront/internal/pkg/mq"
	"storefront/internal/pkg/pagination"
	"storefront/internal/service/order/application/saga"
	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/domain/port"
	promotion "storefront/internal/service/promotion/domain"
)

const overdueBatchSize = 100

// Ports 是结账流程依赖的所有出站端口
type Ports struct {
	Cart       port.CartService
	Inventory  port.InventoryService
	Promotions port.PromotionService
	Loyalty    port.LoyaltyService
	GiftCards  port.GiftCardService
	Addresses  port.AddressBook
	Scheduler  port.DelayScheduler
}

// Options 结账相关配置
type Options struct {
	Currency          string
	Pricing           domain.PricingRules
	PaymentTimeout    time.Duration
	ProcessingTimeout time.Duration
}

// Actor 是发起操作的人，管理员可以操作任意订单
type Actor struct {
	CustomerID string
	Admin      bool
}

// OrderApplicationService 只关注业务流程编排。
type OrderApplicationService struct {
	orderRepo domain.OrderRepository
	ports     Ports
	opts      Options
	locker    lock.Locker
	events    mq.Publisher
	tracer    trace.Tracer
	now       func() time.Time
}

func NewOrderApplicationService(orderRepo domain.OrderRepository, ports Ports, opts Options, locker lock.Locker, events mq.Publisher, tracer trace.Tracer) *OrderApplicationService {
	if opts.PaymentTimeout <= 0 {
		opts.PaymentTimeout = 15 * time.Minute
	}
	if opts.ProcessingTimeout <= 0 {
		opts.ProcessingTimeout = 10 * time.Second
	}
	return &OrderApplicationService{
		orderRepo: orderRepo,
		ports:     ports,
		opts:      opts,
		locker:    locker,
		events:    events,
		tracer:    tracer,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Checkout 把购物车变成订单。流程中任意一步失败，已完成步骤按逆序补偿，订单标记为 FAILED。
// 同一客户的结账串行执行，避免重复点击生成两张订单。
func (s *OrderApplicationService) Checkout(ctx context.Context, customerID string, req CheckoutRequest) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.Checkout")
	defer span.End()
	span.SetAttributes(attribute.String("customer.id", customerID))

	if req.RedeemPoints < 0 {
		return nil, apperr.InvalidInput("redeem_points must not be negative")
	}
	if strings.TrimSpace(req.AddressID) == "" {
		return nil, apperr.InvalidInput("address_id is required")
	}
	addr, err := s.ports.Addresses.GetAddress(ctx, customerID, req.AddressID)
	if err != nil {
		return nil, err
	}

	var order *domain.Order
	err = lock.With(ctx, s.locker, "checkout:"+customerID, func() error {
		var cerr error
		order, cerr = s.checkout(ctx, customerID, addr.String(), req)
		return cerr
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "checkout failed")
		metrics.CheckoutOutcomes.WithLabelValues("failed").Inc()
		return nil, err
	}
	metrics.CheckoutOutcomes.WithLabelValues(strings.ToLower(string(order.State))).Inc()
	span.SetAttributes(attribute.String("order.id", order.ID), attribute.String("order.state", string(order.State)))
	return order, nil
}

func (s *OrderApplicationService) checkout(ctx context.Context, customerID, address string, req CheckoutRequest) (*domain.Order, error) {
	// 为每个订单的处理流程设置独立的超时时间
	processingCtx, cancel := context.WithTimeout(ctx, s.opts.ProcessingTimeout)
	defer cancel()

	tier, first, err := s.customerFacts(processingCtx, customerID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	order := domain.NewOrder(uuid.NewString(), customerID, address, s.opts.Currency, now)
	order.PromoCode = promotion.NormalizeCode(req.PromoCode)

	checkoutCtx := &saga.CheckoutContext{
		Ctx:            processingCtx,
		Order:          order,
		Tracer:         s.tracer,
		Now:            now,
		GiftCardCode:   strings.TrimSpace(req.GiftCardCode),
		RedeemPoints:   req.RedeemPoints,
		CustomerTier:   tier,
		FirstOrder:     first,
		Pricing:        s.opts.Pricing,
		PaymentTimeout: s.opts.PaymentTimeout,
		Cart:           s.ports.Cart,
		Inventory:      s.ports.Inventory,
		Promotions:     s.ports.Promotions,
		Loyalty:        s.ports.Loyalty,
		GiftCards:      s.ports.GiftCards,
		Scheduler:      s.ports.Scheduler,
		Events:         s.events,
	}

	logger.Ctx(ctx).Info().Str("order_id", order.ID).Str("customer_id", customerID).Msg("starting checkout")

	if err := s.buildChain().Handle(checkoutCtx); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("order_id", order.ID).Msg("checkout chain failed, compensating")

		// 补偿不能因为请求超时而中断
		compCtx := context.WithoutCancel(ctx)
		checkoutCtx.TriggerCompensation(compCtx)
		if checkoutCtx.Persisted {
			order.MarkAsFailed(apperr.MessageOf(err), s.now())
			if updateErr := s.orderRepo.Update(compCtx, order); updateErr != nil {
				logger.Ctx(ctx).Error().Err(updateErr).Str("order_id", order.ID).Msg("CRITICAL: failed to mark order FAILED after compensation")
			}
		}
		return nil, err
	}

	logger.Ctx(ctx).Info().Str("order_id", order.ID).Str("state", string(order.State)).Int64("total_cents", order.TotalCents).Msg("order placed")
	return order, nil
}

func (s *OrderApplicationService) buildChain() saga.Handler {
	chain := saga.NewCartHandler(s.orderRepo)
	chain.
		SetNext(new(saga.InventoryHandler)).
		SetNext(new(saga.PromotionHandler)).
		SetNext(new(saga.PricingHandler)).
		SetNext(new(saga.LoyaltyHandler)).
		SetNext(new(saga.GiftCardHandler)).
		SetNext(saga.NewCreateOrderHandler(s.orderRepo)).
		SetNext(new(saga.NotificationHandler))
	return chain
}

// customerFacts 返回促销规则需要的客户等级和是否首单
func (s *OrderApplicationService) customerFacts(ctx context.Context, customerID string) (string, bool, error) {
	tier, err := s.ports.Loyalty.Tier(ctx, customerID)
	if err != nil {
		return "", false, err
	}
	placed, err := s.orderRepo.CountPlaced(ctx, customerID)
	if err != nil {
		return "", false, err
	}
	return tier, placed == 0, nil
}

// PromotionInput 用当前购物车构造促销试算输入，供促销码预校验使用
func (s *OrderApplicationService) PromotionInput(ctx context.Context, customerID string) (promotion.EvaluationInput, error) {
	ctx, span := s.tracer.Start(ctx, "order.PromotionInput")
	defer span.End()

	c, err := s.ports.Cart.GetCart(ctx, customerID)
	if err != nil {
		return promotion.EvaluationInput{}, err
	}
	tier, first, err := s.customerFacts(ctx, customerID)
	if err != nil {
		return promotion.EvaluationInput{}, err
	}
	draft := &domain.Order{CustomerID: customerID}
	for _, l := range c.Lines {
		if !l.Available {
			continue
		}
		draft.Lines = append(draft.Lines, domain.Line{ProductID: l.ProductID, CategoryID: l.CategoryID, UnitCents: l.UnitCents, Quantity: l.Quantity})
	}
	return saga.EvaluationInput(draft, tier, first, s.opts.Pricing.FlatShippingCents), nil
}

// GetOrder 非管理员只能看到自己的订单，看不到的一律按不存在处理
func (s *OrderApplicationService) GetOrder(ctx context.Context, actor Actor, id string) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.GetOrder")
	defer span.End()

	o, err := s.orderRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Admin && o.CustomerID != actor.CustomerID {
		return nil, domain.ErrOrderNotFound
	}
	return o, nil
}

// ListOrders customerID 为空时列出所有客户的订单 (后台)
func (s *OrderApplicationService) ListOrders(ctx context.Context, customerID string, q ListOrdersQuery) (pagination.Page[*OrderDTO], error) {
	ctx, span := s.tracer.Start(ctx, "order.ListOrders")
	defer span.End()

	cursor, err := pagination.Parse(q.Cursor)
	if err != nil {
		return pagination.Page[*OrderDTO]{}, err
	}
	state := domain.State(strings.ToUpper(q.Status))
	if state != "" && !state.Valid() {
		return pagination.Page[*OrderDTO]{}, apperr.InvalidInput("unknown status %q", q.Status)
	}
	limit := pagination.NormalizeLimit(q.Limit)
	orders, err := s.orderRepo.List(ctx, domain.ListFilter{CustomerID: customerID, State: state, Cursor: cursor, Limit: limit})
	if err != nil {
		span.RecordError(err)
		return pagination.Page[*OrderDTO]{}, err
	}
	dtos := make([]*OrderDTO, 0, len(orders))
	for _, o := range orders {
		dtos = append(dtos, ToOrderDTO(o))
	}
	return pagination.BuildPage(dtos, limit, func(d *OrderDTO) pagination.Cursor {
		return pagination.Cursor{CreatedAt: d.CreatedAt, ID: d.ID}
	}), nil
}

// CancelOrder 只能取消待支付的订单，退回礼品卡、积分、促销和库存
func (s *OrderApplicationService) CancelOrder(ctx context.Context, actor Actor, id string) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.CancelOrder")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", id))

	o, err := s.GetOrder(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	reason := "cancelled by customer"
	if actor.Admin && o.CustomerID != actor.CustomerID {
		reason = "cancelled by admin"
	}
	if err := s.cancel(ctx, o, reason); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return o, nil
}

func (s *OrderApplicationService) cancel(ctx context.Context, o *domain.Order, reason string) error {
	now := s.now()
	if err := o.Cancel(now); err != nil {
		return err
	}
	// 条件更新保证并发的支付与取消只有一个能成功
	if err := s.orderRepo.Transition(ctx, o.ID, []domain.State{domain.StatePendingPayment}, domain.StateCancelled, now); err != nil {
		return err
	}
	// 取消后没有重试入口，失败已在内部记录
	_ = s.releaseResources(context.WithoutCancel(ctx), o, true)
	logger.Ctx(ctx).Info().Str("order_id", o.ID).Str("reason", reason).Msg("order cancelled")
	s.publish(ctx, mq.EventOrderCancelled, o.ID, domain.OrderCancelled{OrderID: o.ID, CustomerID: o.CustomerID, Reason: reason})
	return nil
}

// releaseResources 退回订单占用的资源。每一步都是幂等的，某一步失败不影响其余步骤，
// 返回所有失败步骤合并后的错误。
func (s *OrderApplicationService) releaseResources(ctx context.Context, o *domain.Order, restock bool) error {
	ctx, span := s.tracer.Start(ctx, "order.ReleaseResources")
	defer span.End()

	var errs []error
	fail := func(step string, err error) {
		span.RecordError(err, trace.WithAttributes(attribute.Bool("critical.error", true)))
		logger.Ctx(ctx).Error().Err(err).Str("order_id", o.ID).Str("step", step).Msg("CRITICAL: failed to release order resources")
		errs = append(errs, fmt.Errorf("release %s: %w", step, err))
	}
	if o.GiftCardCents > 0 {
		if err := s.ports.GiftCards.Refund(ctx, o.ID); err != nil {
			fail("giftcard", err)
		}
	}
	if err := s.ports.Loyalty.Reverse(ctx, o.ID); err != nil {
		fail("loyalty", err)
	}
	if o.PromoCode != "" {
		if err := s.ports.Promotions.Release(ctx, o.ID); err != nil {
			fail("promotion", err)
		}
	}
	if restock {
		if err := s.ports.Inventory.ReleaseStock(ctx, saga.StockLines(o.Lines)); err != nil {
			fail("inventory", err)
		}
	}
	return errors.Join(errs...)
}

// MarkFulfilled 后台发货
func (s *OrderApplicationService) MarkFulfilled(ctx context.Context, id string) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.MarkFulfilled")
	defer span.End()

	o, err := s.orderRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := o.Fulfill(now); err != nil {
		return nil, err
	}
	if err := s.orderRepo.Transition(ctx, id, []domain.State{domain.StatePaid}, domain.StateFulfilled, now); err != nil {
		span.RecordError(err)
		return nil, err
	}
	logger.Ctx(ctx).Info().Str("order_id", id).Msg("order fulfilled")
	s.publish(ctx, mq.EventOrderFulfilled, id, domain.OrderFulfilled{OrderID: id, CustomerID: o.CustomerID})
	return o, nil
}

// MarkPaid 支付服务确认收款后调用
func (s *OrderApplicationService) MarkPaid(ctx context.Context, id string) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.MarkPaid")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", id))

	o, err := s.orderRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := o.MarkAsPaid(now); err != nil {
		return nil, err
	}
	if err := s.orderRepo.Transition(ctx, id, []domain.State{domain.StatePendingPayment}, domain.StatePaid, now); err != nil {
		span.RecordError(err)
		return nil, err
	}
	logger.Ctx(ctx).Info().Str("order_id", id).Msg("order paid")
	return o, nil
}

// MarkRefunded 支付退款后调用，退回礼品卡、积分和促销，不回补库存。
// 对已退款的订单重复调用只会重做资源退回，资源退回失败时返回错误，调用方可重试。
func (s *OrderApplicationService) MarkRefunded(ctx context.Context, id string) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.MarkRefunded")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", id))

	o, err := s.orderRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.State != domain.StateRefunded {
		now := s.now()
		if err := o.Refund(now); err != nil {
			return nil, err
		}
		if err := s.orderRepo.Transition(ctx, id, domain.SourcesOf(domain.StateRefunded), domain.StateRefunded, now); err != nil {
			span.RecordError(err)
			return nil, err
		}
		logger.Ctx(ctx).Info().Str("order_id", id).Msg("order refunded")
	}
	if err := s.releaseResources(context.WithoutCancel(ctx), o, false); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return o, nil
}

// HandlePaymentTimeout 处理到期的支付超时检查，仍未支付的订单取消并释放资源
func (s *OrderApplicationService) HandlePaymentTimeout(ctx context.Context, event *domain.PaymentTimeoutCheck) error {
	ctx, span := s.tracer.Start(ctx, "order.HandlePaymentTimeout", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(attribute.String("order.id", event.OrderID), attribute.String("customer.id", event.CustomerID))

	o, err := s.orderRepo.FindByID(ctx, event.OrderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			logger.Ctx(ctx).Warn().Str("order_id", event.OrderID).Msg("timeout check for unknown order, skipped")
			return nil
		}
		return err
	}
	span.SetAttributes(attribute.String("order.state", string(o.State)))
	if o.State != domain.StatePendingPayment {
		logger.Ctx(ctx).Debug().Str("order_id", o.ID).Str("state", string(o.State)).Msg("order no longer pending, timeout ignored")
		return nil
	}

	// 提前投递时重新排队
	if wait := event.Deadline.Sub(s.now()); wait > 0 && s.ports.Scheduler != nil {
		logger.Ctx(ctx).Info().Str("order_id", o.ID).Dur("wait", wait).Msg("timeout check delivered early, rescheduling")
		return s.ports.Scheduler.SchedulePaymentTimeout(ctx, o.ID, o.CustomerID, event.Deadline)
	}

	logger.Ctx(ctx).Warn().Str("order_id", o.ID).Msg("order has not been paid within the time limit, cancelling")
	err = s.cancel(ctx, o, "payment timeout")
	if errors.Is(err, domain.ErrInvalidTransition) {
		// 和支付并发，支付先到
		return nil
	}
	return err
}

// CancelOverdue 巡检超时仍未支付的订单，兜底延迟消息丢失的情况
func (s *OrderApplicationService) CancelOverdue(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "order.CancelOverdue")
	defer span.End()

	orders, err := s.orderRepo.ListPendingBefore(ctx, s.now().Add(-s.opts.PaymentTimeout), overdueBatchSize)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	cancelled := 0
	for _, o := range orders {
		if err := s.cancel(ctx, o, "payment timeout"); err != nil {
			if !errors.Is(err, domain.ErrInvalidTransition) {
				logger.Ctx(ctx).Error().Err(err).Str("order_id", o.ID).Msg("cancel overdue order failed")
			}
			continue
		}
		cancelled++
	}
	span.SetAttributes(attribute.Int("orders.cancelled", cancelled))
	return cancelled, nil
}

// publish 发布失败只记日志，不影响主流程
func (s *OrderApplicationService) publish(ctx context.Context, eventType, key string, payload any) {
	if s.events == nil {
		return
	}
	ev, err := mq.NewEvent(eventType, key, payload)
	if err == nil {
		err = s.events.Publish(ctx, ev)
	}
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("event", eventType).Msg("failed to publish event")
	}
}
