package application

import (
	"context"
	"errors"
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
	"storefront/internal/service/payment/domain"
	"storefront/internal/service/payment/domain/port"
)

const (
	referenceAttempts = 3

	orderPendingPayment = "PENDING_PAYMENT"
	orderRefunded       = "REFUNDED"
)

// Options 支付相关配置
type Options struct {
	CryptoEnabled    bool
	CryptoCurrencies []string
	DepositSecret    []byte
}

// PaymentService 编排付款、确认到账与退款。订单状态只通过 OrderService 推进。
type PaymentService struct {
	repo    domain.Repository
	orders  port.OrderService
	rewards port.RewardService
	cards   port.CardProcessor
	locker  lock.Locker
	events  mq.Publisher
	opts    Options
	cryptos map[string]bool
	tracer  trace.Tracer
	now     func() time.Time
}

func NewPaymentService(repo domain.Repository, orders port.OrderService, rewards port.RewardService, cards port.CardProcessor,
	locker lock.Locker, events mq.Publisher, opts Options, tracer trace.Tracer) *PaymentService {
	cryptos := make(map[string]bool, len(opts.CryptoCurrencies))
	for _, c := range opts.CryptoCurrencies {
		cryptos[strings.ToUpper(c)] = true
	}
	return &PaymentService{
		repo:    repo,
		orders:  orders,
		rewards: rewards,
		cards:   cards,
		locker:  locker,
		events:  events,
		opts:    opts,
		cryptos: cryptos,
		tracer:  tracer,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Initiate 为待支付订单发起付款。
// CARD 同步扣款，成功即 CAPTURED；CRYPTO 和 BANK_TRANSFER 生成收款信息后保持 PENDING，等待 Confirm。
func (s *PaymentService) Initiate(ctx context.Context, customerID string, req InitiateRequest) (*domain.Payment, error) {
	ctx, span := s.tracer.Start(ctx, "payment.Initiate")
	defer span.End()

	method := domain.Method(strings.ToUpper(strings.TrimSpace(req.Method)))
	if !method.Valid() || (method == domain.MethodCrypto && !s.opts.CryptoEnabled) {
		return nil, domain.ErrUnsupportedMethod
	}
	crypto := strings.ToUpper(strings.TrimSpace(req.CryptoCurrency))
	if method == domain.MethodCrypto && !s.cryptos[crypto] {
		return nil, domain.ErrUnsupportedCurrency
	}
	if method == domain.MethodCard && strings.TrimSpace(req.CardToken) == "" {
		return nil, apperr.InvalidInput("card_token is required")
	}
	if strings.TrimSpace(req.OrderID) == "" {
		return nil, apperr.InvalidInput("order_id is required")
	}
	span.SetAttributes(attribute.String("order.id", req.OrderID), attribute.String("payment.method", string(method)))

	order, err := s.orders.OrderForPayment(ctx, customerID, req.OrderID)
	if err != nil {
		return nil, err
	}

	var p *domain.Payment
	err = lock.With(ctx, s.locker, "payment:"+order.ID, func() error {
		var ierr error
		p, ierr = s.initiate(ctx, order, method, crypto, strings.TrimSpace(req.CardToken))
		return ierr
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "payment initiation failed")
		return nil, err
	}
	span.SetAttributes(attribute.String("payment.id", p.ID), attribute.String("payment.status", string(p.Status)))
	return p, nil
}

func (s *PaymentService) initiate(ctx context.Context, order *port.OrderSnapshot, method domain.Method, crypto, cardToken string) (*domain.Payment, error) {
	if order.State != orderPendingPayment {
		return nil, domain.ErrOrderNotPayable
	}
	existing, err := s.repo.ListByOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	for _, e := range existing {
		if e.Status == domain.StatusCaptured {
			return nil, domain.ErrAlreadyCaptured
		}
		// 重复提交同一种离线付款，沿用之前的收款信息
		if e.Status == domain.StatusPending && e.Method == method && e.CryptoCurrency == crypto && e.AmountCents == order.TotalCents {
			return e, nil
		}
	}

	now := s.now()
	p := &domain.Payment{
		ID:          uuid.NewString(),
		OrderID:     order.ID,
		CustomerID:  order.CustomerID,
		Method:      method,
		AmountCents: order.TotalCents,
		Currency:    order.Currency,
		Status:      domain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	switch method {
	case domain.MethodCard:
		if err := s.repo.Create(ctx, p); err != nil {
			return nil, err
		}
		if err := s.chargeCard(ctx, p, cardToken); err != nil {
			return nil, err
		}
		return p, nil
	case domain.MethodCrypto:
		p.CryptoCurrency = crypto
		p.DepositAddress = domain.DepositAddress(s.opts.DepositSecret, crypto, p.ID)
		if err := s.repo.Create(ctx, p); err != nil {
			return nil, err
		}
	case domain.MethodBankTransfer:
		if err := s.createWithReference(ctx, p); err != nil {
			return nil, err
		}
	}

	metrics.PaymentOutcomes.WithLabelValues(string(method), string(domain.StatusPending)).Inc()
	logger.Ctx(ctx).Info().Str("payment_id", p.ID).Str("order_id", p.OrderID).Str("method", string(method)).Msg("payment awaiting funds")
	return p, nil
}

// createWithReference 附言撞车时重新生成
func (s *PaymentService) createWithReference(ctx context.Context, p *domain.Payment) error {
	for attempt := 0; attempt < referenceAttempts; attempt++ {
		ref, err := domain.NewBankReference()
		if err != nil {
			return err
		}
		p.Reference = ref
		err = s.repo.Create(ctx, p)
		if !errors.Is(err, domain.ErrReferenceCollision) {
			return err
		}
		logger.Ctx(ctx).Warn().Int("attempt", attempt+1).Msg("bank reference collision, regenerating")
	}
	return apperr.New(apperr.CodeInternal, "could not allocate a unique bank reference")
}

func (s *PaymentService) chargeCard(ctx context.Context, p *domain.Payment, token string) error {
	auth, err := s.cards.Charge(ctx, port.ChargeRequest{Token: token, AmountCents: p.AmountCents, Currency: p.Currency, PaymentID: p.ID})
	if err != nil {
		s.fail(ctx, p, apperr.MessageOf(err))
		return err
	}
	p.Reference = auth
	return s.capture(ctx, p, "")
}

// capture 先推进订单再记账，订单推进失败说明订单已被取消或付清，卡款原路退回
func (s *PaymentService) capture(ctx context.Context, p *domain.Payment, txHash string) error {
	if err := s.orders.MarkPaid(ctx, p.OrderID); err != nil {
		bg := context.WithoutCancel(ctx)
		if p.Method == domain.MethodCard && p.Reference != "" {
			if rerr := s.cards.Refund(bg, p.Reference, p.AmountCents); rerr != nil {
				logger.Ctx(ctx).Error().Err(rerr).Str("payment_id", p.ID).Msg("CRITICAL: failed to void card charge for unpayable order")
			}
		} else {
			logger.Ctx(ctx).Error().Err(err).Str("payment_id", p.ID).Str("order_id", p.OrderID).Msg("CRITICAL: funds received for an order that can no longer be paid, manual refund required")
		}
		s.fail(bg, p, "order no longer payable: "+apperr.MessageOf(err))
		if apperr.CodeOf(err) == apperr.CodeConflict {
			return domain.ErrOrderNotPayable
		}
		return err
	}

	from := p.Status
	if err := p.Capture(txHash, s.now()); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, p, from); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("payment_id", p.ID).Str("order_id", p.OrderID).Msg("CRITICAL: order marked paid but payment capture not recorded")
		return err
	}

	if s.rewards != nil {
		if err := s.rewards.Earn(ctx, p.CustomerID, p.OrderID, p.AmountCents); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("order_id", p.OrderID).Msg("failed to award loyalty points")
		}
	}
	metrics.PaymentOutcomes.WithLabelValues(string(p.Method), string(domain.StatusCaptured)).Inc()
	logger.Ctx(ctx).Info().Str("payment_id", p.ID).Str("order_id", p.OrderID).Int64("amount_cents", p.AmountCents).Msg("payment captured")
	s.publish(ctx, mq.EventPaymentCaptured, p.OrderID, PaymentCaptured{
		PaymentID:   p.ID,
		OrderID:     p.OrderID,
		CustomerID:  p.CustomerID,
		Method:      string(p.Method),
		AmountCents: p.AmountCents,
	})
	return nil
}

func (s *PaymentService) fail(ctx context.Context, p *domain.Payment, reason string) {
	if err := p.Fail(reason, s.now()); err != nil {
		return
	}
	if err := s.repo.Update(ctx, p, domain.StatusPending); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("payment_id", p.ID).Msg("failed to record payment failure")
	}
	metrics.PaymentOutcomes.WithLabelValues(string(p.Method), string(domain.StatusFailed)).Inc()
}

// Confirm 确认离线付款到账，到账金额必须覆盖应付金额
func (s *PaymentService) Confirm(ctx context.Context, paymentID string, req ConfirmRequest) (*domain.Payment, error) {
	ctx, span := s.tracer.Start(ctx, "payment.Confirm")
	defer span.End()
	span.SetAttributes(attribute.String("payment.id", paymentID))

	p, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if err := s.confirm(ctx, p, req.AmountCents, strings.TrimSpace(req.TxHash)); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return p, nil
}

// ConfirmTransfer 按银行附言匹配支付单并确认
func (s *PaymentService) ConfirmTransfer(ctx context.Context, notice TransferNotice) (*domain.Payment, error) {
	ctx, span := s.tracer.Start(ctx, "payment.ConfirmTransfer")
	defer span.End()

	ref := domain.NormalizeReference(notice.Reference)
	if ref == "" {
		return nil, apperr.InvalidInput("reference is required")
	}
	p, err := s.repo.FindByReference(ctx, ref)
	if err != nil {
		return nil, err
	}
	if p.Method != domain.MethodBankTransfer {
		return nil, domain.ErrPaymentNotFound
	}
	if err := s.confirm(ctx, p, notice.AmountCents, ""); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return p, nil
}

func (s *PaymentService) confirm(ctx context.Context, p *domain.Payment, amount int64, txHash string) error {
	return lock.With(ctx, s.locker, "payment:"+p.OrderID, func() error {
		// 拿到锁后重新读取，避免基于过期状态确认
		fresh, err := s.repo.FindByID(ctx, p.ID)
		if err != nil {
			return err
		}
		*p = *fresh
		if p.Status != domain.StatusPending || p.Method == domain.MethodCard {
			return domain.ErrInvalidState
		}
		if p.Method == domain.MethodCrypto && txHash == "" {
			return domain.ErrTxHashRequired
		}
		if amount < p.AmountCents {
			logger.Ctx(ctx).Warn().Str("payment_id", p.ID).Int64("expected", p.AmountCents).Int64("received", amount).Msg("underpaid confirmation rejected")
			return domain.ErrUnderpaid
		}
		return s.capture(ctx, p, txHash)
	})
}

// Refund 退款：卡款原路退回，订单置为 REFUNDED 并退回礼品卡、积分和促销名额。
// 每一步都可以安全重试。
func (s *PaymentService) Refund(ctx context.Context, paymentID string) (*domain.Payment, error) {
	ctx, span := s.tracer.Start(ctx, "payment.Refund")
	defer span.End()
	span.SetAttributes(attribute.String("payment.id", paymentID))

	p, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	err = lock.With(ctx, s.locker, "payment:"+p.OrderID, func() error {
		return s.refund(ctx, p)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return p, nil
}

func (s *PaymentService) refund(ctx context.Context, p *domain.Payment) error {
	fresh, err := s.repo.FindByID(ctx, p.ID)
	if err != nil {
		return err
	}
	*p = *fresh
	if p.Status != domain.StatusCaptured {
		return domain.ErrInvalidState
	}
	order, err := s.orders.OrderForPayment(ctx, "", p.OrderID)
	if err != nil {
		return err
	}

	// 订单已是 REFUNDED 说明上一次已经退过卡款
	if p.Method == domain.MethodCard && order.State != orderRefunded {
		if err := s.cards.Refund(ctx, p.Reference, p.AmountCents); err != nil && !errors.Is(err, domain.ErrChargeRefunded) {
			return err
		}
	}
	// 订单侧幂等，重复调用会补做上次失败的资源退回；失败时支付单保持 CAPTURED 以便重试
	if err := s.orders.MarkRefunded(ctx, p.OrderID); err != nil {
		return err
	}
	if err := p.Refund(s.now()); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, p, domain.StatusCaptured); err != nil {
		return err
	}

	metrics.PaymentOutcomes.WithLabelValues(string(p.Method), string(domain.StatusRefunded)).Inc()
	logger.Ctx(ctx).Info().Str("payment_id", p.ID).Str("order_id", p.OrderID).Msg("payment refunded")
	s.publish(ctx, mq.EventPaymentRefunded, p.OrderID, PaymentRefunded{
		PaymentID:   p.ID,
		OrderID:     p.OrderID,
		CustomerID:  p.CustomerID,
		AmountCents: p.AmountCents,
	})
	return nil
}

// Get 客户只能看自己的支付单
func (s *PaymentService) Get(ctx context.Context, customerID string, admin bool, id string) (*domain.Payment, error) {
	ctx, span := s.tracer.Start(ctx, "payment.Get")
	defer span.End()

	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !admin && p.CustomerID != customerID {
		return nil, domain.ErrPaymentNotFound
	}
	return p, nil
}

// ListForOrder customerID 为空表示后台查询
func (s *PaymentService) ListForOrder(ctx context.Context, customerID, orderID string) ([]*domain.Payment, error) {
	ctx, span := s.tracer.Start(ctx, "payment.ListForOrder")
	defer span.End()

	if _, err := s.orders.OrderForPayment(ctx, customerID, orderID); err != nil {
		return nil, err
	}
	return s.repo.ListByOrder(ctx, orderID)
}

func (s *PaymentService) publish(ctx context.Context, eventType, key string, payload any) {
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
