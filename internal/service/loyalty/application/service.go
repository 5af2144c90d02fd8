package application

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/apperr"
	"storefront/internal/pkg/lock"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
	"storefront/internal/service/loyalty/domain"
)

const transactionPageSize = 100

// Options 积分兑换参数
type Options struct {
	RedeemCentsPerPoint int64
	MinRedeemPoints     int64
}

// LoyaltyService 积分账户用例
type LoyaltyService struct {
	repo   domain.Repository
	locker lock.Locker
	opts   Options
	tracer trace.Tracer
}

func NewLoyaltyService(repo domain.Repository, locker lock.Locker, opts Options, tracer trace.Tracer) *LoyaltyService {
	if opts.RedeemCentsPerPoint <= 0 {
		opts.RedeemCentsPerPoint = 1
	}
	if opts.MinRedeemPoints <= 0 {
		opts.MinRedeemPoints = 100
	}
	return &LoyaltyService{repo: repo, locker: locker, opts: opts, tracer: tracer}
}

// GetOrCreateAccount 第一次访问时开户，并发开户时以先写入的为准
func (s *LoyaltyService) GetOrCreateAccount(ctx context.Context, customerID string) (*domain.Account, error) {
	ctx, span := s.tracer.Start(ctx, "loyalty.GetOrCreateAccount")
	defer span.End()

	a, err := s.repo.FindByCustomer(ctx, customerID)
	if err == nil || !errors.Is(err, domain.ErrAccountNotFound) {
		return a, err
	}
	now := time.Now().UTC()
	a = &domain.Account{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		Tier:       domain.TierBronze,
		Status:     domain.StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		if errors.Is(err, domain.ErrAccountExists) {
			return s.repo.FindByCustomer(ctx, customerID)
		}
		span.RecordError(err)
		return nil, err
	}
	logger.Ctx(ctx).Info().Str("customer_id", customerID).Msg("loyalty account opened")
	return a, nil
}

// Earn 按实付金额和当前等级送积分，同一订单只送一次。积分为 0 时返回 nil。
func (s *LoyaltyService) Earn(ctx context.Context, customerID, orderID string, paidCents int64) (*domain.PointsTransaction, error) {
	ctx, span := s.tracer.Start(ctx, "loyalty.Earn")
	defer span.End()
	span.SetAttributes(attribute.String("customer.id", customerID), attribute.String("order.id", orderID))

	a, err := s.GetOrCreateAccount(ctx, customerID)
	if err != nil {
		return nil, err
	}
	points := domain.PointsFor(paidCents, a.Tier)
	if points <= 0 {
		return nil, nil
	}
	var t *domain.PointsTransaction
	err = lock.With(ctx, s.locker, "loyalty:"+a.ID, func() error {
		var eerr error
		t, eerr = s.repo.Earn(ctx, a.ID, orderID, points)
		return eerr
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	metrics.LoyaltyMovements.WithLabelValues(string(domain.TxEarn)).Add(float64(t.Points))
	logger.Ctx(ctx).Info().Str("customer_id", customerID).Str("order_id", orderID).Int64("points", t.Points).Msg("points earned")
	return t, nil
}

func (s *LoyaltyService) checkGranularity(points int64) error {
	if points <= 0 || points%s.opts.MinRedeemPoints != 0 {
		return apperr.InvalidInput("points must be a positive multiple of %d", s.opts.MinRedeemPoints)
	}
	return nil
}

// QuoteRedemption 试算抵扣。maxCents 是可抵扣的上限，超出时按粒度向下收缩积分。
func (s *LoyaltyService) QuoteRedemption(ctx context.Context, customerID string, points, maxCents int64) (*RedemptionQuote, error) {
	ctx, span := s.tracer.Start(ctx, "loyalty.QuoteRedemption")
	defer span.End()

	if err := s.checkGranularity(points); err != nil {
		return nil, err
	}
	a, err := s.GetOrCreateAccount(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if a.Status != domain.StatusActive {
		return nil, domain.ErrAccountFrozen
	}
	if a.PointsBalance < points {
		return nil, domain.ErrInsufficientPoints
	}
	discount := points * s.opts.RedeemCentsPerPoint
	if maxCents >= 0 && discount > maxCents {
		points = maxCents / s.opts.RedeemCentsPerPoint / s.opts.MinRedeemPoints * s.opts.MinRedeemPoints
		discount = points * s.opts.RedeemCentsPerPoint
	}
	return &RedemptionQuote{Points: points, DiscountCents: discount}, nil
}

// Redeem 下单时扣积分，返回抵扣金额。同一订单只扣一次。
func (s *LoyaltyService) Redeem(ctx context.Context, customerID, orderID string, points int64) (*domain.PointsTransaction, int64, error) {
	ctx, span := s.tracer.Start(ctx, "loyalty.Redeem")
	defer span.End()
	span.SetAttributes(attribute.String("customer.id", customerID), attribute.String("order.id", orderID), attribute.Int64("points", points))

	if err := s.checkGranularity(points); err != nil {
		return nil, 0, err
	}
	a, err := s.repo.FindByCustomer(ctx, customerID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, 0, domain.ErrInsufficientPoints
		}
		return nil, 0, err
	}
	var t *domain.PointsTransaction
	err = lock.With(ctx, s.locker, "loyalty:"+a.ID, func() error {
		var rerr error
		t, rerr = s.repo.Redeem(ctx, a.ID, orderID, points)
		return rerr
	})
	if err != nil {
		span.RecordError(err)
		return nil, 0, err
	}
	discount := -t.Points * s.opts.RedeemCentsPerPoint
	metrics.LoyaltyMovements.WithLabelValues(string(domain.TxRedeem)).Add(metrics.Abs(t.Points))
	metrics.DiscountCents.WithLabelValues("points").Add(float64(discount))
	logger.Ctx(ctx).Info().Str("customer_id", customerID).Str("order_id", orderID).Int64("points", -t.Points).Msg("points redeemed")
	return t, discount, nil
}

// Reverse 订单取消或退款时冲正
func (s *LoyaltyService) Reverse(ctx context.Context, orderID string) error {
	ctx, span := s.tracer.Start(ctx, "loyalty.Reverse")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	reversals, err := s.repo.ReverseOrder(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	for _, t := range reversals {
		metrics.LoyaltyMovements.WithLabelValues(string(domain.TxReverse)).Add(metrics.Abs(t.Points))
		logger.Ctx(ctx).Info().Str("account_id", t.AccountID).Str("order_id", orderID).Int64("points", t.Points).Msg("points reversed")
	}
	return nil
}

// Adjust 后台手工调整积分
func (s *LoyaltyService) Adjust(ctx context.Context, customerID string, req AdjustRequest) (*domain.PointsTransaction, error) {
	ctx, span := s.tracer.Start(ctx, "loyalty.Adjust")
	defer span.End()

	note := strings.TrimSpace(req.Note)
	switch {
	case req.DeltaPoints == 0:
		return nil, apperr.InvalidInput("delta must not be zero")
	case note == "":
		return nil, apperr.InvalidInput("note is required")
	}
	a, err := s.GetOrCreateAccount(ctx, customerID)
	if err != nil {
		return nil, err
	}
	var t *domain.PointsTransaction
	err = lock.With(ctx, s.locker, "loyalty:"+a.ID, func() error {
		var aerr error
		t, aerr = s.repo.Adjust(ctx, a.ID, req.DeltaPoints, note)
		return aerr
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	metrics.LoyaltyMovements.WithLabelValues(string(domain.TxAdjust)).Add(metrics.Abs(t.Points))
	return t, nil
}

func (s *LoyaltyService) ListTransactions(ctx context.Context, customerID string) ([]*domain.PointsTransaction, error) {
	ctx, span := s.tracer.Start(ctx, "loyalty.ListTransactions")
	defer span.End()

	a, err := s.repo.FindByCustomer(ctx, customerID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return []*domain.PointsTransaction{}, nil
		}
		return nil, err
	}
	return s.repo.ListTransactions(ctx, a.ID, transactionPageSize)
}
