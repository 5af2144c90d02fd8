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
	"storefront/internal/pkg/mq"
	"storefront/internal/service/giftcard/domain"
)

const issueAttempts = 3

// GiftCardService 发卡、查余额与账本操作
type GiftCardService struct {
	repo     domain.Repository
	locker   lock.Locker
	events   mq.Publisher
	currency string
	tracer   trace.Tracer
	now      func() time.Time
}

func NewGiftCardService(repo domain.Repository, locker lock.Locker, events mq.Publisher, currency string, tracer trace.Tracer) *GiftCardService {
	return &GiftCardService{
		repo:     repo,
		locker:   locker,
		events:   events,
		currency: currency,
		tracer:   tracer,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Issue 发一张新卡，卡号撞车时重新生成
func (s *GiftCardService) Issue(ctx context.Context, req IssueRequest, purchaserID string) (*domain.GiftCard, error) {
	ctx, span := s.tracer.Start(ctx, "giftcard.Issue")
	defer span.End()

	if req.AmountCents < 1 || req.AmountCents > domain.MaxIssueCents {
		return nil, apperr.InvalidInput("amount must be between 1 and %d cents", domain.MaxIssueCents)
	}
	now := s.now()
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		return nil, apperr.InvalidInput("expires_at must be in the future")
	}
	recipient := strings.ToLower(strings.TrimSpace(req.RecipientEmail))

	var card *domain.GiftCard
	for attempt := 0; attempt < issueAttempts; attempt++ {
		code, err := domain.GenerateCode()
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		card = &domain.GiftCard{
			ID:             uuid.NewString(),
			Code:           code,
			InitialCents:   req.AmountCents,
			BalanceCents:   req.AmountCents,
			Currency:       s.currency,
			Status:         domain.StatusActive,
			ExpiresAt:      req.ExpiresAt,
			PurchaserID:    purchaserID,
			RecipientEmail: recipient,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		issue := &domain.Transaction{
			ID:           uuid.NewString(),
			GiftCardID:   card.ID,
			Type:         domain.TxIssue,
			AmountCents:  req.AmountCents,
			BalanceAfter: req.AmountCents,
			CreatedAt:    now,
		}
		err = s.repo.Create(ctx, card, issue)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrCodeCollision) || attempt == issueAttempts-1 {
			span.RecordError(err)
			return nil, err
		}
		logger.Ctx(ctx).Warn().Int("attempt", attempt+1).Msg("gift card code collision, regenerating")
	}

	span.SetAttributes(attribute.String("giftcard.id", card.ID))
	metrics.GiftCardMovements.WithLabelValues(string(domain.TxIssue)).Add(float64(card.InitialCents))
	logger.Ctx(ctx).Info().Str("giftcard_id", card.ID).Str("code", card.MaskedCode()).Int64("amount_cents", card.InitialCents).Msg("gift card issued")
	s.publish(ctx, mq.EventGiftCardIssued, card.ID, map[string]any{
		"giftCardId":     card.ID,
		"maskedCode":     card.MaskedCode(),
		"amountCents":    card.InitialCents,
		"currency":       card.Currency,
		"recipientEmail": card.RecipientEmail,
	})
	return card, nil
}

// CheckBalance 公开查询余额，只返回打码后的卡号
func (s *GiftCardService) CheckBalance(ctx context.Context, code string) (*BalanceView, error) {
	ctx, span := s.tracer.Start(ctx, "giftcard.CheckBalance")
	defer span.End()

	card, err := s.repo.FindByCode(ctx, domain.NormalizeCode(code))
	if err != nil {
		return nil, err
	}
	return &BalanceView{
		MaskedCode:   card.MaskedCode(),
		BalanceCents: card.BalanceCents,
		Currency:     card.Currency,
		Status:       string(card.Status),
		ExpiresAt:    card.ExpiresAt,
		Expired:      card.ExpiresAt != nil && !s.now().Before(*card.ExpiresAt),
	}, nil
}

// Lookup 结账时取出可用的卡
func (s *GiftCardService) Lookup(ctx context.Context, code string) (*domain.GiftCard, error) {
	ctx, span := s.tracer.Start(ctx, "giftcard.Lookup")
	defer span.End()

	card, err := s.repo.FindByCode(ctx, domain.NormalizeCode(code))
	if err != nil {
		return nil, err
	}
	if err := card.CheckUsable(s.now()); err != nil {
		return nil, err
	}
	return card, nil
}

// Redeem 从卡上扣款。同一订单重复调用返回第一次的流水。
func (s *GiftCardService) Redeem(ctx context.Context, code string, amount int64, orderID string) (*domain.Transaction, error) {
	ctx, span := s.tracer.Start(ctx, "giftcard.Redeem")
	defer span.End()

	if amount <= 0 {
		return nil, apperr.InvalidInput("amount must be positive")
	}
	card, err := s.repo.FindByCode(ctx, domain.NormalizeCode(code))
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("giftcard.id", card.ID), attribute.String("order.id", orderID))

	var t *domain.Transaction
	err = lock.With(ctx, s.locker, "giftcard:"+card.ID, func() error {
		var derr error
		t, derr = s.repo.Debit(ctx, card.ID, amount, orderID, s.now())
		return derr
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	metrics.GiftCardMovements.WithLabelValues(string(domain.TxRedeem)).Add(metrics.Abs(t.AmountCents))
	metrics.DiscountCents.WithLabelValues("giftcard").Add(metrics.Abs(t.AmountCents))
	logger.Ctx(ctx).Info().Str("giftcard_id", card.ID).Str("order_id", orderID).
		Int64("amount_cents", -t.AmountCents).Int64("balance_after", t.BalanceAfter).Msg("gift card redeemed")
	return t, nil
}

// Refund 退回订单在礼品卡上的扣款，订单取消或退款时调用
func (s *GiftCardService) Refund(ctx context.Context, orderID string) error {
	ctx, span := s.tracer.Start(ctx, "giftcard.Refund")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	refunds, err := s.repo.RefundOrder(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	for _, t := range refunds {
		metrics.GiftCardMovements.WithLabelValues(string(domain.TxRefund)).Add(float64(t.AmountCents))
		logger.Ctx(ctx).Info().Str("giftcard_id", t.GiftCardID).Str("order_id", orderID).
			Int64("amount_cents", t.AmountCents).Msg("gift card refunded")
	}
	return nil
}

func (s *GiftCardService) Get(ctx context.Context, id string) (*domain.GiftCard, error) {
	ctx, span := s.tracer.Start(ctx, "giftcard.Get")
	defer span.End()
	return s.repo.FindByID(ctx, id)
}

// Disable 停用后不能再扣款，余额保留
func (s *GiftCardService) Disable(ctx context.Context, id string) (*domain.GiftCard, error) {
	ctx, span := s.tracer.Start(ctx, "giftcard.Disable")
	defer span.End()

	if err := s.repo.SetStatus(ctx, id, domain.StatusDisabled); err != nil {
		return nil, err
	}
	logger.Ctx(ctx).Info().Str("giftcard_id", id).Msg("gift card disabled")
	return s.repo.FindByID(ctx, id)
}

func (s *GiftCardService) Adjust(ctx context.Context, id string, req AdjustRequest) (*domain.Transaction, error) {
	ctx, span := s.tracer.Start(ctx, "giftcard.Adjust")
	defer span.End()

	if req.DeltaCents == 0 {
		return nil, apperr.InvalidInput("delta must not be zero")
	}
	note := strings.TrimSpace(req.Note)
	if note == "" {
		return nil, apperr.InvalidInput("note is required")
	}
	var t *domain.Transaction
	err := lock.With(ctx, s.locker, "giftcard:"+id, func() error {
		var aerr error
		t, aerr = s.repo.Adjust(ctx, id, req.DeltaCents, note)
		return aerr
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	metrics.GiftCardMovements.WithLabelValues(string(domain.TxAdjust)).Add(metrics.Abs(t.AmountCents))
	logger.Ctx(ctx).Info().Str("giftcard_id", id).Int64("delta_cents", req.DeltaCents).Str("note", note).Msg("gift card adjusted")
	return t, nil
}

func (s *GiftCardService) ListTransactions(ctx context.Context, id string) ([]*domain.Transaction, error) {
	ctx, span := s.tracer.Start(ctx, "giftcard.ListTransactions")
	defer span.End()

	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, id)
}

// publish 发布失败只记日志，不影响主流程
func (s *GiftCardService) publish(ctx context.Context, eventType, key string, payload any) {
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
