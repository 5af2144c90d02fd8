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
	"storefront/internal/pkg/httpx"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
	"storefront/internal/pkg/pagination"
	"storefront/internal/service/promotion/domain"
)

// MaxFailedAttempts 窗口内允许的无效促销码次数
const MaxFailedAttempts = 10

// AttemptCounter 记录客户试错促销码的次数
type AttemptCounter interface {
	Failures(ctx context.Context, customerID string) (int64, error)
	RecordFailure(ctx context.Context, customerID string) error
}

// PromotionService 定义了促销服务提供的所有业务用例
type PromotionService struct {
	repo     domain.Repository
	rules    domain.RuleEngine
	limiter  *httpx.KeyedLimiter
	attempts AttemptCounter
	tracer   trace.Tracer
	now      func() time.Time
}

// NewPromotionService 创建一个新的促销服务实例，limiter 与 attempts 可以为 nil
func NewPromotionService(repo domain.Repository, rules domain.RuleEngine, limiter *httpx.KeyedLimiter,
	attempts AttemptCounter, tracer trace.Tracer) *PromotionService {
	return &PromotionService{
		repo:     repo,
		rules:    rules,
		limiter:  limiter,
		attempts: attempts,
		tracer:   tracer,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate 试算一个促销码，不占用次数
func (s *PromotionService) Evaluate(ctx context.Context, code string, in domain.EvaluationInput) (*domain.Quote, error) {
	ctx, span := s.tracer.Start(ctx, "promotion.Evaluate")
	defer span.End()

	code = domain.NormalizeCode(code)
	span.SetAttributes(attribute.String("promotion.code", code), attribute.String("customer.id", in.CustomerID))

	p, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.evaluate(ctx, p, in)
}

func (s *PromotionService) evaluate(ctx context.Context, p *domain.Promotion, in domain.EvaluationInput) (*domain.Quote, error) {
	if err := p.CheckAvailability(s.now()); err != nil {
		return nil, err
	}
	if p.PerCustomerLimit > 0 && in.CustomerID != "" {
		used, err := s.repo.CountCustomerRedemptions(ctx, p.ID, in.CustomerID)
		if err != nil {
			return nil, err
		}
		if used >= p.PerCustomerLimit {
			return nil, domain.ErrCustomerLimitReached
		}
	}
	if domain.Subtotal(in.Lines) < p.MinOrderCents {
		return nil, domain.ErrMinOrderNotMet
	}
	eligible := p.EligibleSubtotal(in.Lines)
	if eligible <= 0 {
		return nil, domain.ErrNoEligibleItems
	}
	if p.Rule != "" {
		ok, err := s.rules.Evaluate(p.Rule, domain.NewFact(in))
		if err != nil {
			// 规则在保存时已编译过，运行期出错按不满足处理
			logger.Ctx(ctx).Warn().Err(err).Str("promotion_id", p.ID).Msg("promotion rule evaluation failed")
			return nil, domain.ErrRuleNotSatisfied
		}
		if !ok {
			return nil, domain.ErrRuleNotSatisfied
		}
	}
	discount, free := p.Discount(eligible, in.ShippingCents)
	return &domain.Quote{
		PromotionID:      p.ID,
		Code:             p.Code,
		Type:             p.Type,
		DiscountCents:    discount,
		FreeShipping:     free,
		EligibleSubtotal: eligible,
	}, nil
}

// Validate 是前台的试算入口，按客户限流，并统计无效促销码的试错次数
func (s *PromotionService) Validate(ctx context.Context, code string, in domain.EvaluationInput) (*domain.Quote, error) {
	ctx, span := s.tracer.Start(ctx, "promotion.Validate")
	defer span.End()

	if s.limiter != nil {
		if err := s.limiter.Check(in.CustomerID); err != nil {
			return nil, err
		}
	}
	if s.attempts != nil {
		n, err := s.attempts.Failures(ctx, in.CustomerID)
		if err != nil {
			logger.Ctx(ctx).Warn().Err(err).Msg("failed to read promo attempts")
		} else if n >= MaxFailedAttempts {
			logger.Ctx(ctx).Warn().Str("customer_id", in.CustomerID).Int64("failures", n).Msg("promo validation locked out")
			return nil, httpx.ErrRateLimited
		}
	}

	quote, err := s.Evaluate(ctx, code, in)
	if errors.Is(err, domain.ErrPromotionNotFound) && s.attempts != nil {
		if rerr := s.attempts.RecordFailure(ctx, in.CustomerID); rerr != nil {
			logger.Ctx(ctx).Warn().Err(rerr).Msg("failed to record promo attempt")
		}
	}
	return quote, err
}

// Redeem 下单时占用一次促销。同一订单重复调用返回第一次的记录。
func (s *PromotionService) Redeem(ctx context.Context, req RedeemRequest) (*domain.Redemption, error) {
	ctx, span := s.tracer.Start(ctx, "promotion.Redeem")
	defer span.End()

	code := domain.NormalizeCode(req.Code)
	span.SetAttributes(attribute.String("promotion.code", code), attribute.String("order.id", req.OrderID))

	p, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	now := s.now()
	switch {
	case now.Before(p.StartsAt):
		return nil, domain.ErrPromotionNotStarted
	case p.EndsAt != nil && !now.Before(*p.EndsAt):
		return nil, domain.ErrPromotionExpired
	}

	r, err := s.repo.Redeem(ctx, &domain.Redemption{
		ID:            uuid.NewString(),
		PromotionID:   p.ID,
		CustomerID:    req.CustomerID,
		OrderID:       req.OrderID,
		DiscountCents: req.DiscountCents,
		Status:        domain.RedemptionApplied,
		CreatedAt:     now,
	}, p.PerCustomerLimit)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	metrics.DiscountCents.WithLabelValues("promotion").Add(float64(r.DiscountCents))
	logger.Ctx(ctx).Info().Str("promotion_id", p.ID).Str("order_id", req.OrderID).
		Int64("discount_cents", r.DiscountCents).Msg("promotion redeemed")
	return r, nil
}

// Release 撤销订单上的核销，订单失败、取消或退款时调用
func (s *PromotionService) Release(ctx context.Context, orderID string) error {
	ctx, span := s.tracer.Start(ctx, "promotion.Release")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	released, err := s.repo.ReleaseOrder(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if len(released) > 0 {
		logger.Ctx(ctx).Info().Str("order_id", orderID).Int("count", len(released)).Msg("promotion redemptions released")
	}
	return nil
}

func (s *PromotionService) Create(ctx context.Context, req CreatePromotionRequest) (*domain.Promotion, error) {
	ctx, span := s.tracer.Start(ctx, "promotion.Create")
	defer span.End()

	now := s.now()
	p := &domain.Promotion{
		ID:               uuid.NewString(),
		Code:             domain.NormalizeCode(req.Code),
		Name:             strings.TrimSpace(req.Name),
		Type:             domain.DiscountType(strings.ToUpper(req.Type)),
		Value:            req.Value,
		MaxDiscountCents: req.MaxDiscountCents,
		MinOrderCents:    req.MinOrderCents,
		StartsAt:         now,
		EndsAt:           req.EndsAt,
		UsageLimit:       req.UsageLimit,
		PerCustomerLimit: req.PerCustomerLimit,
		Scope:            domain.Scope(strings.ToUpper(req.Scope)),
		ScopeIDs:         req.ScopeIDs,
		Rule:             strings.TrimSpace(req.Rule),
		Status:           domain.StatusActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if req.StartsAt != nil {
		p.StartsAt = req.StartsAt.UTC()
	}
	if p.Scope == "" {
		p.Scope = domain.ScopeAll
	}
	if err := s.validate(p); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	logger.Ctx(ctx).Info().Str("promotion_id", p.ID).Str("code", p.Code).Msg("promotion created")
	return p, nil
}

func (s *PromotionService) validate(p *domain.Promotion) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.Rule != "" {
		if err := s.rules.Compile(p.Rule); err != nil {
			return apperr.Wrap(apperr.CodeInvalidInput, "promotion rule is invalid", err)
		}
	}
	return nil
}

func (s *PromotionService) Update(ctx context.Context, id string, req UpdatePromotionRequest) (*domain.Promotion, error) {
	ctx, span := s.tracer.Start(ctx, "promotion.Update")
	defer span.End()

	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		p.Name = strings.TrimSpace(*req.Name)
	}
	if req.Value != nil {
		p.Value = *req.Value
	}
	if req.MaxDiscountCents != nil {
		p.MaxDiscountCents = *req.MaxDiscountCents
	}
	if req.MinOrderCents != nil {
		p.MinOrderCents = *req.MinOrderCents
	}
	if req.StartsAt != nil {
		p.StartsAt = req.StartsAt.UTC()
	}
	if req.EndsAt != nil {
		t := req.EndsAt.UTC()
		p.EndsAt = &t
	}
	if req.ClearEndsAt {
		p.EndsAt = nil
	}
	if req.UsageLimit != nil {
		p.UsageLimit = *req.UsageLimit
	}
	if req.PerCustomerLimit != nil {
		p.PerCustomerLimit = *req.PerCustomerLimit
	}
	if req.Scope != nil {
		p.Scope = domain.Scope(strings.ToUpper(*req.Scope))
	}
	if req.ScopeIDs != nil {
		p.ScopeIDs = req.ScopeIDs
	}
	if req.Rule != nil {
		p.Rule = strings.TrimSpace(*req.Rule)
	}
	if req.Status != nil {
		p.Status = domain.Status(strings.ToUpper(*req.Status))
	}
	p.UpdatedAt = s.now()
	if err := s.validate(p); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Deactivate 停用促销，已核销的记录不受影响
func (s *PromotionService) Deactivate(ctx context.Context, id string) (*domain.Promotion, error) {
	status := string(domain.StatusInactive)
	return s.Update(ctx, id, UpdatePromotionRequest{Status: &status})
}

func (s *PromotionService) Get(ctx context.Context, id string) (*domain.Promotion, error) {
	ctx, span := s.tracer.Start(ctx, "promotion.Get")
	defer span.End()
	return s.repo.FindByID(ctx, id)
}

func (s *PromotionService) List(ctx context.Context, q ListPromotionsQuery) (pagination.Page[*PromotionDTO], error) {
	ctx, span := s.tracer.Start(ctx, "promotion.List")
	defer span.End()

	cursor, err := pagination.Parse(q.Cursor)
	if err != nil {
		return pagination.Page[*PromotionDTO]{}, err
	}
	limit := pagination.NormalizeLimit(q.Limit)
	rows, err := s.repo.List(ctx, domain.ListFilter{
		Status: domain.Status(strings.ToUpper(q.Status)),
		Cursor: cursor,
		Limit:  limit,
	})
	if err != nil {
		return pagination.Page[*PromotionDTO]{}, err
	}
	dtos := make([]*PromotionDTO, 0, len(rows))
	for _, p := range rows {
		dtos = append(dtos, ToPromotionDTO(p))
	}
	return pagination.BuildPage(dtos, limit, func(d *PromotionDTO) pagination.Cursor {
		return pagination.Cursor{CreatedAt: d.CreatedAt, ID: d.ID}
	}), nil
}

// ExpireEnded 由 worker 定时调用
func (s *PromotionService) ExpireEnded(ctx context.Context) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "promotion.ExpireEnded")
	defer span.End()

	n, err := s.repo.ExpireEnded(ctx, s.now())
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	if n > 0 {
		logger.Ctx(ctx).Info().Int64("count", n).Msg("expired promotions deactivated")
	}
	return n, nil
}
