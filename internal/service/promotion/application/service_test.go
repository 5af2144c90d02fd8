package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"storefront/internal/pkg/apperr"
	"storefront/internal/pkg/httpx"
	"storefront/internal/service/promotion/domain"
	"storefront/internal/service/promotion/infrastructure/rule"
)

// memRepo 用内存实现仓储，Redeem 的语义与 SQL 版本一致
type memRepo struct {
	mu          sync.Mutex
	promotions  map[string]*domain.Promotion
	redemptions []*domain.Redemption
}

func newMemRepo() *memRepo {
	return &memRepo{promotions: map[string]*domain.Promotion{}}
}

func (m *memRepo) Create(_ context.Context, p *domain.Promotion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.promotions {
		if e.Code == p.Code {
			return domain.ErrPromotionExists
		}
	}
	cp := *p
	m.promotions[p.ID] = &cp
	return nil
}

func (m *memRepo) Update(_ context.Context, p *domain.Promotion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.promotions[p.ID]
	if !ok {
		return domain.ErrPromotionNotFound
	}
	cp := *p
	cp.UsedCount = old.UsedCount
	m.promotions[p.ID] = &cp
	return nil
}

func (m *memRepo) FindByID(_ context.Context, id string) (*domain.Promotion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.promotions[id]
	if !ok {
		return nil, domain.ErrPromotionNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memRepo) FindByCode(_ context.Context, code string) (*domain.Promotion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.promotions {
		if p.Code == code {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrPromotionNotFound
}

func (m *memRepo) List(_ context.Context, f domain.ListFilter) ([]*domain.Promotion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Promotion
	for _, p := range m.promotions {
		if f.Status == "" || p.Status == f.Status {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memRepo) CountCustomerRedemptions(_ context.Context, promotionID, customerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countLocked(promotionID, customerID), nil
}

func (m *memRepo) countLocked(promotionID, customerID string) int64 {
	var n int64
	for _, r := range m.redemptions {
		if r.PromotionID == promotionID && r.CustomerID == customerID && r.Status == domain.RedemptionApplied {
			n++
		}
	}
	return n
}

func (m *memRepo) Redeem(_ context.Context, red *domain.Redemption, perCustomerLimit int64) (*domain.Redemption, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.redemptions {
		if r.OrderID == red.OrderID && r.PromotionID == red.PromotionID && r.Status == domain.RedemptionApplied {
			cp := *r
			return &cp, nil
		}
	}
	p := m.promotions[red.PromotionID]
	if p.UsageLimit > 0 && p.UsedCount >= p.UsageLimit {
		return nil, domain.ErrUsageLimitReached
	}
	if perCustomerLimit > 0 && m.countLocked(red.PromotionID, red.CustomerID) >= perCustomerLimit {
		return nil, domain.ErrCustomerLimitReached
	}
	p.UsedCount++
	cp := *red
	m.redemptions = append(m.redemptions, &cp)
	return red, nil
}

func (m *memRepo) ReleaseOrder(_ context.Context, orderID string) ([]*domain.Redemption, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Redemption
	for _, r := range m.redemptions {
		if r.OrderID == orderID && r.Status == domain.RedemptionApplied {
			r.Status = domain.RedemptionReleased
			if p := m.promotions[r.PromotionID]; p.UsedCount > 0 {
				p.UsedCount--
			}
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memRepo) FindRedemptionsByOrder(_ context.Context, orderID string) ([]*domain.Redemption, error) {
	return nil, nil
}

func (m *memRepo) ExpireEnded(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, p := range m.promotions {
		if p.Status == domain.StatusActive && p.EndsAt != nil && !p.EndsAt.After(now) {
			p.Status = domain.StatusInactive
			n++
		}
	}
	return n, nil
}

type memAttempts struct {
	failures map[string]int64
}

func (a *memAttempts) Failures(_ context.Context, id string) (int64, error) { return a.failures[id], nil }
func (a *memAttempts) RecordFailure(_ context.Context, id string) error {
	a.failures[id]++
	return nil
}

func newService(t *testing.T) (*PromotionService, *memRepo) {
	t.Helper()
	engine, err := rule.NewCELEngine()
	require.NoError(t, err)
	repo := newMemRepo()
	return NewPromotionService(repo, engine, nil, nil, noop.NewTracerProvider().Tracer("test")), repo
}

func cartInput(customerID string) domain.EvaluationInput {
	return domain.EvaluationInput{
		CustomerID:    customerID,
		CustomerTier:  "bronze",
		Lines:         []domain.OrderLine{{ProductID: "p1", CategoryID: "shoes", UnitCents: 2500, Quantity: 2}},
		ShippingCents: 599,
	}
}

func TestEvaluate_PercentageWithRule(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreatePromotionRequest{
		Code: "spring10", Name: "Spring", Type: "percentage", Value: 10, Rule: `subtotal >= 4000`,
	})
	require.NoError(t, err)

	q, err := svc.Evaluate(ctx, " SPRING10 ", cartInput("c1"))
	require.NoError(t, err)
	assert.Equal(t, int64(500), q.DiscountCents)
	assert.Equal(t, int64(5000), q.EligibleSubtotal)
	assert.False(t, q.FreeShipping)

	in := cartInput("c1")
	in.Lines[0].Quantity = 1
	_, err = svc.Evaluate(ctx, "SPRING10", in)
	assert.ErrorIs(t, err, domain.ErrRuleNotSatisfied)
}

func TestEvaluate_Rejections(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Evaluate(ctx, "NOPE", cartInput("c1"))
	assert.ErrorIs(t, err, domain.ErrPromotionNotFound)

	_, err = svc.Create(ctx, CreatePromotionRequest{Code: "BIG", Name: "Big", Type: "FIXED_AMOUNT", Value: 1000, MinOrderCents: 10000})
	require.NoError(t, err)
	_, err = svc.Evaluate(ctx, "BIG", cartInput("c1"))
	assert.ErrorIs(t, err, domain.ErrMinOrderNotMet)

	_, err = svc.Create(ctx, CreatePromotionRequest{Code: "HATS", Name: "Hats", Type: "FIXED_AMOUNT", Value: 100,
		Scope: "categories", ScopeIDs: []string{"hats"}})
	require.NoError(t, err)
	_, err = svc.Evaluate(ctx, "HATS", cartInput("c1"))
	assert.ErrorIs(t, err, domain.ErrNoEligibleItems)

	future := time.Now().Add(time.Hour)
	_, err = svc.Create(ctx, CreatePromotionRequest{Code: "LATER", Name: "Later", Type: "FREE_SHIPPING", StartsAt: &future})
	require.NoError(t, err)
	_, err = svc.Evaluate(ctx, "LATER", cartInput("c1"))
	assert.ErrorIs(t, err, domain.ErrPromotionNotStarted)
}

func TestCreate_RejectsBadRule(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Create(context.Background(), CreatePromotionRequest{Code: "BAD", Name: "Bad", Type: "FIXED_AMOUNT", Value: 1, Rule: `subtotal +`})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidInput, apperr.CodeOf(err))
}

func TestRedeem_IdempotentAndLimited(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, CreatePromotionRequest{Code: "ONCE", Name: "Once", Type: "FIXED_AMOUNT", Value: 300, PerCustomerLimit: 1})
	require.NoError(t, err)

	r1, err := svc.Redeem(ctx, RedeemRequest{Code: "ONCE", CustomerID: "c1", OrderID: "o1", DiscountCents: 300})
	require.NoError(t, err)
	r2, err := svc.Redeem(ctx, RedeemRequest{Code: "ONCE", CustomerID: "c1", OrderID: "o1", DiscountCents: 300})
	require.NoError(t, err)
	assert.Equal(t, r1.ID, r2.ID)
	assert.Equal(t, int64(1), repo.promotions[p.ID].UsedCount)

	_, err = svc.Redeem(ctx, RedeemRequest{Code: "ONCE", CustomerID: "c1", OrderID: "o2", DiscountCents: 300})
	assert.ErrorIs(t, err, domain.ErrCustomerLimitReached)

	_, err = svc.Evaluate(ctx, "ONCE", cartInput("c1"))
	assert.ErrorIs(t, err, domain.ErrCustomerLimitReached)

	require.NoError(t, svc.Release(ctx, "o1"))
	assert.Zero(t, repo.promotions[p.ID].UsedCount)
	_, err = svc.Redeem(ctx, RedeemRequest{Code: "ONCE", CustomerID: "c1", OrderID: "o2", DiscountCents: 300})
	require.NoError(t, err)
}

func TestValidate_LocksOutAfterFailures(t *testing.T) {
	engine, err := rule.NewCELEngine()
	require.NoError(t, err)
	attempts := &memAttempts{failures: map[string]int64{}}
	svc := NewPromotionService(newMemRepo(), engine, httpx.NewPerMinute(100), attempts, noop.NewTracerProvider().Tracer("test"))
	ctx := context.Background()

	for i := 0; i < MaxFailedAttempts; i++ {
		_, err := svc.Validate(ctx, "GUESS", cartInput("c1"))
		assert.ErrorIs(t, err, domain.ErrPromotionNotFound)
	}
	_, err = svc.Validate(ctx, "GUESS", cartInput("c1"))
	assert.ErrorIs(t, err, httpx.ErrRateLimited)

	_, err = svc.Validate(ctx, "GUESS", cartInput("c2"))
	assert.ErrorIs(t, err, domain.ErrPromotionNotFound)
}

func TestDeactivateAndExpire(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, CreatePromotionRequest{Code: "OFF", Name: "Off", Type: "FIXED_AMOUNT", Value: 100})
	require.NoError(t, err)
	p, err = svc.Deactivate(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInactive, p.Status)
	_, err = svc.Evaluate(ctx, "OFF", cartInput("c1"))
	assert.ErrorIs(t, err, domain.ErrPromotionInactive)

	past := time.Now().Add(-48 * time.Hour)
	ended := time.Now().Add(-time.Hour)
	_, err = svc.Create(ctx, CreatePromotionRequest{Code: "OLD", Name: "Old", Type: "FIXED_AMOUNT", Value: 100, StartsAt: &past, EndsAt: &ended})
	require.NoError(t, err)
	n, err := svc.ExpireEnded(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	old, _ := repo.FindByCode(ctx, "OLD")
	assert.Equal(t, domain.StatusInactive, old.Status)
}
