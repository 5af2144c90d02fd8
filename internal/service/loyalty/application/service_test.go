package application

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"storefront/internal/pkg/lock"
	"storefront/internal/service/loyalty/domain"
)

type memRepo struct {
	mu       sync.Mutex
	accounts map[string]*domain.Account
	txs      []*domain.PointsTransaction
}

func newMemRepo() *memRepo { return &memRepo{accounts: map[string]*domain.Account{}} }

func (m *memRepo) Create(_ context.Context, a *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.accounts {
		if e.CustomerID == a.CustomerID {
			return domain.ErrAccountExists
		}
	}
	cp := *a
	m.accounts[a.ID] = &cp
	return nil
}

func (m *memRepo) FindByCustomer(_ context.Context, customerID string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.CustomerID == customerID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

func (m *memRepo) find(accountID, orderID string, t domain.TxType) *domain.PointsTransaction {
	for _, tx := range m.txs {
		if tx.AccountID == accountID && tx.OrderID == orderID && tx.Type == t {
			return tx
		}
	}
	return nil
}

func (m *memRepo) record(a *domain.Account, t domain.TxType, points int64, orderID, note string) *domain.PointsTransaction {
	tx := &domain.PointsTransaction{ID: uuid.NewString(), AccountID: a.ID, Type: t, Points: points, BalanceAfter: a.PointsBalance, OrderID: orderID, Note: note}
	m.txs = append(m.txs, tx)
	return tx
}

func (m *memRepo) Earn(_ context.Context, accountID, orderID string, points int64) (*domain.PointsTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tx := m.find(accountID, orderID, domain.TxEarn); tx != nil {
		return tx, nil
	}
	a := m.accounts[accountID]
	a.PointsBalance += points
	a.LifetimePoints += points
	a.Tier = domain.TierFor(a.LifetimePoints)
	return m.record(a, domain.TxEarn, points, orderID, ""), nil
}

func (m *memRepo) Redeem(_ context.Context, accountID, orderID string, points int64) (*domain.PointsTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tx := m.find(accountID, orderID, domain.TxRedeem); tx != nil {
		return tx, nil
	}
	a := m.accounts[accountID]
	if a.PointsBalance < points {
		return nil, domain.ErrInsufficientPoints
	}
	a.PointsBalance -= points
	return m.record(a, domain.TxRedeem, -points, orderID, ""), nil
}

func (m *memRepo) ReverseOrder(_ context.Context, orderID string) ([]*domain.PointsTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.PointsTransaction
	for _, a := range m.accounts {
		if m.find(a.ID, orderID, domain.TxReverse) != nil {
			continue
		}
		var earned, redeemed int64
		if tx := m.find(a.ID, orderID, domain.TxEarn); tx != nil {
			earned = tx.Points
		}
		if tx := m.find(a.ID, orderID, domain.TxRedeem); tx != nil {
			redeemed = -tx.Points
		}
		if earned == 0 && redeemed == 0 {
			continue
		}
		before := a.PointsBalance
		a.PointsBalance = max(0, a.PointsBalance+redeemed-earned)
		a.LifetimePoints = max(0, a.LifetimePoints-earned)
		a.Tier = domain.TierFor(a.LifetimePoints)
		out = append(out, m.record(a, domain.TxReverse, a.PointsBalance-before, orderID, ""))
	}
	return out, nil
}

func (m *memRepo) Adjust(_ context.Context, accountID string, delta int64, note string) (*domain.PointsTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.accounts[accountID]
	if a.PointsBalance+delta < 0 {
		return nil, domain.ErrBalanceNegative
	}
	a.PointsBalance += delta
	return m.record(a, domain.TxAdjust, delta, "", note), nil
}

func (m *memRepo) ListTransactions(_ context.Context, accountID string, limit int) ([]*domain.PointsTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.PointsTransaction
	for _, tx := range m.txs {
		if tx.AccountID == accountID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func newService() *LoyaltyService {
	return NewLoyaltyService(newMemRepo(), lock.NewLocalLocker(), Options{RedeemCentsPerPoint: 1, MinRedeemPoints: 100},
		noop.NewTracerProvider().Tracer("test"))
}

func TestEarn_IdempotentAndUpgradesTier(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	tx, err := svc.Earn(ctx, "c1", "o1", 120000) // 1200 分
	require.NoError(t, err)
	assert.Equal(t, int64(1200), tx.Points)

	again, err := svc.Earn(ctx, "c1", "o1", 120000)
	require.NoError(t, err)
	assert.Equal(t, tx.ID, again.ID)

	a, err := svc.GetOrCreateAccount(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(1200), a.PointsBalance)
	assert.Equal(t, domain.TierSilver, a.Tier)

	tx, err = svc.Earn(ctx, "c1", "o2", 10000) // 100 × 125%
	require.NoError(t, err)
	assert.Equal(t, int64(125), tx.Points)

	tx, err = svc.Earn(ctx, "c1", "o3", 50)
	require.NoError(t, err)
	assert.Nil(t, tx)
}

func TestQuoteAndRedeem(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	_, err := svc.Earn(ctx, "c1", "o1", 50000) // 500 分
	require.NoError(t, err)

	_, err = svc.QuoteRedemption(ctx, "c1", 150, -1)
	assert.Error(t, err, "must be a multiple of 100")
	_, err = svc.QuoteRedemption(ctx, "c1", 600, -1)
	assert.ErrorIs(t, err, domain.ErrInsufficientPoints)

	q, err := svc.QuoteRedemption(ctx, "c1", 500, 350)
	require.NoError(t, err)
	assert.Equal(t, int64(300), q.Points)
	assert.Equal(t, int64(300), q.DiscountCents)

	_, discount, err := svc.Redeem(ctx, "c1", "o2", 300)
	require.NoError(t, err)
	assert.Equal(t, int64(300), discount)
	_, discount, err = svc.Redeem(ctx, "c1", "o2", 300)
	require.NoError(t, err)
	assert.Equal(t, int64(300), discount)

	a, _ := svc.GetOrCreateAccount(ctx, "c1")
	assert.Equal(t, int64(200), a.PointsBalance)

	_, _, err = svc.Redeem(ctx, "nobody", "o9", 100)
	assert.ErrorIs(t, err, domain.ErrInsufficientPoints)
}

func TestReverse_RestoresRedeemedAndRevokesEarned(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	_, err := svc.Earn(ctx, "c1", "o1", 100000) // 1000 分，升到 silver
	require.NoError(t, err)

	_, _, err = svc.Redeem(ctx, "c1", "o2", 200)
	require.NoError(t, err)
	_, err = svc.Earn(ctx, "c1", "o2", 8000) // 80 × 125% = 100
	require.NoError(t, err)

	require.NoError(t, svc.Reverse(ctx, "o2"))
	require.NoError(t, svc.Reverse(ctx, "o2"))
	a, _ := svc.GetOrCreateAccount(ctx, "c1")
	assert.Equal(t, int64(1000), a.PointsBalance)
	assert.Equal(t, int64(1000), a.LifetimePoints)

	// 积分已经花掉时冲正不会让余额为负
	_, _, err = svc.Redeem(ctx, "c1", "o3", 1000)
	require.NoError(t, err)
	require.NoError(t, svc.Reverse(ctx, "o1"))
	a, _ = svc.GetOrCreateAccount(ctx, "c1")
	assert.Zero(t, a.PointsBalance)
	assert.Equal(t, domain.TierBronze, a.Tier)
}

func TestAdjust(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	_, err := svc.Adjust(ctx, "c1", AdjustRequest{DeltaPoints: -10, Note: "fix"})
	assert.ErrorIs(t, err, domain.ErrBalanceNegative)
	tx, err := svc.Adjust(ctx, "c1", AdjustRequest{DeltaPoints: 40, Note: "goodwill"})
	require.NoError(t, err)
	assert.Equal(t, int64(40), tx.BalanceAfter)

	list, err := svc.ListTransactions(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
	list, err = svc.ListTransactions(ctx, "ghost")
	require.NoError(t, err)
	assert.Empty(t, list)
}
