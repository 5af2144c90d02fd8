package application

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"storefront/internal/pkg/apperr"
	"storefront/internal/pkg/lock"
	"storefront/internal/pkg/mq"
	"storefront/internal/service/payment/domain"
	"storefront/internal/service/payment/domain/port"
	"storefront/internal/service/payment/infrastructure/processor"
)

var errNotPayable = apperr.New(apperr.CodeConflict, "invalid order state transition")

type fakeOrders struct {
	mu         sync.Mutex
	orders     map[string]*port.OrderSnapshot
	refundCnt  int
	refundErrs []error
}

func (f *fakeOrders) OrderForPayment(_ context.Context, customerID, orderID string) (*port.OrderSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok || (customerID != "" && o.CustomerID != customerID) {
		return nil, apperr.New(apperr.CodeNotFound, "order not found")
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrders) MarkPaid(_ context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.orders[orderID]
	if o.State != "PENDING_PAYMENT" {
		return errNotPayable
	}
	o.State = "PAID"
	return nil
}

func (f *fakeOrders) MarkRefunded(_ context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.orders[orderID]
	if o.State != "REFUNDED" {
		if o.State != "PAID" && o.State != "FULFILLED" {
			return errNotPayable
		}
		o.State = "REFUNDED"
		f.refundCnt++
	}
	// 模拟订单已转为 REFUNDED 但资源退回失败
	if len(f.refundErrs) > 0 {
		err := f.refundErrs[0]
		f.refundErrs = f.refundErrs[1:]
		return err
	}
	return nil
}

func (f *fakeOrders) state(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders[id].State
}

type fakeRewards struct {
	earned map[string]int64
}

func (f *fakeRewards) Earn(_ context.Context, _, orderID string, paidCents int64) error {
	f.earned[orderID] += paidCents
	return nil
}

type fakePublisher struct {
	events []mq.Event
}

func (f *fakePublisher) Publish(_ context.Context, e mq.Event) error {
	f.events = append(f.events, e)
	return nil
}

func (f *fakePublisher) types() []string {
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Type)
	}
	return out
}

// recordingCards 记录每个授权码被退款的次数
type recordingCards struct {
	*processor.LocalProcessor
	mu       sync.Mutex
	refunded map[string]int
}

func (r *recordingCards) Refund(ctx context.Context, authCode string, amountCents int64) error {
	if err := r.LocalProcessor.Refund(ctx, authCode, amountCents); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refunded == nil {
		r.refunded = map[string]int{}
	}
	r.refunded[authCode]++
	return nil
}

func (r *recordingCards) refunds(authCode string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refunded[authCode]
}

type memPayments struct {
	mu       sync.Mutex
	payments map[string]*domain.Payment
	order    []string
}

func (m *memPayments) Create(_ context.Context, p *domain.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.payments {
		if p.Reference != "" && e.Reference == p.Reference {
			return domain.ErrReferenceCollision
		}
	}
	cp := *p
	m.payments[p.ID] = &cp
	m.order = append(m.order, p.ID)
	return nil
}

func (m *memPayments) Update(_ context.Context, p *domain.Payment, from domain.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.payments[p.ID]
	if !ok {
		return domain.ErrPaymentNotFound
	}
	if cur.Status != from {
		return domain.ErrInvalidState
	}
	cp := *p
	m.payments[p.ID] = &cp
	return nil
}

func (m *memPayments) FindByID(_ context.Context, id string) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPayments) FindByReference(_ context.Context, reference string) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.Reference == reference {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrPaymentNotFound
}

func (m *memPayments) ListByOrder(_ context.Context, orderID string) ([]*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Payment
	for _, id := range m.order {
		if p := m.payments[id]; p.OrderID == orderID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fixture struct {
	svc     *PaymentService
	repo    *memPayments
	orders  *fakeOrders
	rewards *fakeRewards
	cards   *recordingCards
	pub     *fakePublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo: &memPayments{payments: map[string]*domain.Payment{}},
		orders: &fakeOrders{orders: map[string]*port.OrderSnapshot{
			"o1": {ID: "o1", CustomerID: "c1", State: "PENDING_PAYMENT", TotalCents: 1997, Currency: "USD"},
		}},
		rewards: &fakeRewards{earned: map[string]int64{}},
		cards:   &recordingCards{LocalProcessor: processor.NewLocalProcessor()},
		pub:     &fakePublisher{},
	}
	f.svc = NewPaymentService(f.repo, f.orders, f.rewards, f.cards, lock.NewLocalLocker(), f.pub, Options{
		CryptoEnabled:    true,
		CryptoCurrencies: []string{"btc", "ETH"},
		DepositSecret:    []byte("deposit-secret"),
	}, noop.NewTracerProvider().Tracer("test"))
	f.svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return f
}

func TestInitiate_CardCaptured(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.Initiate(ctx, "c1", InitiateRequest{OrderID: "o1", Method: "card", CardToken: "tok_visa"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCaptured, p.Status)
	assert.Equal(t, int64(1997), p.AmountCents)
	assert.True(t, strings.HasPrefix(p.Reference, "ch_"))
	require.NotNil(t, p.CapturedAt)

	stored, err := f.repo.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCaptured, stored.Status)
	assert.Equal(t, "PAID", f.orders.state("o1"))
	assert.Equal(t, int64(1997), f.rewards.earned["o1"])
	assert.Equal(t, []string{mq.EventPaymentCaptured}, f.pub.types())

	_, err = f.svc.Initiate(ctx, "c1", InitiateRequest{OrderID: "o1", Method: "CARD", CardToken: "tok_visa"})
	assert.ErrorIs(t, err, domain.ErrOrderNotPayable)
}

func TestInitiate_CardDeclined(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Initiate(ctx, "c1", InitiateRequest{OrderID: "o1", Method: "CARD", CardToken: processor.DeclinedToken})
	require.ErrorIs(t, err, domain.ErrCardDeclined)
	assert.Equal(t, apperr.CodeUnprocessable, apperr.CodeOf(err))

	payments, err := f.repo.ListByOrder(ctx, "o1")
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, domain.StatusFailed, payments[0].Status)
	assert.Equal(t, "card declined", payments[0].FailureReason)
	assert.Equal(t, "PENDING_PAYMENT", f.orders.state("o1"))
	assert.Empty(t, f.pub.types())

	// 失败后可以换卡重试
	p, err := f.svc.Initiate(ctx, "c1", InitiateRequest{OrderID: "o1", Method: "CARD", CardToken: "tok_mastercard"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCaptured, p.Status)
}

func TestInitiate_CardVoidedWhenOrderCancelledMeanwhile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 订单快照仍是待支付，但推进时已被超时取消
	f.svc.orders = &racingOrders{fakeOrders: f.orders}

	_, err := f.svc.Initiate(ctx, "c1", InitiateRequest{OrderID: "o1", Method: "CARD", CardToken: "tok_visa"})
	require.ErrorIs(t, err, domain.ErrOrderNotPayable)

	payments, err := f.repo.ListByOrder(ctx, "o1")
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, domain.StatusFailed, payments[0].Status)
	assert.Equal(t, 1, f.cards.refunds(payments[0].Reference), "charge was voided")
	assert.Empty(t, f.rewards.earned)
}

// racingOrders 模拟在读取快照和推进状态之间订单被取消
type racingOrders struct {
	*fakeOrders
}

func (r *racingOrders) MarkPaid(ctx context.Context, orderID string) error {
	r.mu.Lock()
	r.orders[orderID].State = "CANCELLED"
	r.mu.Unlock()
	return r.fakeOrders.MarkPaid(ctx, orderID)
}

func TestInitiate_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Initiate(ctx, "c1", InitiateRequest{OrderID: "o1", Method: "PAYPAL"})
	assert.ErrorIs(t, err, domain.ErrUnsupportedMethod)

	_, err = f.svc.Initiate(ctx, "c1", InitiateRequest{OrderID: "o1", Method: "CARD"})
	assert.Equal(t, apperr.CodeInvalidInput, apperr.CodeOf(err))

	_, err = f.svc.Initiate(ctx, "c1", InitiateRequest{OrderID: "o1", Method: "CRYPTO", CryptoCurrency: "DOGE"})
	assert.ErrorIs(t, err, domain.ErrUnsupportedCurrency)

	_, err = f.svc.Initiate(ctx, "c2", InitiateRequest{OrderID: "o1", Method: "BANK_TRANSFER"})
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err), "other customers cannot pay someone else's order")

	f.svc.opts.CryptoEnabled = false
	_, err = f.svc.Initiate(ctx, "c1", InitiateRequest{OrderID: "o1", Method: "CRYPTO", CryptoCurrency: "BTC"})
	assert.ErrorIs(t, err, domain.ErrUnsupportedMethod)
}

func TestBankTransferFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.Initiate(ctx, "c1", InitiateRequest{OrderID: "o1", Method: "BANK_TRANSFER"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, p.Status)
	assert.Regexp(t, `^BT-[A-Z2-9]{8}$`, p.Reference)

	again, err := f.svc.Initiate(ctx, "c1", InitiateRequest{OrderID: "o1", Method: "bank_transfer"})
	require.NoError(t, err)
	assert.Equal(t, p.ID, again.ID, "resubmitting reuses the pending transfer")

	_, err = f.svc.ConfirmTransfer(ctx, TransferNotice{Reference: strings.ToLower(p.Reference), AmountCents: 1000})
	assert.ErrorIs(t, err, domain.ErrUnderpaid)
	assert.Equal(t, "PENDING_PAYMENT", f.orders.state("o1"))

	_, err = f.svc.ConfirmTransfer(ctx, TransferNotice{Reference: "BT-NOPE0000", AmountCents: 1997})
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)

	confirmed, err := f.svc.ConfirmTransfer(ctx, TransferNotice{Reference: strings.ToLower(p.Reference), AmountCents: 2000})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCaptured, confirmed.Status)
	assert.Equal(t, "PAID", f.orders.state("o1"))
	assert.Equal(t, int64(1997), f.rewards.earned["o1"])

	_, err = f.svc.Confirm(ctx, p.ID, ConfirmRequest{AmountCents: 1997})
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestCryptoFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.Initiate(ctx, "c1", InitiateRequest{OrderID: "o1", Method: "CRYPTO", CryptoCurrency: "btc"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, p.Status)
	assert.Equal(t, "BTC", p.CryptoCurrency)
	assert.Equal(t, domain.DepositAddress([]byte("deposit-secret"), "BTC", p.ID), p.DepositAddress)

	// 换币种是一笔新的付款
	eth, err := f.svc.Initiate(ctx, "c1", InitiateRequest{OrderID: "o1", Method: "CRYPTO", CryptoCurrency: "ETH"})
	require.NoError(t, err)
	assert.NotEqual(t, p.ID, eth.ID)
	assert.True(t, strings.HasPrefix(eth.DepositAddress, "0x"))

	_, err = f.svc.Confirm(ctx, p.ID, ConfirmRequest{AmountCents: 1997})
	assert.ErrorIs(t, err, domain.ErrTxHashRequired)

	captured, err := f.svc.Confirm(ctx, p.ID, ConfirmRequest{AmountCents: 1997, TxHash: " abc123 "})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCaptured, captured.Status)
	assert.Equal(t, "abc123", captured.TxHash)

	// 订单已付清，第二笔到账无法推进订单
	_, err = f.svc.Confirm(ctx, eth.ID, ConfirmRequest{AmountCents: 1997, TxHash: "def456"})
	assert.ErrorIs(t, err, domain.ErrOrderNotPayable)
	stored, err := f.repo.FindByID(ctx, eth.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, stored.Status)
}

func TestRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.Initiate(ctx, "c1", InitiateRequest{OrderID: "o1", Method: "CARD", CardToken: "tok_visa"})
	require.NoError(t, err)

	refunded, err := f.svc.Refund(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefunded, refunded.Status)
	assert.Equal(t, "REFUNDED", f.orders.state("o1"))
	assert.Equal(t, []string{mq.EventPaymentCaptured, mq.EventPaymentRefunded}, f.pub.types())

	_, err = f.svc.Refund(ctx, p.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Equal(t, 1, f.orders.refundCnt)
}

func TestRefund_ResumesAfterPartialFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.Initiate(ctx, "c1", InitiateRequest{OrderID: "o1", Method: "CARD", CardToken: "tok_visa"})
	require.NoError(t, err)

	// 上一次退款已经退了卡款、推进了订单，但没来得及更新支付单
	require.NoError(t, f.cards.Refund(ctx, p.Reference, p.AmountCents))
	require.NoError(t, f.orders.MarkRefunded(ctx, "o1"))

	refunded, err := f.svc.Refund(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefunded, refunded.Status)
	assert.Equal(t, 1, f.orders.refundCnt)
	assert.Equal(t, 1, f.cards.refunds(p.Reference), "card must not be refunded twice")
}

func TestRefund_RetriesWhenOrderReleaseFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.Initiate(ctx, "c1", InitiateRequest{OrderID: "o1", Method: "CARD", CardToken: "tok_visa"})
	require.NoError(t, err)

	f.orders.refundErrs = []error{apperr.New(apperr.CodeInternal, "gift card refund failed")}
	_, err = f.svc.Refund(ctx, p.ID)
	require.Error(t, err)
	assert.Equal(t, "REFUNDED", f.orders.state("o1"))
	stored, err := f.repo.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCaptured, stored.Status, "payment stays refundable")
	assert.NotContains(t, f.pub.types(), mq.EventPaymentRefunded)

	refunded, err := f.svc.Refund(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefunded, refunded.Status)
	assert.Equal(t, 1, f.cards.refunds(p.Reference))
	assert.Equal(t, []string{mq.EventPaymentCaptured, mq.EventPaymentRefunded}, f.pub.types())
}

func TestGetAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.Initiate(ctx, "c1", InitiateRequest{OrderID: "o1", Method: "BANK_TRANSFER"})
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, "c2", false, p.ID)
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
	got, err := f.svc.Get(ctx, "admin", true, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Reference, got.Reference)

	list, err := f.svc.ListForOrder(ctx, "c1", "o1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = f.svc.ListForOrder(ctx, "c2", "o1")
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}
