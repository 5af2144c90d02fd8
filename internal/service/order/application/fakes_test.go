package application

import (
	"context"
	"sort"
	"sync"
	"time"

	"storefront/internal/pkg/mq"
	account "storefront/internal/service/account/domain"
	cart "storefront/internal/service/cart/domain"
	catalog "storefront/internal/service/catalog/domain"
	giftcard "storefront/internal/service/giftcard/domain"
	loyalty "storefront/internal/service/loyalty/domain"
	"storefront/internal/service/order/domain"
	promotion "storefront/internal/service/promotion/domain"
)

// journal 记录各端口的调用顺序，用来断言补偿的逆序
type journal struct {
	mu    sync.Mutex
	calls []string
}

func (j *journal) add(call string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = append(j.calls, call)
}

func (j *journal) all() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.calls...)
}

type fakeCart struct {
	j       *journal
	cart    *cart.Cart
	cleared bool
}

func (f *fakeCart) GetCart(_ context.Context, customerID string) (*cart.Cart, error) {
	c := *f.cart
	c.CustomerID = customerID
	c.Lines = append([]cart.Line(nil), f.cart.Lines...)
	return &c, nil
}

func (f *fakeCart) Clear(context.Context, string) error {
	f.j.add("cart.clear")
	f.cleared = true
	return nil
}

type fakeInventory struct {
	j          *journal
	reserveErr error
	reserved   map[string]int
}

func (f *fakeInventory) ReserveStock(_ context.Context, lines []catalog.StockLine) error {
	if f.reserveErr != nil {
		return f.reserveErr
	}
	f.j.add("stock.reserve")
	for _, l := range lines {
		f.reserved[l.ProductID] += l.Quantity
	}
	return nil
}

func (f *fakeInventory) ReleaseStock(_ context.Context, lines []catalog.StockLine) error {
	f.j.add("stock.release")
	for _, l := range lines {
		f.reserved[l.ProductID] -= l.Quantity
	}
	return nil
}

type fakePromotions struct {
	j         *journal
	quote     *promotion.Quote
	evalErr   error
	lastInput promotion.EvaluationInput
	applied   map[string]bool
}

func (f *fakePromotions) Evaluate(_ context.Context, code string, in promotion.EvaluationInput) (*promotion.Quote, error) {
	f.lastInput = in
	if f.evalErr != nil {
		return nil, f.evalErr
	}
	q := *f.quote
	q.Code = code
	return &q, nil
}

func (f *fakePromotions) Redeem(_ context.Context, _ *promotion.Quote, _, orderID string) error {
	f.j.add("promotion.redeem")
	f.applied[orderID] = true
	return nil
}

func (f *fakePromotions) Release(_ context.Context, orderID string) error {
	f.j.add("promotion.release")
	delete(f.applied, orderID)
	return nil
}

// fakeLoyalty 按 1 分 1 积分、100 积分粒度抵扣
type fakeLoyalty struct {
	j        *journal
	tier     string
	balance  int64
	redeemed map[string]int64
}

func (f *fakeLoyalty) Tier(context.Context, string) (string, error) { return f.tier, nil }

func (f *fakeLoyalty) QuoteRedemption(_ context.Context, _ string, points, maxCents int64) (int64, int64, error) {
	if points > f.balance {
		return 0, 0, loyalty.ErrInsufficientPoints
	}
	if points > maxCents {
		points = maxCents / 100 * 100
	}
	return points, points, nil
}

func (f *fakeLoyalty) Redeem(_ context.Context, _, orderID string, points int64) (int64, error) {
	f.j.add("points.redeem")
	f.balance -= points
	f.redeemed[orderID] = points
	return points, nil
}

func (f *fakeLoyalty) Reverse(_ context.Context, orderID string) error {
	f.j.add("points.reverse")
	f.balance += f.redeemed[orderID]
	delete(f.redeemed, orderID)
	return nil
}

type fakeGiftCards struct {
	j         *journal
	card      *giftcard.GiftCard
	redeemErr error
	refundErr error // 只生效一次
	debits    map[string]int64
}

func (f *fakeGiftCards) Lookup(_ context.Context, code string) (*giftcard.GiftCard, error) {
	if f.card == nil || giftcard.NormalizeCode(code) != f.card.Code {
		return nil, giftcard.ErrGiftCardNotFound
	}
	c := *f.card
	return &c, nil
}

func (f *fakeGiftCards) Redeem(_ context.Context, _ string, amount int64, orderID string) (*giftcard.Transaction, error) {
	if f.redeemErr != nil {
		return nil, f.redeemErr
	}
	f.j.add("giftcard.redeem")
	f.card.BalanceCents -= amount
	f.debits[orderID] = amount
	return &giftcard.Transaction{GiftCardID: f.card.ID, Type: giftcard.TxRedeem, AmountCents: -amount, BalanceAfter: f.card.BalanceCents, OrderID: orderID}, nil
}

func (f *fakeGiftCards) Refund(_ context.Context, orderID string) error {
	if err := f.refundErr; err != nil {
		f.refundErr = nil
		return err
	}
	f.j.add("giftcard.refund")
	f.card.BalanceCents += f.debits[orderID]
	delete(f.debits, orderID)
	return nil
}

type fakeAddresses struct{}

func (fakeAddresses) GetAddress(_ context.Context, customerID, addressID string) (*account.Address, error) {
	if addressID != "addr-1" {
		return nil, account.ErrAddressNotFound
	}
	return &account.Address{ID: addressID, CustomerID: customerID, Line1: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US"}, nil
}

type fakeScheduler struct {
	tasks []domain.PaymentTimeoutCheck
}

func (f *fakeScheduler) SchedulePaymentTimeout(_ context.Context, orderID, customerID string, deadline time.Time) error {
	f.tasks = append(f.tasks, domain.PaymentTimeoutCheck{OrderID: orderID, CustomerID: customerID, Deadline: deadline})
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []mq.Event
}

func (f *fakePublisher) Publish(_ context.Context, e mq.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func (f *fakePublisher) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Type)
	}
	return out
}

// memOrders 是内存版订单仓储
type memOrders struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
}

func newMemOrders() *memOrders { return &memOrders{orders: map[string]*domain.Order{}} }

func cloneOrder(o *domain.Order) *domain.Order {
	cp := *o
	cp.Lines = append([]domain.Line(nil), o.Lines...)
	return &cp
}

func (m *memOrders) Create(_ context.Context, o *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = cloneOrder(o)
	return nil
}

func (m *memOrders) Update(_ context.Context, o *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; !ok {
		return domain.ErrOrderNotFound
	}
	m.orders[o.ID] = cloneOrder(o)
	return nil
}

func (m *memOrders) Transition(_ context.Context, id string, from []domain.State, to domain.State, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	for _, s := range from {
		if o.State == s {
			o.State = to
			o.UpdatedAt = at
			if to == domain.StatePaid {
				o.PaidAt = &at
			}
			return nil
		}
	}
	return domain.ErrInvalidTransition
}

func (m *memOrders) FindByID(_ context.Context, id string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (m *memOrders) List(_ context.Context, f domain.ListFilter) ([]*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Order
	for _, o := range m.orders {
		if (f.CustomerID == "" || o.CustomerID == f.CustomerID) && (f.State == "" || o.State == f.State) {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > f.Limit+1 {
		out = out[:f.Limit+1]
	}
	return out, nil
}

func (m *memOrders) CountPlaced(_ context.Context, customerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, o := range m.orders {
		if o.CustomerID == customerID && (o.State == domain.StatePaid || o.State == domain.StateFulfilled || o.State == domain.StateRefunded) {
			n++
		}
	}
	return n, nil
}

func (m *memOrders) ListPendingBefore(_ context.Context, before time.Time, limit int) ([]*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Order
	for _, o := range m.orders {
		if o.State == domain.StatePendingPayment && o.CreatedAt.Before(before) && len(out) < limit {
			out = append(out, cloneOrder(o))
		}
	}
	return out, nil
}
