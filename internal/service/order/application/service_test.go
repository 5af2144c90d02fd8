package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"storefront/internal/pkg/apperr"
	"storefront/internal/pkg/lock"
	"storefront/internal/pkg/mq"
	cart "storefront/internal/service/cart/domain"
	catalog "storefront/internal/service/catalog/domain"
	giftcard "storefront/internal/service/giftcard/domain"
	loyalty "storefront/internal/service/loyalty/domain"
	"storefront/internal/service/order/domain"
	promotion "storefront/internal/service/promotion/domain"
)

const cardCode = "ABCD-EFGH-JKLM-NPQR"

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc    *OrderApplicationService
	clock  time.Time
	j      *journal
	cart   *fakeCart
	inv    *fakeInventory
	promos *fakePromotions
	loy    *fakeLoyalty
	cards  *fakeGiftCards
	sched  *fakeScheduler
	pub    *fakePublisher
	repo   *memOrders
}

// newFixture 的购物车小计 2999：p1 12.50 x2，p2 4.99 x1
func newFixture(t *testing.T) *fixture {
	t.Helper()
	j := &journal{}
	f := &fixture{
		clock: t0,
		j:     j,
		cart: &fakeCart{j: j, cart: &cart.Cart{Currency: "USD", Lines: []cart.Line{
			{ProductID: "p1", SKU: "SKU-1", Name: "Mug", CategoryID: "kitchen", UnitCents: 1250, Quantity: 2, Available: true},
			{ProductID: "p2", SKU: "SKU-2", Name: "Spoon", CategoryID: "kitchen", UnitCents: 499, Quantity: 1, Available: true},
		}}},
		inv:    &fakeInventory{j: j, reserved: map[string]int{}},
		promos: &fakePromotions{j: j, quote: &promotion.Quote{PromotionID: "promo-1", Type: promotion.DiscountFixedAmount, DiscountCents: 500}, applied: map[string]bool{}},
		loy:    &fakeLoyalty{j: j, tier: "gold", balance: 1000, redeemed: map[string]int64{}},
		cards: &fakeGiftCards{j: j, debits: map[string]int64{}, card: &giftcard.GiftCard{
			ID: "gc-1", Code: cardCode, InitialCents: 1000, BalanceCents: 1000, Status: giftcard.StatusActive,
		}},
		sched: &fakeScheduler{},
		pub:   &fakePublisher{},
		repo:  newMemOrders(),
	}
	f.svc = NewOrderApplicationService(f.repo, Ports{
		Cart:       f.cart,
		Inventory:  f.inv,
		Promotions: f.promos,
		Loyalty:    f.loy,
		GiftCards:  f.cards,
		Addresses:  fakeAddresses{},
		Scheduler:  f.sched,
	}, Options{
		Currency:       "USD",
		Pricing:        domain.PricingRules{TaxRateBps: 800, FlatShippingCents: 599, FreeShippingThreshold: 5000},
		PaymentTimeout: 15 * time.Minute,
	}, lock.NewLocalLocker(), f.pub, noop.NewTracerProvider().Tracer("test"))
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) stored(t *testing.T, id string) *domain.Order {
	t.Helper()
	o, err := f.repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	return o
}

func TestCheckout_FullStack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o, err := f.svc.Checkout(ctx, "c1", CheckoutRequest{
		AddressID:    "addr-1",
		PromoCode:    " save5 ",
		GiftCardCode: "abcd efgh jklm npqr",
		RedeemPoints: 300,
	})
	require.NoError(t, err)

	// 2999 - 500 = 2499 不到包邮门槛，运费 599，税 floor(2499 * 8%) = 199
	assert.Equal(t, int64(2999), o.SubtotalCents)
	assert.Equal(t, int64(500), o.DiscountCents)
	assert.Equal(t, int64(599), o.ShippingCents)
	assert.Equal(t, int64(199), o.TaxCents)
	assert.Equal(t, int64(300), o.PointsRedeemed)
	assert.Equal(t, int64(300), o.PointsCents)
	assert.Equal(t, int64(1000), o.GiftCardCents)
	assert.Equal(t, int64(3297-300-1000), o.TotalCents)
	assert.Equal(t, "SAVE5", o.PromoCode)
	assert.Equal(t, "****-****-****-NPQR", o.GiftCardCode)
	assert.Equal(t, "1 Main St, 12345 Springfield, US", o.ShippingAddress)
	assert.Equal(t, domain.StatePendingPayment, o.State)

	stored := f.stored(t, o.ID)
	assert.Equal(t, domain.StatePendingPayment, stored.State)
	assert.Equal(t, o.TotalCents, stored.TotalCents)
	assert.Len(t, stored.Lines, 2)

	assert.Equal(t, map[string]int{"p1": 2, "p2": 1}, f.inv.reserved)
	assert.Equal(t, "gold", f.promos.lastInput.CustomerTier)
	assert.True(t, f.promos.lastInput.FirstOrder)
	assert.Equal(t, int64(599), f.promos.lastInput.ShippingCents)
	assert.Equal(t, int64(0), f.cards.card.BalanceCents)
	assert.Equal(t, int64(700), f.loy.balance)
	assert.True(t, f.cart.cleared)

	require.Len(t, f.sched.tasks, 1)
	assert.Equal(t, o.ID, f.sched.tasks[0].OrderID)
	assert.Equal(t, t0.Add(15*time.Minute), f.sched.tasks[0].Deadline)
	assert.Equal(t, []string{mq.EventOrderPlaced}, f.pub.types())
	assert.Equal(t, []string{"stock.reserve", "promotion.redeem", "points.redeem", "giftcard.redeem", "cart.clear"}, f.j.all())
}

func TestCheckout_ZeroAmountIsPaidImmediately(t *testing.T) {
	f := newFixture(t)
	f.cards.card.BalanceCents = 10_000
	f.cards.card.InitialCents = 10_000

	o, err := f.svc.Checkout(context.Background(), "c1", CheckoutRequest{AddressID: "addr-1", GiftCardCode: cardCode})
	require.NoError(t, err)

	assert.Equal(t, domain.StatePaid, o.State)
	assert.Equal(t, int64(0), o.TotalCents)
	require.NotNil(t, o.PaidAt)
	assert.Equal(t, int64(2999+599+239), o.GiftCardCents, "card only pays what is due")
	assert.Empty(t, f.sched.tasks)
}

func TestCheckout_FreeShippingPromotion(t *testing.T) {
	f := newFixture(t)
	f.promos.quote = &promotion.Quote{PromotionID: "promo-2", Type: promotion.DiscountFreeShipping, FreeShipping: true, DiscountCents: 599}

	o, err := f.svc.Checkout(context.Background(), "c1", CheckoutRequest{AddressID: "addr-1", PromoCode: "SHIPFREE"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), o.ShippingCents)
	assert.Equal(t, int64(0), o.DiscountCents)
	assert.Equal(t, int64(2999+239), o.TotalCents)
}

func TestCheckout_FreeShippingPromotionNotRedeemedOverThreshold(t *testing.T) {
	f := newFixture(t)
	f.cart.cart.Lines[0].Quantity = 4 // 小计 5499，超过包邮门槛
	f.promos.quote = &promotion.Quote{PromotionID: "promo-2", Type: promotion.DiscountFreeShipping, FreeShipping: true, DiscountCents: 599}

	o, err := f.svc.Checkout(context.Background(), "c1", CheckoutRequest{AddressID: "addr-1", PromoCode: "SHIPFREE"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), o.ShippingCents)
	assert.Empty(t, o.PromoCode)
	assert.Empty(t, f.promos.applied)
	assert.NotContains(t, f.j.all(), "promotion.redeem")
}

func TestCheckout_FailureCompensatesInReverseOrder(t *testing.T) {
	f := newFixture(t)
	f.cards.redeemErr = giftcard.ErrInsufficientBalance

	_, err := f.svc.Checkout(context.Background(), "c1", CheckoutRequest{
		AddressID:    "addr-1",
		PromoCode:    "SAVE5",
		GiftCardCode: cardCode,
		RedeemPoints: 200,
	})
	require.ErrorIs(t, err, giftcard.ErrInsufficientBalance)

	assert.Equal(t, []string{
		"stock.reserve", "promotion.redeem", "points.redeem",
		"points.reverse", "promotion.release", "stock.release",
	}, f.j.all())
	assert.Equal(t, map[string]int{"p1": 0, "p2": 0}, f.inv.reserved)
	assert.Equal(t, int64(1000), f.loy.balance)
	assert.Empty(t, f.promos.applied)
	assert.False(t, f.cart.cleared)
	assert.Empty(t, f.pub.types())

	require.Len(t, f.repo.orders, 1)
	for _, o := range f.repo.orders {
		assert.Equal(t, domain.StateFailed, o.State)
		assert.NotEmpty(t, o.FailureReason)
	}
}

func TestCheckout_StockFailureMarksOrderFailed(t *testing.T) {
	f := newFixture(t)
	f.inv.reserveErr = catalog.ErrInsufficientStock

	_, err := f.svc.Checkout(context.Background(), "c1", CheckoutRequest{AddressID: "addr-1"})
	require.ErrorIs(t, err, catalog.ErrInsufficientStock)
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))
	assert.Empty(t, f.j.all())
	require.Len(t, f.repo.orders, 1)
	for _, o := range f.repo.orders {
		assert.Equal(t, domain.StateFailed, o.State)
	}
}

func TestCheckout_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Checkout(ctx, "c1", CheckoutRequest{})
	assert.Equal(t, apperr.CodeInvalidInput, apperr.CodeOf(err))

	_, err = f.svc.Checkout(ctx, "c1", CheckoutRequest{AddressID: "addr-1", RedeemPoints: -1})
	assert.Equal(t, apperr.CodeInvalidInput, apperr.CodeOf(err))

	_, err = f.svc.Checkout(ctx, "c1", CheckoutRequest{AddressID: "addr-2"})
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))

	f.cart.cart.Lines[1].Available = false
	_, err = f.svc.Checkout(ctx, "c1", CheckoutRequest{AddressID: "addr-1"})
	assert.ErrorIs(t, err, cart.ErrCartHasUnavailable)

	f.cart.cart.Lines = nil
	_, err = f.svc.Checkout(ctx, "c1", CheckoutRequest{AddressID: "addr-1"})
	assert.ErrorIs(t, err, cart.ErrCartEmpty)

	assert.Empty(t, f.repo.orders, "validation failures leave no order behind")
}

func TestCheckout_PointsCappedToAmountDue(t *testing.T) {
	f := newFixture(t)
	f.loy.balance = 10_000

	// 应付 2999 + 599 + 239 = 3837，积分按 100 取整封顶
	o, err := f.svc.Checkout(context.Background(), "c1", CheckoutRequest{AddressID: "addr-1", RedeemPoints: 5_000})
	require.NoError(t, err)
	assert.Equal(t, int64(3_800), o.PointsRedeemed)
	assert.Equal(t, int64(37), o.TotalCents)
	assert.Equal(t, int64(6_200), f.loy.balance)
}

func TestCheckout_NotEnoughPoints(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Checkout(context.Background(), "c1", CheckoutRequest{AddressID: "addr-1", RedeemPoints: 2_000})
	require.ErrorIs(t, err, loyalty.ErrInsufficientPoints)
	assert.Equal(t, []string{"stock.reserve", "stock.release"}, f.j.all())
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, err := f.svc.Checkout(ctx, "c1", CheckoutRequest{AddressID: "addr-1", PromoCode: "SAVE5", GiftCardCode: cardCode, RedeemPoints: 100})
	require.NoError(t, err)

	_, err = f.svc.CancelOrder(ctx, Actor{CustomerID: "someone-else"}, o.ID)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)

	cancelled, err := f.svc.CancelOrder(ctx, Actor{CustomerID: "c1"}, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCancelled, cancelled.State)
	assert.Equal(t, domain.StateCancelled, f.stored(t, o.ID).State)

	assert.Equal(t, int64(1000), f.cards.card.BalanceCents)
	assert.Equal(t, int64(1000), f.loy.balance)
	assert.Empty(t, f.promos.applied)
	assert.Equal(t, map[string]int{"p1": 0, "p2": 0}, f.inv.reserved)
	assert.Equal(t, []string{mq.EventOrderPlaced, mq.EventOrderCancelled}, f.pub.types())

	_, err = f.svc.CancelOrder(ctx, Actor{CustomerID: "admin", Admin: true}, o.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestHandlePaymentTimeout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, err := f.svc.Checkout(ctx, "c1", CheckoutRequest{AddressID: "addr-1"})
	require.NoError(t, err)
	check := f.sched.tasks[0]

	// 提前投递：重新排队，订单不变
	f.clock = t0.Add(time.Minute)
	require.NoError(t, f.svc.HandlePaymentTimeout(ctx, &check))
	assert.Len(t, f.sched.tasks, 2)
	assert.Equal(t, domain.StatePendingPayment, f.stored(t, o.ID).State)

	f.clock = t0.Add(16 * time.Minute)
	require.NoError(t, f.svc.HandlePaymentTimeout(ctx, &check))
	assert.Equal(t, domain.StateCancelled, f.stored(t, o.ID).State)
	assert.Equal(t, map[string]int{"p1": 0, "p2": 0}, f.inv.reserved)

	// 重复投递是幂等的
	require.NoError(t, f.svc.HandlePaymentTimeout(ctx, &check))
	require.NoError(t, f.svc.HandlePaymentTimeout(ctx, &domain.PaymentTimeoutCheck{OrderID: "missing"}))
}

func TestHandlePaymentTimeout_PaidOrderUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, err := f.svc.Checkout(ctx, "c1", CheckoutRequest{AddressID: "addr-1"})
	require.NoError(t, err)

	_, err = f.svc.MarkPaid(ctx, o.ID)
	require.NoError(t, err)

	f.clock = t0.Add(time.Hour)
	require.NoError(t, f.svc.HandlePaymentTimeout(ctx, &f.sched.tasks[0]))
	stored := f.stored(t, o.ID)
	assert.Equal(t, domain.StatePaid, stored.State)
	require.NotNil(t, stored.PaidAt)
}

func TestPaidOrderLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, err := f.svc.Checkout(ctx, "c1", CheckoutRequest{AddressID: "addr-1", GiftCardCode: cardCode, RedeemPoints: 100})
	require.NoError(t, err)

	_, err = f.svc.MarkFulfilled(ctx, o.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.svc.MarkPaid(ctx, o.ID)
	require.NoError(t, err)
	_, err = f.svc.MarkPaid(ctx, o.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	fulfilled, err := f.svc.MarkFulfilled(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateFulfilled, fulfilled.State)

	refunded, err := f.svc.MarkRefunded(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateRefunded, refunded.State)

	// 退款退回礼品卡和积分，但商品已经发出，不回补库存
	assert.Equal(t, int64(1000), f.cards.card.BalanceCents)
	assert.Equal(t, int64(1000), f.loy.balance)
	assert.Equal(t, map[string]int{"p1": 2, "p2": 1}, f.inv.reserved)
	assert.Equal(t, []string{mq.EventOrderPlaced, mq.EventOrderFulfilled}, f.pub.types())
}

func TestMarkRefunded_RetriesFailedRelease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, err := f.svc.Checkout(ctx, "c1", CheckoutRequest{AddressID: "addr-1", GiftCardCode: cardCode, RedeemPoints: 100})
	require.NoError(t, err)
	_, err = f.svc.MarkPaid(ctx, o.ID)
	require.NoError(t, err)

	f.cards.refundErr = apperr.New(apperr.CodeInternal, "giftcard store unavailable")
	_, err = f.svc.MarkRefunded(ctx, o.ID)
	require.Error(t, err)
	assert.Equal(t, domain.StateRefunded, f.stored(t, o.ID).State)
	// 其余步骤照常执行
	assert.Equal(t, int64(1000), f.loy.balance)
	assert.Less(t, f.cards.card.BalanceCents, int64(1000))

	refunded, err := f.svc.MarkRefunded(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateRefunded, refunded.State)
	assert.Equal(t, int64(1000), f.cards.card.BalanceCents)
	assert.Equal(t, int64(1000), f.loy.balance)
}

func TestCancelOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Checkout(ctx, "c1", CheckoutRequest{AddressID: "addr-1"})
	require.NoError(t, err)

	f.clock = t0.Add(10 * time.Minute)
	n, err := f.svc.CancelOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock = t0.Add(20 * time.Minute)
	n, err = f.svc.CancelOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPromotionInputAndListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in, err := f.svc.PromotionInput(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", in.CustomerID)
	assert.True(t, in.FirstOrder)
	assert.Equal(t, int64(2999), promotion.Subtotal(in.Lines))

	o, err := f.svc.Checkout(ctx, "c1", CheckoutRequest{AddressID: "addr-1"})
	require.NoError(t, err)
	_, err = f.svc.MarkPaid(ctx, o.ID)
	require.NoError(t, err)

	in, err = f.svc.PromotionInput(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, in.FirstOrder)

	page, err := f.svc.ListOrders(ctx, "c1", ListOrdersQuery{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, o.ID, page.Items[0].ID)

	page, err = f.svc.ListOrders(ctx, "c2", ListOrdersQuery{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	_, err = f.svc.ListOrders(ctx, "", ListOrdersQuery{Status: "shipped"})
	assert.Equal(t, apperr.CodeInvalidInput, apperr.CodeOf(err))
}
