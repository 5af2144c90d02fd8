package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/pkg/database/dbtest"
	"storefront/internal/service/order/domain"
)

var (
	orderColumns = []string{"id", "customer_id", "status", "currency", "subtotal_cents", "discount_cents", "shipping_cents", "tax_cents",
		"points_redeemed", "points_cents", "gift_card_cents", "total_cents", "promo_code", "gift_card_code", "shipping_address",
		"failure_reason", "created_at", "updated_at", "paid_at"}
	lineColumns = []string{"order_id", "product_id", "position", "sku", "name", "category_id", "unit_cents", "quantity"}
)

func TestCreate_WritesOrderAndLinesInOneTx(t *testing.T) {
	db, mock := dbtest.New(t)
	repo := NewGormOrderRepository(db)

	o := domain.NewOrder("o1", "c1", "1 Main St", "USD", time.Now().UTC())
	o.SetLines([]domain.Line{
		{ProductID: "p1", SKU: "SKU-1", Name: "Mug", UnitCents: 1250, Quantity: 2},
		{ProductID: "p2", SKU: "SKU-2", Name: "Spoon", UnitCents: 499, Quantity: 1},
	})

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `orders`").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `order_lines`").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, repo.Create(context.Background(), o))
}

func TestCreate_LineFailureRollsBack(t *testing.T) {
	db, mock := dbtest.New(t)
	repo := NewGormOrderRepository(db)

	o := domain.NewOrder("o1", "c1", "", "USD", time.Now().UTC())
	o.SetLines([]domain.Line{{ProductID: "p1", UnitCents: 100, Quantity: 1}})

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `orders`").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `order_lines`").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	assert.Error(t, repo.Create(context.Background(), o))
}

func TestTransition(t *testing.T) {
	now := time.Now().UTC()
	pending := []domain.State{domain.StatePendingPayment}

	t.Run("applies when the current state matches", func(t *testing.T) {
		db, mock := dbtest.New(t)
		mock.ExpectExec("UPDATE `orders` SET .*`paid_at`=\\?.* WHERE id = \\? AND status IN \\(\\?\\)").
			WillReturnResult(sqlmock.NewResult(0, 1))
		require.NoError(t, NewGormOrderRepository(db).Transition(context.Background(), "o1", pending, domain.StatePaid, now))
	})

	t.Run("invalid when the order moved on", func(t *testing.T) {
		db, mock := dbtest.New(t)
		mock.ExpectExec("UPDATE `orders`").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT count\\(\\*\\) FROM `orders` WHERE id = \\?").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		err := NewGormOrderRepository(db).Transition(context.Background(), "o1", pending, domain.StateCancelled, now)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("not found", func(t *testing.T) {
		db, mock := dbtest.New(t)
		mock.ExpectExec("UPDATE `orders`").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT count\\(\\*\\) FROM `orders`").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		err := NewGormOrderRepository(db).Transition(context.Background(), "missing", pending, domain.StateCancelled, now)
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	})
}

func TestFindByID_PreloadsLinesInOrder(t *testing.T) {
	db, mock := dbtest.New(t)
	repo := NewGormOrderRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT \\* FROM `orders` WHERE id = \\?").
		WillReturnRows(sqlmock.NewRows(orderColumns).AddRow("o1", "c1", "PAID", "USD", 2999, 0, 599, 239,
			0, 0, 0, 3837, "", "", "1 Main St", "", now, now, now))
	mock.ExpectQuery("SELECT \\* FROM `order_lines` WHERE `order_lines`.`order_id` = \\? ORDER BY position").
		WillReturnRows(sqlmock.NewRows(lineColumns).
			AddRow("o1", "p1", 0, "SKU-1", "Mug", "", 1250, 2).
			AddRow("o1", "p2", 1, "SKU-2", "Spoon", "", 499, 1))

	o, err := repo.FindByID(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatePaid, o.State)
	assert.Equal(t, int64(3837), o.TotalCents)
	require.NotNil(t, o.PaidAt)
	require.Len(t, o.Lines, 2)
	assert.Equal(t, "p1", o.Lines[0].ProductID)
	assert.Equal(t, int64(2500), o.Lines[0].TotalCents())
}

func TestFindByID_NotFound(t *testing.T) {
	db, mock := dbtest.New(t)
	mock.ExpectQuery("SELECT \\* FROM `orders`").WillReturnRows(sqlmock.NewRows(orderColumns))

	_, err := NewGormOrderRepository(db).FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestUpdate_MissingOrder(t *testing.T) {
	db, mock := dbtest.New(t)
	mock.ExpectExec("UPDATE `orders`").WillReturnResult(sqlmock.NewResult(0, 0))

	o := domain.NewOrder("missing", "c1", "", "USD", time.Now().UTC())
	assert.ErrorIs(t, NewGormOrderRepository(db).Update(context.Background(), o), domain.ErrOrderNotFound)
}

func TestCountPlaced(t *testing.T) {
	db, mock := dbtest.New(t)
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `orders` WHERE customer_id = \\? AND status IN \\(\\?,\\?,\\?\\)").
		WithArgs("c1", "PAID", "FULFILLED", "REFUNDED").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := NewGormOrderRepository(db).CountPlaced(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
