package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/pkg/database/dbtest"
	"storefront/internal/service/notification/domain"
)

func TestCreate_DuplicateEvent(t *testing.T) {
	db, mock := dbtest.New(t)
	mock.ExpectExec("INSERT INTO `notifications`").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `notifications`").WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	repo := NewGormNotificationRepository(db)
	require.NoError(t, repo.Create(context.Background(), sample))
	assert.ErrorIs(t, repo.Create(context.Background(), sample), domain.ErrAlreadyRecorded)
}

func TestExistsAndList(t *testing.T) {
	db, mock := dbtest.New(t)
	now := time.Now().UTC()
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `notifications` WHERE event_id = \\?").
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT \\* FROM `notifications` WHERE customer_id = \\? ORDER BY created_at DESC LIMIT \\?").
		WithArgs("c1", 20).
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_id", "event_type", "customer_id", "recipient", "subject", "body", "created_at"}).
			AddRow("n1", "e1", "order.placed", "c1", "", "Order placed", "Order o1", now))

	repo := NewGormNotificationRepository(db)
	ok, err := repo.ExistsForEvent(context.Background(), "e1")
	require.NoError(t, err)
	assert.True(t, ok)

	list, err := repo.ListByCustomer(context.Background(), "c1", 20)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Order placed", list[0].Subject)
}
