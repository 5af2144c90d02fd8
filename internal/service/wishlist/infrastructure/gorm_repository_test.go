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
	"storefront/internal/service/wishlist/domain"
)

func TestAdd(t *testing.T) {
	item := &domain.Item{CustomerID: "c1", ProductID: "p1", AddedAt: time.Now().UTC()}

	t.Run("new", func(t *testing.T) {
		db, mock := dbtest.New(t)
		mock.ExpectExec("INSERT INTO `wishlist_items`").WillReturnResult(sqlmock.NewResult(0, 1))
		added, err := NewGormWishlistRepository(db).Add(context.Background(), item)
		require.NoError(t, err)
		assert.True(t, added)
	})

	t.Run("duplicate", func(t *testing.T) {
		db, mock := dbtest.New(t)
		mock.ExpectExec("INSERT INTO `wishlist_items`").WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
		added, err := NewGormWishlistRepository(db).Add(context.Background(), item)
		require.NoError(t, err)
		assert.False(t, added)
	})
}

func TestRemove(t *testing.T) {
	db, mock := dbtest.New(t)
	mock.ExpectExec("DELETE FROM `wishlist_items` WHERE customer_id = \\? AND product_id = \\?").
		WithArgs("c1", "p1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM `wishlist_items`").WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewGormWishlistRepository(db)
	require.NoError(t, repo.Remove(context.Background(), "c1", "p1"))
	assert.ErrorIs(t, repo.Remove(context.Background(), "c1", "p1"), domain.ErrItemNotFound)
}

func TestList(t *testing.T) {
	db, mock := dbtest.New(t)
	now := time.Now().UTC()
	mock.ExpectQuery("SELECT \\* FROM `wishlist_items` WHERE customer_id = \\? ORDER BY created_at DESC LIMIT \\?").
		WithArgs("c1", domain.MaxItems).
		WillReturnRows(sqlmock.NewRows([]string{"customer_id", "product_id", "created_at"}).
			AddRow("c1", "p2", now).
			AddRow("c1", "p1", now.Add(-time.Hour)))

	items, err := NewGormWishlistRepository(db).List(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "p2", items[0].ProductID)
	assert.Equal(t, now, items[0].AddedAt)
}
