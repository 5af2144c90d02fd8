package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/pkg/database/dbtest"
	"storefront/internal/service/livestream/domain"
)

var streamColumns = []string{"id", "title", "host_id", "status", "scheduled_at", "started_at", "ended_at",
	"product_ids", "peak_viewers", "created_at", "updated_at"}

func TestFindByID_DecodesProducts(t *testing.T) {
	db, mock := dbtest.New(t)
	now := time.Now().UTC()
	mock.ExpectQuery("SELECT \\* FROM `live_streams` WHERE id = \\?").
		WithArgs("s1", 1).
		WillReturnRows(sqlmock.NewRows(streamColumns).
			AddRow("s1", "Spring drop", "h1", "LIVE", now, now, nil, `["p1","p2"]`, 17, now, now))

	s, err := NewGormStreamRepository(db).FindByID(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusLive, s.Status)
	assert.Equal(t, []string{"p1", "p2"}, s.ProductIDs)
	assert.Equal(t, int64(17), s.PeakViewers)
	assert.Nil(t, s.EndedAt)
}

func TestFindByID_NotFound(t *testing.T) {
	db, mock := dbtest.New(t)
	mock.ExpectQuery("SELECT \\* FROM `live_streams`").WillReturnRows(sqlmock.NewRows(streamColumns))

	_, err := NewGormStreamRepository(db).FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrStreamNotFound)
}

func TestUpdate_ConditionalOnStatus(t *testing.T) {
	now := time.Now().UTC()
	s := &domain.Stream{ID: "s1", Status: domain.StatusEnded, EndedAt: &now, PeakViewers: 9, ProductIDs: []string{"p1"}, UpdatedAt: now}

	t.Run("applies", func(t *testing.T) {
		db, mock := dbtest.New(t)
		mock.ExpectExec("UPDATE `live_streams` SET .* WHERE id = \\? AND status = \\?").
			WillReturnResult(sqlmock.NewResult(0, 1))
		require.NoError(t, NewGormStreamRepository(db).Update(context.Background(), s, domain.StatusLive))
	})

	t.Run("already moved", func(t *testing.T) {
		db, mock := dbtest.New(t)
		mock.ExpectExec("UPDATE `live_streams`").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT \\* FROM `live_streams`").
			WillReturnRows(sqlmock.NewRows(streamColumns).
				AddRow("s1", "t", "h1", "ENDED", now, now, now, `[]`, 3, now, now))
		err := NewGormStreamRepository(db).Update(context.Background(), s, domain.StatusLive)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("missing", func(t *testing.T) {
		db, mock := dbtest.New(t)
		mock.ExpectExec("UPDATE `live_streams`").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT \\* FROM `live_streams`").WillReturnRows(sqlmock.NewRows(streamColumns))
		err := NewGormStreamRepository(db).Update(context.Background(), s, domain.StatusLive)
		assert.ErrorIs(t, err, domain.ErrStreamNotFound)
	})
}

func TestListLiveStartedBefore(t *testing.T) {
	db, mock := dbtest.New(t)
	cutoff := time.Now().UTC().Add(-12 * time.Hour)
	mock.ExpectQuery("SELECT \\* FROM `live_streams` WHERE status = \\? AND started_at < \\? ORDER BY started_at").
		WithArgs("LIVE", cutoff).
		WillReturnRows(sqlmock.NewRows(streamColumns).
			AddRow("s1", "t", "h1", "LIVE", cutoff, cutoff.Add(-time.Hour), nil, nil, 0, cutoff, cutoff))

	streams, err := NewGormStreamRepository(db).ListLiveStartedBefore(context.Background(), cutoff)
	require.NoError(t, err)
	require.Len(t, streams, 1)
	assert.Equal(t, []string{}, streams[0].ProductIDs)
}
