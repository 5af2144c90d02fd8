package application

import (
	"context"
	"encoding/json"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"storefront/internal/pkg/mq"
	"storefront/internal/pkg/redis"
	catalog "storefront/internal/service/catalog/domain"
	"storefront/internal/service/livestream/domain"
	"storefront/internal/service/livestream/infrastructure/adapter"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeCatalog struct{}

func (fakeCatalog) GetProduct(_ context.Context, id string, public bool) (*catalog.Product, error) {
	switch id {
	case "p1", "p2":
		return &catalog.Product{ID: id, Status: catalog.StatusActive}, nil
	case "archived":
		if public {
			return nil, catalog.ErrProductNotFound
		}
		return &catalog.Product{ID: id, Status: catalog.StatusArchived}, nil
	}
	return nil, catalog.ErrProductNotFound
}

type fakePublisher struct {
	events []mq.Event
}

func (f *fakePublisher) Publish(_ context.Context, e mq.Event) error {
	f.events = append(f.events, e)
	return nil
}

type memStreams struct {
	streams map[string]*domain.Stream
}

func (m *memStreams) Create(_ context.Context, s *domain.Stream) error {
	cp := *s
	m.streams[s.ID] = &cp
	return nil
}

func (m *memStreams) Update(_ context.Context, s *domain.Stream, from domain.Status) error {
	cur, ok := m.streams[s.ID]
	if !ok {
		return domain.ErrStreamNotFound
	}
	if cur.Status != from {
		return domain.ErrInvalidTransition
	}
	cp := *s
	cp.ProductIDs = append([]string(nil), s.ProductIDs...)
	m.streams[s.ID] = &cp
	return nil
}

func (m *memStreams) FindByID(_ context.Context, id string) (*domain.Stream, error) {
	s, ok := m.streams[id]
	if !ok {
		return nil, domain.ErrStreamNotFound
	}
	cp := *s
	cp.ProductIDs = append([]string{}, s.ProductIDs...)
	return &cp, nil
}

func (m *memStreams) List(_ context.Context, status domain.Status, limit int) ([]*domain.Stream, error) {
	var out []*domain.Stream
	for _, s := range m.streams {
		if status == "" || s.Status == status {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.After(out[j].ScheduledAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStreams) ListLiveStartedBefore(_ context.Context, cutoff time.Time) ([]*domain.Stream, error) {
	var out []*domain.Stream
	for _, s := range m.streams {
		if s.Status == domain.StatusLive && s.StartedAt.Before(cutoff) {
			out = append(out, s)
		}
	}
	return out, nil
}

type fixture struct {
	svc    *LivestreamService
	repo   *memStreams
	events *fakePublisher
	mr     *miniredis.Miniredis
	clock  time.Time
}

func newFixture(t *testing.T) *fixture {
	mr := miniredis.RunT(t)
	viewers, err := adapter.NewViewerRedisAdapter(redis.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()})))
	require.NoError(t, err)

	f := &fixture{repo: &memStreams{streams: map[string]*domain.Stream{}}, events: &fakePublisher{}, mr: mr, clock: t0}
	f.svc = NewLivestreamService(f.repo, viewers, fakeCatalog{}, f.events, noop.NewTracerProvider().Tracer("test"))
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) live(t *testing.T) *domain.Stream {
	st, err := f.svc.Create(context.Background(), "host-1", CreateRequest{Title: "Spring drop", ProductIDs: []string{"p1"}})
	require.NoError(t, err)
	st, err = f.svc.Start(context.Background(), st.ID)
	require.NoError(t, err)
	return st
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	st, err := f.svc.Create(ctx, "host-1", CreateRequest{Title: "  Spring drop ", ProductIDs: []string{"p1", "p1", "p2"}})
	require.NoError(t, err)
	assert.Equal(t, "Spring drop", st.Title)
	assert.Equal(t, domain.StatusScheduled, st.Status)
	assert.Equal(t, t0, st.ScheduledAt)
	assert.Equal(t, []string{"p1", "p2"}, st.ProductIDs)

	_, err = f.svc.Create(ctx, "host-1", CreateRequest{Title: " "})
	assert.Error(t, err)
	_, err = f.svc.Create(ctx, "host-1", CreateRequest{Title: "x", ProductIDs: []string{"archived"}})
	assert.ErrorIs(t, err, catalog.ErrProductNotFound)
}

func TestStartAndEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	st := f.live(t)
	assert.Equal(t, domain.StatusLive, st.Status)
	require.Len(t, f.events.events, 1)
	assert.Equal(t, mq.EventStreamStarted, f.events.events[0].Type)
	var payload StreamStarted
	require.NoError(t, json.Unmarshal(f.events.events[0].Payload, &payload))
	assert.Equal(t, st.ID, payload.StreamID)
	assert.Equal(t, []string{"p1"}, payload.ProductIDs)

	_, err := f.svc.Start(ctx, st.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	for i := 0; i < 4; i++ {
		_, err := f.svc.Join(ctx, st.ID)
		require.NoError(t, err)
	}
	_, err = f.svc.Leave(ctx, st.ID)
	require.NoError(t, err)
	n, err := f.svc.Viewers(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	view, err := f.svc.Get(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), view.Viewers)

	f.clock = t0.Add(time.Hour)
	ended, err := f.svc.End(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEnded, ended.Status)
	assert.Equal(t, int64(4), ended.PeakViewers)
	assert.Equal(t, int64(4), f.repo.streams[st.ID].PeakViewers)

	n, err = f.svc.Viewers(ctx, st.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.False(t, f.mr.Exists("live:viewers:{"+st.ID+"}"))

	_, err = f.svc.End(ctx, st.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestJoin_RequiresLive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	st, err := f.svc.Create(ctx, "host-1", CreateRequest{Title: "Later"})
	require.NoError(t, err)
	_, err = f.svc.Join(ctx, st.ID)
	assert.ErrorIs(t, err, domain.ErrStreamNotLive)

	_, err = f.svc.Join(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrStreamNotFound)
}

func TestLeave_AfterEndDoesNotGoNegative(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st := f.live(t)

	_, err := f.svc.Join(ctx, st.ID)
	require.NoError(t, err)
	_, err = f.svc.End(ctx, st.ID)
	require.NoError(t, err)

	n, err := f.svc.Leave(ctx, st.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFeatureProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st := f.live(t)

	got, err := f.svc.FeatureProduct(ctx, st.ID, "p2")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, got.ProductIDs)
	assert.Equal(t, []string{"p1", "p2"}, f.repo.streams[st.ID].ProductIDs)

	_, err = f.svc.FeatureProduct(ctx, st.ID, "archived")
	assert.ErrorIs(t, err, catalog.ErrProductNotFound)

	_, err = f.svc.FeatureProduct(ctx, st.ID, "p2")
	require.NoError(t, err, "already featured is a no-op")

	_, err = f.svc.End(ctx, st.ID)
	require.NoError(t, err)
	_, err = f.svc.FeatureProduct(ctx, st.ID, "p1")
	assert.ErrorIs(t, err, domain.ErrStreamEnded)
}

func TestList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	live := f.live(t)
	f.clock = t0.Add(time.Minute)
	_, err := f.svc.Create(ctx, "host-1", CreateRequest{Title: "Later", ScheduledAt: t0.Add(24 * time.Hour)})
	require.NoError(t, err)
	_, err = f.svc.Join(ctx, live.ID)
	require.NoError(t, err)

	all, err := f.svc.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	lives, err := f.svc.List(ctx, "live")
	require.NoError(t, err)
	require.Len(t, lives, 1)
	assert.Equal(t, live.ID, lives[0].ID)
	assert.Equal(t, int64(1), lives[0].Viewers)

	_, err = f.svc.List(ctx, "paused")
	assert.Error(t, err)
}

func TestEndStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old := f.live(t)

	f.clock = t0.Add(11 * time.Hour)
	recent := f.live(t)

	f.clock = t0.Add(13 * time.Hour)
	n, err := f.svc.EndStale(ctx, 12*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, domain.StatusEnded, f.repo.streams[old.ID].Status)
	assert.Equal(t, domain.StatusLive, f.repo.streams[recent.ID].Status)
}
