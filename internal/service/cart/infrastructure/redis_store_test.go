package infrastructure

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/pkg/redis"
	"storefront/internal/service/cart/domain"
)

func newStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store, err := NewRedisStore(redis.Wrap(rdb))
	require.NoError(t, err)
	return store, mr
}

func TestRedisStore_AddAccumulatesAndCaps(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()

	n, err := store.Add(ctx, "c1", "p1", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = store.Add(ctx, "c1", "p1", 3)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	_, err = store.Add(ctx, "c1", "p1", 95)
	assert.ErrorIs(t, err, domain.ErrQuantityLimit)

	items, err := store.Items(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"p1": 5}, items)
	assert.True(t, mr.TTL("cart:c1") > 0)
}

func TestRedisStore_SetRemoveClear(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "c1", "p1", 7))
	require.NoError(t, store.Set(ctx, "c1", "p2", 1))
	require.NoError(t, store.Set(ctx, "c1", "p1", 3))

	items, err := store.Items(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"p1": 3, "p2": 1}, items)

	removed, err := store.Remove(ctx, "c1", "p2")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = store.Remove(ctx, "c1", "p2")
	require.NoError(t, err)
	assert.False(t, removed)

	require.NoError(t, store.Clear(ctx, "c1"))
	items, err = store.Items(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, items)
}
