package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/pkg/redis"
)

func TestRedisAttemptCounter(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	c := NewRedisAttemptCounter(redis.Wrap(rdb), 15*time.Minute)
	ctx := context.Background()

	n, err := c.Failures(ctx, "c1")
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, c.RecordFailure(ctx, "c1"))
	require.NoError(t, c.RecordFailure(ctx, "c1"))
	n, err = c.Failures(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 15*time.Minute, mr.TTL("promo:fail:c1"))

	mr.FastForward(16 * time.Minute)
	n, err = c.Failures(ctx, "c1")
	require.NoError(t, err)
	assert.Zero(t, n)
}
