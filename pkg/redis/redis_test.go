package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	rd "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*rd.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := rd.NewClient(&rd.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mr
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "storefront:stats:overview", StatsKey("overview"))
	assert.Equal(t, "storefront:stats:recent-orders:10", StatsKey("recent-orders", 10))
	assert.Equal(t, "storefront:rate_limit:user:7", RateLimitUserKey(7))
	assert.Equal(t, "storefront:notified:evt", NotifiedKey("evt"))
}

func TestStatsCache(t *testing.T) {
	rdb, mr := newClient(t)
	cache := NewStatsCache(rdb, 30*time.Second)
	ctx := context.Background()

	var got map[string]int
	found, err := cache.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, cache.Set(ctx, "k", map[string]int{"orders": 3}))
	found, err = cache.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 3, got["orders"])

	mr.FastForward(31 * time.Second)
	found, err = cache.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestOnce(t *testing.T) {
	rdb, mr := newClient(t)
	once := NewOnce(rdb, time.Hour)
	ctx := context.Background()

	ok, err := once.Mark(ctx, "n:1", "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.TTL("n:1") > 0)

	ok, err = once.Mark(ctx, "n:1", "b")
	require.NoError(t, err)
	assert.False(t, ok)

	// 别人的 token 不能释放
	require.NoError(t, once.Release(ctx, "n:1", "b"))
	assert.True(t, mr.Exists("n:1"))

	require.NoError(t, once.Release(ctx, "n:1", "a"))
	assert.False(t, mr.Exists("n:1"))

	ok, err = once.Mark(ctx, "n:1", "b")
	require.NoError(t, err)
	assert.True(t, ok)
}
