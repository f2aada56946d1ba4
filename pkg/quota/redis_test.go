//go:build integration

package quota

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisTestBackend(t *testing.T) *RedisBackend {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available at %s: %v", addr, err)
	}
	t.Cleanup(func() {
		iter := client.Scan(ctx, 0, "test:"+t.Name()+"*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
		client.Close()
	})
	return NewRedisBackend(client)
}

func TestRedisReserveSettle(t *testing.T) {
	b := newRedisTestBackend(t)
	ctx := context.Background()
	committedKey := "test:" + t.Name() + ":c"
	reservedKey := "test:" + t.Name() + ":r"

	ok, err := b.Reserve(ctx, committedKey, reservedKey, 250, 1000, time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.Reserve(ctx, committedKey, reservedKey, 800, 1000, time.Hour)
	require.NoError(t, err)
	assert.False(t, ok, "second hold exceeds the limit")

	require.NoError(t, b.Settle(ctx, committedKey, reservedKey, 250, 37, time.Hour))

	committed, reserved, err := b.ReadCounters(ctx, committedKey, reservedKey)
	require.NoError(t, err)
	assert.Equal(t, int64(37), committed)
	assert.Equal(t, int64(0), reserved)
}

func TestRedisSettleFloorsAtZero(t *testing.T) {
	b := newRedisTestBackend(t)
	ctx := context.Background()
	committedKey := "test:" + t.Name() + ":c"
	reservedKey := "test:" + t.Name() + ":r"

	require.NoError(t, b.Settle(ctx, committedKey, reservedKey, 500, 0, time.Hour))

	_, reserved, err := b.ReadCounters(ctx, committedKey, reservedKey)
	require.NoError(t, err)
	assert.Equal(t, int64(0), reserved)
}

func TestRedisRateWindow(t *testing.T) {
	b := newRedisTestBackend(t)
	ctx := context.Background()
	key := "test:" + t.Name()

	allowed := 0
	for i := 0; i < 5; i++ {
		res, err := b.ConsumeRate(ctx, key, 3, time.Minute)
		require.NoError(t, err)
		if res.Allowed {
			allowed++
		}
	}
	assert.Equal(t, 3, allowed)
}
