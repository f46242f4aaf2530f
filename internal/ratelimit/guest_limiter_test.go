package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestGuestLimiter_ReserveUpToLimit(t *testing.T) {
	_, client := setupTestRedis(t)
	limiter := NewGuestLimiter(client, 2, time.Hour)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		r, ok, err := limiter.Reserve(ctx, "guest-a")
		require.NoError(t, err)
		assert.True(t, ok, "reservation %d should succeed", i+1)
		assert.NotNil(t, r)
	}

	r, ok, err := limiter.Reserve(ctx, "guest-a")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, r)

	used, err := limiter.Used(ctx, "guest-a")
	require.NoError(t, err)
	assert.Equal(t, 2, used, "rejected reservation must not consume")

	_, ok, err = limiter.Reserve(ctx, "guest-b")
	require.NoError(t, err)
	assert.True(t, ok, "other guests are independent")
}

func TestGuestLimiter_ReleaseReturnsSlot(t *testing.T) {
	_, client := setupTestRedis(t)
	limiter := NewGuestLimiter(client, 1, time.Hour)
	ctx := context.Background()

	r, ok, err := limiter.Reserve(ctx, "guest")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, limiter.Release(ctx, r))
	require.NoError(t, limiter.Release(ctx, nil))

	_, ok, err = limiter.Reserve(ctx, "guest")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGuestLimiter_WindowExpires(t *testing.T) {
	mr, client := setupTestRedis(t)
	limiter := NewGuestLimiter(client, 1, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	_, ok, err := limiter.Reserve(ctx, "guest")
	require.NoError(t, err)
	require.True(t, ok)

	key := limiter.bucketKey("guest")
	assert.True(t, mr.TTL(key) > 0)

	now = now.Add(2 * time.Minute)
	_, ok, err = limiter.Reserve(ctx, "guest")
	require.NoError(t, err)
	assert.True(t, ok, "a new window starts a new counter")
}

func TestGuestLimiter_SubSecondWindow(t *testing.T) {
	_, client := setupTestRedis(t)
	limiter := NewGuestLimiter(client, 1, 500*time.Millisecond)
	now := time.Unix(1_700_000_000, 0)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	_, ok, err := limiter.Reserve(ctx, "guest")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = limiter.Reserve(ctx, "guest")
	require.NoError(t, err)
	assert.False(t, ok)

	now = now.Add(600 * time.Millisecond)
	_, ok, err = limiter.Reserve(ctx, "guest")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGuestLimiter_ZeroLimitRejects(t *testing.T) {
	_, client := setupTestRedis(t)
	limiter := NewGuestLimiter(client, 0, time.Hour)

	_, ok, err := limiter.Reserve(context.Background(), "guest")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGuestLimiter_RedisDown(t *testing.T) {
	mr, client := setupTestRedis(t)
	limiter := NewGuestLimiter(client, 1, time.Hour)
	mr.Close()

	_, _, err := limiter.Reserve(context.Background(), "guest")
	assert.Error(t, err)
}
