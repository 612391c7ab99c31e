package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestThrottle(t *testing.T, now time.Time) (*Throttle, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	th := NewThrottle(client)
	th.now = func() time.Time { return now }
	return th, mr
}

func TestThrottle_Check(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 30, 0, time.UTC)
	th, _ := newTestThrottle(t, now)
	ctx := context.Background()

	t.Run("allows requests within limit", func(t *testing.T) {
		for i := int64(1); i <= 3; i++ {
			result, err := th.Check(ctx, "kiosk-1", 3, time.Minute)
			require.NoError(t, err)
			assert.True(t, result.Allowed, "request %d should be allowed", i)
			assert.Equal(t, int64(3), result.Limit)
			assert.Equal(t, 3-i, result.Remaining)
		}
	})

	t.Run("blocks requests over limit", func(t *testing.T) {
		result, err := th.Check(ctx, "kiosk-1", 3, time.Minute)
		require.NoError(t, err)
		assert.False(t, result.Allowed)
		assert.Equal(t, int64(0), result.Remaining)
	})

	t.Run("different keys are independent", func(t *testing.T) {
		result, err := th.Check(ctx, "kiosk-2", 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Equal(t, int64(4), result.Remaining)
	})

	t.Run("reset at next window", func(t *testing.T) {
		result, err := th.Check(ctx, "kiosk-1", 3, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 1, 10, 1, 0, 0, time.UTC).Unix(), result.ResetAt)
	})
}

func TestThrottle_WindowExpiry(t *testing.T) {
	th, mr := newTestThrottle(t, time.Unix(1_700_000_000, 0))
	ctx := context.Background()

	ok, err := th.Allow(ctx, "kiosk-3", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = th.Allow(ctx, "kiosk-3", 1, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(2 * time.Minute)

	ok, err = th.Allow(ctx, "kiosk-3", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "counter should be gone once its key expired")
}

func TestThrottle_RedisDown(t *testing.T) {
	th, mr := newTestThrottle(t, time.Now())
	mr.Close()

	ok, err := th.Allow(context.Background(), "kiosk-1", 10, time.Minute)
	assert.Error(t, err)
	assert.False(t, ok)
}
