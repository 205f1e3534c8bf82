package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_AllowUpToLimit(t *testing.T) {
	limiter := NewRateLimiter()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, err := limiter.Allow(ctx, "tenant-1:chat", 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d should be allowed", i+1)
	}

	ok, err := limiter.Allow(ctx, "tenant-1:chat", 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRateLimiter_WindowEviction(t *testing.T) {
	limiter := NewRateLimiter()
	ctx := context.Background()

	base := time.Now()
	current := base
	limiter.now = func() time.Time { return current }

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, "key", 3, time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
	}

	ok, err := limiter.Allow(ctx, "key", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// 窗口滑出后按确定性剔除放行，与访问频次无关
	current = base.Add(time.Minute + time.Second)
	ok, err = limiter.Allow(ctx, "key", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRateLimiter_Remaining(t *testing.T) {
	limiter := NewRateLimiter()
	ctx := context.Background()

	remaining, err := limiter.Remaining(ctx, "key", 5, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 5, remaining)

	_, err = limiter.Allow(ctx, "key", 5, time.Minute)
	require.NoError(t, err)
	_, err = limiter.Allow(ctx, "key", 5, time.Minute)
	require.NoError(t, err)

	remaining, err = limiter.Remaining(ctx, "key", 5, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 3, remaining)
}

func TestRateLimiter_Reset(t *testing.T) {
	limiter := NewRateLimiter()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := limiter.Allow(ctx, "key", 3, time.Minute)
		require.NoError(t, err)
	}

	ok, err := limiter.Allow(ctx, "key", 3, time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, limiter.Reset(ctx, "key"))

	ok, err = limiter.Allow(ctx, "key", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRateLimiter_KeysIndependent(t *testing.T) {
	limiter := NewRateLimiter()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := limiter.Allow(ctx, "tenant-1:chat", 2, time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
	}

	ok, err := limiter.Allow(ctx, "tenant-1:chat", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// 其他键不受影响
	ok, err = limiter.Allow(ctx, "tenant-2:chat", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
