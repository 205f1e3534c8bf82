package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shoply-ai-cs-api/internal/domain/entity"
)

func TestVerificationStore_Get_Missing(t *testing.T) {
	store := NewVerificationStore()
	ctx := context.Background()

	session, err := store.Get(ctx, "tenant-1", "conv-1")
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestVerificationStore_PutGet(t *testing.T) {
	store := NewVerificationStore()
	ctx := context.Background()

	session := entity.NewVerificationSession("tenant-1", "conv-1")
	session.Level = entity.VerificationPartial
	session.Email = "customer@example.com"

	err := store.Put(ctx, session, time.Hour)
	require.NoError(t, err)

	got, err := store.Get(ctx, "tenant-1", "conv-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entity.VerificationPartial, got.Level)
	assert.Equal(t, "customer@example.com", got.Email)
}

func TestVerificationStore_Get_Expired(t *testing.T) {
	store := NewVerificationStore()
	ctx := context.Background()

	base := time.Now()
	current := base
	store.now = func() time.Time { return current }

	session := entity.NewVerificationSession("tenant-1", "conv-1")
	require.NoError(t, store.Put(ctx, session, time.Minute))

	// 未过期
	got, err := store.Get(ctx, "tenant-1", "conv-1")
	require.NoError(t, err)
	assert.NotNil(t, got)

	// TTL 滑过后会话不可见
	current = base.Add(2 * time.Minute)
	got, err = store.Get(ctx, "tenant-1", "conv-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestVerificationStore_TenantIsolation(t *testing.T) {
	store := NewVerificationStore()
	ctx := context.Background()

	session := entity.NewVerificationSession("tenant-1", "conv-1")
	session.Level = entity.VerificationFull
	require.NoError(t, store.Put(ctx, session, time.Hour))

	// 相同会话 ID、不同租户不可见
	got, err := store.Get(ctx, "tenant-2", "conv-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestVerificationStore_IncrementAttempts(t *testing.T) {
	store := NewVerificationStore()
	ctx := context.Background()

	now := time.Now()
	window := 15 * time.Minute

	count, err := store.IncrementAttempts(ctx, "tenant-1", "conv-1", now, window)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = store.IncrementAttempts(ctx, "tenant-1", "conv-1", now.Add(time.Minute), window)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = store.IncrementAttempts(ctx, "tenant-1", "conv-1", now.Add(2*time.Minute), window)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestVerificationStore_IncrementAttempts_WindowReset(t *testing.T) {
	store := NewVerificationStore()
	ctx := context.Background()

	now := time.Now()
	window := 15 * time.Minute

	for i := 0; i < 3; i++ {
		_, err := store.IncrementAttempts(ctx, "tenant-1", "conv-1", now, window)
		require.NoError(t, err)
	}

	// 窗口滑出后重新计数
	count, err := store.IncrementAttempts(ctx, "tenant-1", "conv-1", now.Add(window+time.Second), window)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestVerificationStore_IncrementAttempts_Concurrent(t *testing.T) {
	store := NewVerificationStore()
	ctx := context.Background()

	now := time.Now()
	window := 15 * time.Minute
	numGoroutines := 20

	results := make([]int, numGoroutines)
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(idx int) {
			defer wg.Done()
			count, err := store.IncrementAttempts(ctx, "tenant-1", "conv-1", now, window)
			require.NoError(t, err)
			results[idx] = count
		}(i)
	}
	wg.Wait()

	// 并发自增不丢失：返回值覆盖 1..N，不重复
	seen := make(map[int]bool)
	for _, count := range results {
		assert.False(t, seen[count], "duplicate count %d", count)
		seen[count] = true
	}
	assert.Len(t, seen, numGoroutines)
}

func TestVerificationStore_AttemptsMergedIntoSession(t *testing.T) {
	store := NewVerificationStore()
	ctx := context.Background()

	session := entity.NewVerificationSession("tenant-1", "conv-1")
	require.NoError(t, store.Put(ctx, session, time.Hour))

	now := time.Now()
	_, err := store.IncrementAttempts(ctx, "tenant-1", "conv-1", now, 15*time.Minute)
	require.NoError(t, err)
	_, err = store.IncrementAttempts(ctx, "tenant-1", "conv-1", now, 15*time.Minute)
	require.NoError(t, err)

	got, err := store.Get(ctx, "tenant-1", "conv-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.Attempts)
	assert.False(t, got.WindowStart.IsZero())
}

func TestVerificationStore_GetAttempts(t *testing.T) {
	store := NewVerificationStore()
	ctx := context.Background()

	count, windowStart, err := store.GetAttempts(ctx, "tenant-1", "conv-1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.True(t, windowStart.IsZero())

	now := time.Now()
	_, err = store.IncrementAttempts(ctx, "tenant-1", "conv-1", now, 15*time.Minute)
	require.NoError(t, err)
	_, err = store.IncrementAttempts(ctx, "tenant-1", "conv-1", now.Add(time.Minute), 15*time.Minute)
	require.NoError(t, err)

	count, windowStart, err = store.GetAttempts(ctx, "tenant-1", "conv-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	// 读取不消耗额度，窗口起点保持首次失败时刻
	assert.WithinDuration(t, now, windowStart, time.Millisecond)

	count, _, err = store.GetAttempts(ctx, "tenant-1", "conv-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestVerificationStore_Delete(t *testing.T) {
	store := NewVerificationStore()
	ctx := context.Background()

	session := entity.NewVerificationSession("tenant-1", "conv-1")
	require.NoError(t, store.Put(ctx, session, time.Hour))
	_, err := store.IncrementAttempts(ctx, "tenant-1", "conv-1", time.Now(), 15*time.Minute)
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "tenant-1", "conv-1"))

	got, err := store.Get(ctx, "tenant-1", "conv-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	// 计数也一并销毁：重新开始计数
	count, err := store.IncrementAttempts(ctx, "tenant-1", "conv-1", time.Now(), 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
