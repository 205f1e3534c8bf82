// Package memory 提供进程内限流实现
package memory

import (
	"context"
	"sync"
	"time"

	"shoply-ai-cs-api/internal/domain/repository"
)

var _ repository.RateLimitStore = (*RateLimiter)(nil)

// RateLimiter 滑动窗口限流器的内存实现。
// 每个键保留窗口内的请求时间戳，读写前先做确定性的时间窗剔除。
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string][]time.Time
	now     func() time.Time
}

// NewRateLimiter 创建内存限流器
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// evict 剔除窗口外的时间戳，返回剩余列表
func (l *RateLimiter) evict(key string, window time.Duration) []time.Time {
	cutoff := l.now().Add(-window)
	stamps := l.buckets[key]
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		delete(l.buckets, key)
		return nil
	}
	l.buckets[key] = kept
	return kept
}

// Allow 检查是否允许请求
func (l *RateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stamps := l.evict(key, window)
	if len(stamps) >= limit {
		return false, nil
	}

	l.buckets[key] = append(stamps, l.now())
	return true, nil
}

// Remaining 获取剩余配额
func (l *RateLimiter) Remaining(_ context.Context, key string, limit int, window time.Duration) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	remaining := limit - len(l.evict(key, window))
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Reset 重置限流计数
func (l *RateLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.buckets, key)
	return nil
}
