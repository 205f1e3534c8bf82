// Package repository 定义数据访问接口
package repository

import (
	"context"
	"time"

	"shoply-ai-cs-api/internal/domain/entity"
)

// VerificationStore 会话验证状态存储。会话级生命周期，不落持久库。
type VerificationStore interface {
	// Get 读取会话；不存在时返回 (nil, nil)
	Get(ctx context.Context, tenantID, conversationID string) (*entity.VerificationSession, error)

	// Put 写入会话并续期 TTL
	Put(ctx context.Context, session *entity.VerificationSession, ttl time.Duration) error

	// IncrementAttempts 原子自增尝试计数并返回新值。
	// 窗口已滑出时先重置计数再自增（窗口起点更新为 now）。
	// 必须是 compare-and-increment 语义：并发提交不能绕过上限。
	IncrementAttempts(ctx context.Context, tenantID, conversationID string, now time.Time, window time.Duration) (int, error)

	// GetAttempts 读取当前计数与窗口起点，不消耗额度。
	// 无计数时返回 (0, 零值时间)。窗口是否已滑出由调用方判定。
	GetAttempts(ctx context.Context, tenantID, conversationID string) (int, time.Time, error)

	// Delete 销毁会话（会话结束或显式重置）
	Delete(ctx context.Context, tenantID, conversationID string) error
}

// RateLimitStore 租户级限流存储。
// 淘汰必须是确定性的时间窗剔除，并提供显式 Reset 供测试与运维覆盖。
type RateLimitStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Remaining(ctx context.Context, key string, limit int, window time.Duration) (int, error)
	Reset(ctx context.Context, key string) error
}
