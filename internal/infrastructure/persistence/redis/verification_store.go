// Package redis 提供验证会话存储实现
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"shoply-ai-cs-api/internal/domain/entity"
	"shoply-ai-cs-api/internal/domain/repository"
)

var verifyTracer = otel.Tracer("redis.verification")

// incrementAttemptsScript 原子 compare-and-increment：
// 窗口内自增计数；窗口已滑出则重置计数为 1 并更新窗口起点。
// 并发提交经由 Redis 单线程执行，不会绕过上限判定。
var incrementAttemptsScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local ws = tonumber(redis.call('HGET', key, 'ws'))
local count
if ws == nil or (now - ws) > window then
  redis.call('HSET', key, 'ws', now, 'count', 1)
  count = 1
else
  count = redis.call('HINCRBY', key, 'count', 1)
end
redis.call('PEXPIRE', key, ttl)
return count
`)

// VerificationStore 会话验证状态的 Redis 实现
type VerificationStore struct {
	client *Client
}

// NewVerificationStore 创建验证会话存储
func NewVerificationStore(client *Client) *VerificationStore {
	return &VerificationStore{client: client}
}

var _ repository.VerificationStore = (*VerificationStore)(nil)

func sessionKey(tenantID, conversationID string) string {
	return fmt.Sprintf("verify:session:%s:%s", tenantID, conversationID)
}

func attemptsKey(tenantID, conversationID string) string {
	return fmt.Sprintf("verify:attempts:%s:%s", tenantID, conversationID)
}

// Get 读取验证会话；不存在时返回 (nil, nil)。
// 尝试计数单独存放，读取时合并进会话视图。
func (s *VerificationStore) Get(ctx context.Context, tenantID, conversationID string) (*entity.VerificationSession, error) {
	ctx, span := verifyTracer.Start(ctx, "verification.Get",
		trace.WithAttributes(
			attribute.String("tenant_id", tenantID),
			attribute.String("conversation_id", conversationID),
		))
	defer span.End()

	data, err := s.client.rdb.Get(ctx, sessionKey(tenantID, conversationID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get verification session: %w", err)
	}

	var session entity.VerificationSession
	if err := json.Unmarshal(data, &session); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to unmarshal verification session: %w", err)
	}

	fields, err := s.client.rdb.HGetAll(ctx, attemptsKey(tenantID, conversationID)).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get attempt counter: %w", err)
	}
	if len(fields) > 0 {
		if count, err := strconv.Atoi(fields["count"]); err == nil {
			session.Attempts = count
		}
		if wsMillis, err := strconv.ParseInt(fields["ws"], 10, 64); err == nil {
			session.WindowStart = time.UnixMilli(wsMillis)
		}
	}

	return &session, nil
}

// Put 写入验证会话并续期 TTL
func (s *VerificationStore) Put(ctx context.Context, session *entity.VerificationSession, ttl time.Duration) error {
	ctx, span := verifyTracer.Start(ctx, "verification.Put",
		trace.WithAttributes(
			attribute.String("tenant_id", session.TenantID),
			attribute.String("conversation_id", session.ConversationID),
			attribute.String("level", session.Level.String()),
		))
	defer span.End()

	data, err := json.Marshal(session)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to marshal verification session: %w", err)
	}

	key := sessionKey(session.TenantID, session.ConversationID)
	if err := s.client.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to put verification session: %w", err)
	}
	return nil
}

// IncrementAttempts 原子自增尝试计数并返回新值
func (s *VerificationStore) IncrementAttempts(ctx context.Context, tenantID, conversationID string, now time.Time, window time.Duration) (int, error) {
	ctx, span := verifyTracer.Start(ctx, "verification.IncrementAttempts",
		trace.WithAttributes(
			attribute.String("tenant_id", tenantID),
			attribute.String("conversation_id", conversationID),
		))
	defer span.End()

	key := attemptsKey(tenantID, conversationID)
	result, err := incrementAttemptsScript.Run(ctx, s.client.rdb,
		[]string{key},
		now.UnixMilli(),
		window.Milliseconds(),
		(window * 2).Milliseconds(),
	).Int()
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to increment attempts: %w", err)
	}

	span.SetAttributes(attribute.Int("attempts", result))
	return result, nil
}

// GetAttempts 读取当前计数与窗口起点，不消耗额度
func (s *VerificationStore) GetAttempts(ctx context.Context, tenantID, conversationID string) (int, time.Time, error) {
	fields, err := s.client.rdb.HGetAll(ctx, attemptsKey(tenantID, conversationID)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to get attempt counter: %w", err)
	}
	if len(fields) == 0 {
		return 0, time.Time{}, nil
	}

	count, err := strconv.Atoi(fields["count"])
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("malformed attempt counter: %w", err)
	}
	wsMillis, err := strconv.ParseInt(fields["ws"], 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("malformed attempt window: %w", err)
	}
	return count, time.UnixMilli(wsMillis), nil
}

// Delete 销毁验证会话与尝试计数
func (s *VerificationStore) Delete(ctx context.Context, tenantID, conversationID string) error {
	ctx, span := verifyTracer.Start(ctx, "verification.Delete",
		trace.WithAttributes(
			attribute.String("tenant_id", tenantID),
			attribute.String("conversation_id", conversationID),
		))
	defer span.End()

	return s.client.rdb.Del(ctx,
		sessionKey(tenantID, conversationID),
		attemptsKey(tenantID, conversationID),
	).Err()
}
