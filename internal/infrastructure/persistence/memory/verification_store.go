// Package memory 提供进程内存储实现，用于单机部署与测试
package memory

import (
	"context"
	"sync"
	"time"

	"shoply-ai-cs-api/internal/domain/entity"
	"shoply-ai-cs-api/internal/domain/repository"
)

var _ repository.VerificationStore = (*VerificationStore)(nil)

type sessionEntry struct {
	session   entity.VerificationSession
	expiresAt time.Time
}

type attemptEntry struct {
	count       int
	windowStart time.Time
}

// VerificationStore 验证会话的内存实现
type VerificationStore struct {
	mu       sync.Mutex
	sessions map[string]*sessionEntry
	attempts map[string]*attemptEntry
	now      func() time.Time
}

// NewVerificationStore 创建内存验证会话存储
func NewVerificationStore() *VerificationStore {
	return &VerificationStore{
		sessions: make(map[string]*sessionEntry),
		attempts: make(map[string]*attemptEntry),
		now:      time.Now,
	}
}

func storeKey(tenantID, conversationID string) string {
	return tenantID + ":" + conversationID
}

// Get 读取会话；不存在或已过期时返回 (nil, nil)
func (s *VerificationStore) Get(_ context.Context, tenantID, conversationID string) (*entity.VerificationSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := storeKey(tenantID, conversationID)
	entry, ok := s.sessions[key]
	if !ok {
		return nil, nil
	}
	if s.now().After(entry.expiresAt) {
		delete(s.sessions, key)
		delete(s.attempts, key)
		return nil, nil
	}

	session := entry.session
	if att, ok := s.attempts[key]; ok {
		session.Attempts = att.count
		session.WindowStart = att.windowStart
	}
	return &session, nil
}

// Put 写入会话并续期 TTL
func (s *VerificationStore) Put(_ context.Context, session *entity.VerificationSession, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := storeKey(session.TenantID, session.ConversationID)
	s.sessions[key] = &sessionEntry{
		session:   *session,
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

// IncrementAttempts 原子自增尝试计数并返回新值。
// 窗口已滑出时重置计数为 1 并更新窗口起点。
func (s *VerificationStore) IncrementAttempts(_ context.Context, tenantID, conversationID string, now time.Time, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := storeKey(tenantID, conversationID)
	entry, ok := s.attempts[key]
	if !ok || now.Sub(entry.windowStart) > window {
		s.attempts[key] = &attemptEntry{count: 1, windowStart: now}
		return 1, nil
	}

	entry.count++
	return entry.count, nil
}

// GetAttempts 读取当前计数与窗口起点，不消耗额度
func (s *VerificationStore) GetAttempts(_ context.Context, tenantID, conversationID string) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.attempts[storeKey(tenantID, conversationID)]
	if !ok {
		return 0, time.Time{}, nil
	}
	return entry.count, entry.windowStart, nil
}

// Delete 销毁会话与尝试计数
func (s *VerificationStore) Delete(_ context.Context, tenantID, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := storeKey(tenantID, conversationID)
	delete(s.sessions, key)
	delete(s.attempts, key)
	return nil
}
