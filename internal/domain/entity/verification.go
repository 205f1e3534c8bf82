// Package entity 定义领域实体
package entity

import (
	"time"
)

// VerificationLevel 会话身份验证级别
type VerificationLevel int

const (
	VerificationNone VerificationLevel = iota
	VerificationPartial
	VerificationFull
)

// String 返回级别名称
func (l VerificationLevel) String() string {
	switch l {
	case VerificationPartial:
		return "partial"
	case VerificationFull:
		return "full"
	default:
		return "none"
	}
}

// AtLeast 检查级别是否不低于给定级别
func (l VerificationLevel) AtLeast(min VerificationLevel) bool {
	return l >= min
}

// VerificationSession 会话级身份验证状态。
// 以 conversation_id 为键，会话结束即销毁，验证级别不跨会话传递。
type VerificationSession struct {
	ConversationID string            `json:"conversation_id"`
	TenantID       string            `json:"tenant_id"`
	Level          VerificationLevel `json:"level"`
	Email          string            `json:"email,omitempty"`
	OrderID        string            `json:"order_id,omitempty"`

	OTPCodeHash  string    `json:"otp_code_hash,omitempty"`
	OTPExpiresAt time.Time `json:"otp_expires_at,omitempty"`

	Attempts    int       `json:"attempts"`
	WindowStart time.Time `json:"window_start,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewVerificationSession 创建初始验证会话
func NewVerificationSession(tenantID, conversationID string) *VerificationSession {
	now := time.Now()
	return &VerificationSession{
		ConversationID: conversationID,
		TenantID:       tenantID,
		Level:          VerificationNone,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// LockedOut 检查会话在给定时刻是否处于尝试上限冷却期。
// 上限内的窗口是滑动的：窗口起点后 window 时间内最多 maxAttempts 次。
func (s *VerificationSession) LockedOut(now time.Time, maxAttempts int, window time.Duration) bool {
	if s.WindowStart.IsZero() {
		return false
	}
	if now.Sub(s.WindowStart) > window {
		return false
	}
	return s.Attempts >= maxAttempts
}

// WindowExpired 检查尝试计数窗口是否已滑出
func (s *VerificationSession) WindowExpired(now time.Time, window time.Duration) bool {
	return s.WindowStart.IsZero() || now.Sub(s.WindowStart) > window
}

// OTPValid 检查 OTP 是否已签发且未过期
func (s *VerificationSession) OTPValid(now time.Time) bool {
	return s.OTPCodeHash != "" && now.Before(s.OTPExpiresAt)
}
