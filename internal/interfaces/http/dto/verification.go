package dto

import (
	"time"

	"shoply-ai-cs-api/internal/application/verification"
	"shoply-ai-cs-api/internal/domain/entity"
)

// VerifyIdentityRequest 身份要素验证请求
type VerifyIdentityRequest struct {
	ConversationID string `json:"conversation_id" binding:"required"`
	OrderNumber    string `json:"order_number" binding:"required"`
	Email          string `json:"email,omitempty"`
	PostalCode     string `json:"postal_code,omitempty"`
}

// RequestOTPRequest OTP 发送请求
type RequestOTPRequest struct {
	ConversationID string `json:"conversation_id" binding:"required"`
}

// SubmitOTPRequest OTP 提交请求
type SubmitOTPRequest struct {
	ConversationID string `json:"conversation_id" binding:"required"`
	Code           string `json:"code" binding:"required"`
}

// VerificationStatusResponse 验证状态响应。
// 不回传邮箱全文与订单内容，只报级别。
type VerificationStatusResponse struct {
	ConversationID string `json:"conversation_id"`
	Level          string `json:"level"`
	OrderBound     bool   `json:"order_bound"`
}

// OTPDeliveryResponse OTP 发送回执。验证码只走投递通道，不出现在响应里。
type OTPDeliveryResponse struct {
	ConversationID string    `json:"conversation_id"`
	MaskedEmail    string    `json:"masked_email"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// VerificationAttemptsResponse 尝试计数响应
type VerificationAttemptsResponse struct {
	ConversationID string     `json:"conversation_id"`
	Attempts       int        `json:"attempts"`
	MaxAttempts    int        `json:"max_attempts"`
	WindowStart    *time.Time `json:"window_start,omitempty"`
	Locked         bool       `json:"locked"`
}

// ToVerificationAttemptsResponse 转换尝试计数快照
func ToVerificationAttemptsResponse(conversationID string, status *verification.AttemptStatus) *VerificationAttemptsResponse {
	resp := &VerificationAttemptsResponse{
		ConversationID: conversationID,
		Attempts:       status.Attempts,
		MaxAttempts:    status.MaxAttempts,
		Locked:         status.Locked,
	}
	if !status.WindowStart.IsZero() {
		ws := status.WindowStart
		resp.WindowStart = &ws
	}
	return resp
}

// ToVerificationStatusResponse 转换验证会话
func ToVerificationStatusResponse(session *entity.VerificationSession) *VerificationStatusResponse {
	return &VerificationStatusResponse{
		ConversationID: session.ConversationID,
		Level:          session.Level.String(),
		OrderBound:     session.OrderID != "",
	}
}

// ToOTPDeliveryResponse 转换 OTP 发送回执
func ToOTPDeliveryResponse(conversationID string, delivery *verification.OTPDelivery) *OTPDeliveryResponse {
	return &OTPDeliveryResponse{
		ConversationID: conversationID,
		MaskedEmail:    maskEmail(delivery.Email),
		ExpiresAt:      delivery.ExpiresAt,
	}
}

// maskEmail 遮蔽邮箱本地部分，只留首字符
func maskEmail(email string) string {
	for i, r := range email {
		if r == '@' {
			if i <= 1 {
				return "*" + email[i:]
			}
			return email[:1] + "***" + email[i:]
		}
	}
	return "***"
}
