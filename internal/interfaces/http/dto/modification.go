package dto

import (
	"encoding/json"
	"time"

	"shoply-ai-cs-api/internal/application/modification"
	"shoply-ai-cs-api/internal/domain/entity"
)

// ProposeModificationRequest 订单修改提议请求
type ProposeModificationRequest struct {
	ConversationID string          `json:"conversation_id" binding:"required"`
	Utterance      string          `json:"utterance" binding:"required"`
	OrderNumber    string          `json:"order_number,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// ConfirmModificationRequest 修改确认请求
type ConfirmModificationRequest struct {
	ConfirmationToken string `json:"confirmation_token" binding:"required"`
}

// ModificationResponse 修改请求响应
type ModificationResponse struct {
	ID                string    `json:"id"`
	ConversationID    string    `json:"conversation_id"`
	OrderID           string    `json:"order_id"`
	Type              string    `json:"type"`
	Status            string    `json:"status"`
	ConfirmationToken string    `json:"confirmation_token,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ProposeModificationResponse 修改提议响应。
// 意图不够明确时只带追问话术，不创建请求。
type ProposeModificationResponse struct {
	NeedsClarification bool                  `json:"needs_clarification"`
	ClarifyQuestion    string                `json:"clarify_question,omitempty"`
	Intent             string                `json:"intent,omitempty"`
	Confidence         float64               `json:"confidence,omitempty"`
	Request            *ModificationResponse `json:"request,omitempty"`
}

// AuditEntryResponse 审计条目响应
type AuditEntryResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Result    string    `json:"result,omitempty"`
}

// ToModificationResponse 转换修改请求。
// 确认令牌只在待确认态回传。
func ToModificationResponse(req *entity.ModificationRequest) *ModificationResponse {
	resp := &ModificationResponse{
		ID:             req.ID,
		ConversationID: req.ConversationID,
		OrderID:        req.OrderID,
		Type:           string(req.Type),
		Status:         string(req.Status),
		CreatedAt:      req.CreatedAt,
		UpdatedAt:      req.UpdatedAt,
	}
	if req.Status == entity.StatusPendingConfirmation {
		resp.ConfirmationToken = req.ConfirmationToken
	}
	return resp
}

// ToProposeModificationResponse 转换修改提议结果
func ToProposeModificationResponse(result *modification.ProposeResult) *ProposeModificationResponse {
	resp := &ProposeModificationResponse{
		NeedsClarification: result.NeedsClarification,
		ClarifyQuestion:    result.ClarifyQuestion,
	}
	if result.Intent != nil {
		resp.Intent = string(result.Intent.Type)
		resp.Confidence = result.Intent.Confidence
	}
	if result.Request != nil {
		resp.Request = ToModificationResponse(result.Request)
	}
	return resp
}

// ToAuditEntryResponses 转换审计条目列表
func ToAuditEntryResponses(entries []*entity.AuditEntry) []*AuditEntryResponse {
	out := make([]*AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, &AuditEntryResponse{
			Timestamp: e.Timestamp,
			Actor:     e.Actor,
			Action:    e.Action,
			Result:    e.Result,
		})
	}
	return out
}
