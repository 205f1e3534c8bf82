package dto

import (
	"shoply-ai-cs-api/internal/application/fusion"
	"shoply-ai-cs-api/internal/application/search"
	"shoply-ai-cs-api/internal/application/turn"
)

// TurnRequest 对话轮次请求
type TurnRequest struct {
	ConversationID string `json:"conversation_id" binding:"required"`
	Message        string `json:"message" binding:"required"`
	ContextBudget  int    `json:"context_budget,omitempty"`
}

// TurnResponse 对话轮次响应。Context 是可直接注入提示词的渲染结果，
// 结构化字段留给想自行渲染的调用方。
type TurnResponse struct {
	ConversationID string `json:"conversation_id"`
	Context        string `json:"context"`

	Retrieval          *search.ContextBlock  `json:"retrieval,omitempty"`
	Product            *fusion.ProductAnswer `json:"product,omitempty"`
	Order              *fusion.OrderAnswer   `json:"order,omitempty"`
	VerificationPrompt string                `json:"verification_prompt,omitempty"`
	VerificationLevel  string                `json:"verification_level"`

	Degraded  []string `json:"degraded,omitempty"`
	ElapsedMs int64    `json:"elapsed_ms"`
}

// ToTurnResponse 转换轮次装配结果
func ToTurnResponse(conversationID string, result *turn.Result) *TurnResponse {
	return &TurnResponse{
		ConversationID:     conversationID,
		Context:            result.Render(),
		Retrieval:          result.Retrieval,
		Product:            result.Product,
		Order:              result.Order,
		VerificationPrompt: result.VerificationPrompt,
		VerificationLevel:  result.Level.String(),
		Degraded:           result.Degraded,
		ElapsedMs:          result.Elapsed.Milliseconds(),
	}
}
