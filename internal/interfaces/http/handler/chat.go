// Package handler 提供 HTTP 请求处理器
package handler

import (
	"shoply-ai-cs-api/internal/application/turn"
	"shoply-ai-cs-api/internal/interfaces/http/dto"

	"github.com/gin-gonic/gin"
)

// ChatHandler 对话轮次处理器
type ChatHandler struct {
	orchestrator *turn.Orchestrator
}

// NewChatHandler 创建对话轮次处理器
func NewChatHandler(orchestrator *turn.Orchestrator) *ChatHandler {
	return &ChatHandler{
		orchestrator: orchestrator,
	}
}

// Turn 执行单轮上下文装配
// @Summary 对话轮次装配
// @Description 对一条客户消息并行取回知识库上下文、商品与订单数据，返回可注入提示词的融合结果
// @Tags Chat
// @Accept json
// @Produce json
// @Param X-Tenant-ID header string true "租户 ID"
// @Param body body dto.TurnRequest true "轮次请求"
// @Success 200 {object} dto.Response[dto.TurnResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/chat/turns [post]
func (h *ChatHandler) Turn(c *gin.Context) {
	tenant := mustTenant(c)
	if tenant == nil {
		return
	}

	var req dto.TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	result, err := h.orchestrator.Run(c.Request.Context(), &turn.Input{
		Tenant:         tenant,
		ConversationID: req.ConversationID,
		Message:        req.Message,
		ContextBudget:  req.ContextBudget,
	})
	if err != nil {
		respondError(c, "failed to assemble turn", err)
		return
	}

	dto.Success(c, dto.ToTurnResponse(req.ConversationID, result))
}
