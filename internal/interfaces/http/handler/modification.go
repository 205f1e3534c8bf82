// Package handler 提供 HTTP 请求处理器
package handler

import (
	"shoply-ai-cs-api/internal/application/modification"
	"shoply-ai-cs-api/internal/application/verification"
	"shoply-ai-cs-api/internal/interfaces/http/dto"

	"github.com/gin-gonic/gin"
)

// ModificationHandler 订单修改处理器
type ModificationHandler struct {
	svc          *modification.Service
	verification *verification.Service
}

// NewModificationHandler 创建订单修改处理器
func NewModificationHandler(svc *modification.Service, verificationSvc *verification.Service) *ModificationHandler {
	return &ModificationHandler{
		svc:          svc,
		verification: verificationSvc,
	}
}

// Propose 发起订单修改
// @Summary 发起订单修改
// @Description 从客户话术识别修改意图并创建待确认请求，要求会话已达 full 验证级别
// @Tags Modifications
// @Accept json
// @Produce json
// @Param X-Tenant-ID header string true "租户 ID"
// @Param body body dto.ProposeModificationRequest true "修改提议"
// @Success 201 {object} dto.Response[dto.ProposeModificationResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Router /v1/modifications [post]
func (h *ModificationHandler) Propose(c *gin.Context) {
	tenant := mustTenant(c)
	if tenant == nil {
		return
	}

	var req dto.ProposeModificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	session, err := h.verification.Session(c.Request.Context(), tenant.ID, req.ConversationID)
	if err != nil {
		respondError(c, "failed to load verification session", err)
		return
	}

	result, err := h.svc.Propose(c.Request.Context(), tenant, session, &modification.ProposeInput{
		ConversationID: req.ConversationID,
		Utterance:      req.Utterance,
		OrderNumber:    req.OrderNumber,
		Payload:        req.Payload,
	})
	if err != nil {
		respondError(c, "modification proposal failed", err)
		return
	}

	if result.NeedsClarification {
		dto.Success(c, dto.ToProposeModificationResponse(result))
		return
	}
	dto.Created(c, dto.ToProposeModificationResponse(result))
}

// Confirm 确认并执行修改
// @Summary 确认并执行修改
// @Description 凭确认令牌将请求推进到 confirmed 并触发商城后端执行
// @Tags Modifications
// @Accept json
// @Produce json
// @Param X-Tenant-ID header string true "租户 ID"
// @Param body body dto.ConfirmModificationRequest true "确认令牌"
// @Success 200 {object} dto.Response[dto.ModificationResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/modifications/confirm [post]
func (h *ModificationHandler) Confirm(c *gin.Context) {
	tenant := mustTenant(c)
	if tenant == nil {
		return
	}

	var req dto.ConfirmModificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	result, err := h.svc.Confirm(c.Request.Context(), tenant, req.ConfirmationToken)
	if err != nil {
		respondError(c, "modification confirmation failed", err)
		return
	}

	dto.Success(c, dto.ToModificationResponse(result))
}

// Withdraw 撤回修改请求
// @Summary 撤回修改请求
// @Description 客户在确认前撤回，请求落为 cancelled 终态
// @Tags Modifications
// @Produce json
// @Param X-Tenant-ID header string true "租户 ID"
// @Param id path string true "修改请求 ID"
// @Success 200 {object} dto.Response[dto.ModificationResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/modifications/{id} [delete]
func (h *ModificationHandler) Withdraw(c *gin.Context) {
	tenant := mustTenant(c)
	if tenant == nil {
		return
	}

	result, err := h.svc.Withdraw(c.Request.Context(), tenant, c.Param("id"))
	if err != nil {
		respondError(c, "modification withdrawal failed", err)
		return
	}

	dto.Success(c, dto.ToModificationResponse(result))
}

// Get 查询修改请求
// @Summary 查询修改请求
// @Description 返回修改请求当前状态
// @Tags Modifications
// @Produce json
// @Param X-Tenant-ID header string true "租户 ID"
// @Param id path string true "修改请求 ID"
// @Success 200 {object} dto.Response[dto.ModificationResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/modifications/{id} [get]
func (h *ModificationHandler) Get(c *gin.Context) {
	tenant := mustTenant(c)
	if tenant == nil {
		return
	}

	result, err := h.svc.Get(c.Request.Context(), tenant, c.Param("id"))
	if err != nil {
		respondError(c, "failed to load modification", err)
		return
	}

	dto.Success(c, dto.ToModificationResponse(result))
}

// Audit 查询审计轨迹
// @Summary 查询审计轨迹
// @Description 按时间序返回修改请求的全部审计条目
// @Tags Modifications
// @Produce json
// @Param X-Tenant-ID header string true "租户 ID"
// @Param id path string true "修改请求 ID"
// @Success 200 {object} dto.Response[[]dto.AuditEntryResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/modifications/{id}/audit [get]
func (h *ModificationHandler) Audit(c *gin.Context) {
	tenant := mustTenant(c)
	if tenant == nil {
		return
	}

	entries, err := h.svc.Audit(c.Request.Context(), tenant, c.Param("id"))
	if err != nil {
		respondError(c, "failed to load audit trail", err)
		return
	}

	dto.Success(c, dto.ToAuditEntryResponses(entries))
}
