// Package handler 提供 HTTP 请求处理器
package handler

import (
	"shoply-ai-cs-api/internal/application/verification"
	"shoply-ai-cs-api/internal/domain/entity"
	"shoply-ai-cs-api/internal/interfaces/http/dto"
	"shoply-ai-cs-api/internal/interfaces/http/middleware"

	"github.com/gin-gonic/gin"
)

// VerificationHandler 身份验证处理器
type VerificationHandler struct {
	svc *verification.Service
}

// NewVerificationHandler 创建身份验证处理器
func NewVerificationHandler(svc *verification.Service) *VerificationHandler {
	return &VerificationHandler{
		svc: svc,
	}
}

// VerifyIdentity 身份要素验证
// @Summary 身份要素验证
// @Description 订单号加邮箱或邮编匹配成功后将会话提升到 partial 级别
// @Tags Verification
// @Accept json
// @Produce json
// @Param X-Tenant-ID header string true "租户 ID"
// @Param body body dto.VerifyIdentityRequest true "身份要素"
// @Success 200 {object} dto.Response[dto.VerificationStatusResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 429 {object} dto.ErrorResponse
// @Router /v1/verification/identity [post]
func (h *VerificationHandler) VerifyIdentity(c *gin.Context) {
	tenant := mustTenant(c)
	if tenant == nil {
		return
	}

	var req dto.VerifyIdentityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if req.Email == "" && req.PostalCode == "" {
		dto.BadRequest(c, "email or postal_code is required")
		return
	}

	session, err := h.svc.VerifyIdentity(c.Request.Context(), tenant, req.ConversationID, req.OrderNumber, req.Email, req.PostalCode)
	if err != nil {
		respondError(c, "identity verification failed", err)
		return
	}

	dto.Success(c, dto.ToVerificationStatusResponse(session))
}

// RequestOTP 发送一次性验证码
// @Summary 发送一次性验证码
// @Description 向 partial 级别会话绑定的邮箱投递 OTP
// @Tags Verification
// @Accept json
// @Produce json
// @Param X-Tenant-ID header string true "租户 ID"
// @Param body body dto.RequestOTPRequest true "发送请求"
// @Success 200 {object} dto.Response[dto.OTPDeliveryResponse]
// @Failure 401 {object} dto.ErrorResponse
// @Router /v1/verification/otp/request [post]
func (h *VerificationHandler) RequestOTP(c *gin.Context) {
	tenant := mustTenant(c)
	if tenant == nil {
		return
	}

	var req dto.RequestOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	delivery, err := h.svc.RequestOTP(c.Request.Context(), tenant, req.ConversationID)
	if err != nil {
		respondError(c, "otp request failed", err)
		return
	}

	dto.Success(c, dto.ToOTPDeliveryResponse(req.ConversationID, delivery))
}

// SubmitOTP 校验一次性验证码
// @Summary 校验一次性验证码
// @Description OTP 匹配且未过期时将会话提升到 full 级别
// @Tags Verification
// @Accept json
// @Produce json
// @Param X-Tenant-ID header string true "租户 ID"
// @Param body body dto.SubmitOTPRequest true "验证码"
// @Success 200 {object} dto.Response[dto.VerificationStatusResponse]
// @Failure 401 {object} dto.ErrorResponse
// @Failure 429 {object} dto.ErrorResponse
// @Router /v1/verification/otp/submit [post]
func (h *VerificationHandler) SubmitOTP(c *gin.Context) {
	tenant := mustTenant(c)
	if tenant == nil {
		return
	}

	var req dto.SubmitOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	session, err := h.svc.SubmitOTP(c.Request.Context(), tenant, req.ConversationID, req.Code)
	if err != nil {
		respondError(c, "otp submission failed", err)
		return
	}

	dto.Success(c, dto.ToVerificationStatusResponse(session))
}

// Status 查询验证状态
// @Summary 查询验证状态
// @Description 返回会话当前的验证级别
// @Tags Verification
// @Produce json
// @Param X-Tenant-ID header string true "租户 ID"
// @Param cid path string true "会话 ID"
// @Success 200 {object} dto.Response[dto.VerificationStatusResponse]
// @Router /v1/conversations/{cid}/verification [get]
func (h *VerificationHandler) Status(c *gin.Context) {
	tenantID := middleware.GetTenantIDFromGin(c)
	conversationID := c.Param("cid")
	if conversationID == "" {
		dto.BadRequest(c, "missing conversation id")
		return
	}

	session, err := h.svc.Session(c.Request.Context(), tenantID, conversationID)
	if err != nil {
		respondError(c, "failed to load verification session", err)
		return
	}
	if session == nil {
		session = entity.NewVerificationSession(tenantID, conversationID)
	}

	dto.Success(c, dto.ToVerificationStatusResponse(session))
}

// Attempts 查询尝试计数
// @Summary 查询验证尝试计数
// @Description 返回会话当前窗口内的验证尝试次数与锁定状态
// @Tags Admin
// @Produce json
// @Param X-Tenant-ID header string true "租户 ID"
// @Param cid path string true "会话 ID"
// @Success 200 {object} dto.Response[dto.VerificationAttemptsResponse]
// @Router /v1/admin/verification/{cid}/attempts [get]
func (h *VerificationHandler) Attempts(c *gin.Context) {
	tenantID := middleware.GetTenantIDFromGin(c)
	conversationID := c.Param("cid")
	if conversationID == "" {
		dto.BadRequest(c, "missing conversation id")
		return
	}

	status, err := h.svc.Attempts(c.Request.Context(), tenantID, conversationID)
	if err != nil {
		respondError(c, "failed to load attempt counters", err)
		return
	}

	dto.Success(c, dto.ToVerificationAttemptsResponse(conversationID, status))
}

// EndConversation 结束会话
// @Summary 结束会话
// @Description 销毁会话的验证状态，验证级别不跨会话保留
// @Tags Verification
// @Produce json
// @Param X-Tenant-ID header string true "租户 ID"
// @Param cid path string true "会话 ID"
// @Success 204
// @Router /v1/conversations/{cid} [delete]
func (h *VerificationHandler) EndConversation(c *gin.Context) {
	tenantID := middleware.GetTenantIDFromGin(c)
	conversationID := c.Param("cid")
	if conversationID == "" {
		dto.BadRequest(c, "missing conversation id")
		return
	}

	if err := h.svc.EndConversation(c.Request.Context(), tenantID, conversationID); err != nil {
		respondError(c, "failed to end conversation", err)
		return
	}

	dto.NoContent(c)
}
