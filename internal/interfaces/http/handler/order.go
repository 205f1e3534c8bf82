// Package handler 提供 HTTP 请求处理器
package handler

import (
	"shoply-ai-cs-api/internal/application/fusion"
	"shoply-ai-cs-api/internal/application/verification"
	"shoply-ai-cs-api/internal/interfaces/http/dto"

	"github.com/gin-gonic/gin"
)

// OrderHandler 订单查询处理器
type OrderHandler struct {
	fusion       *fusion.Service
	verification *verification.Service
}

// NewOrderHandler 创建订单查询处理器
func NewOrderHandler(fusionSvc *fusion.Service, verificationSvc *verification.Service) *OrderHandler {
	return &OrderHandler{
		fusion:       fusionSvc,
		verification: verificationSvc,
	}
}

// Search 订单摘要检索
// @Summary 订单摘要检索
// @Description 按邮箱或客户姓名列订单摘要，要求会话已达 partial 验证级别。
// @Description 姓名命中多个客户时返回歧义错误，绝不自动挑选。
// @Tags Orders
// @Accept json
// @Produce json
// @Param X-Tenant-ID header string true "租户 ID"
// @Param body body dto.OrderSearchRequest true "检索条件"
// @Success 200 {object} dto.Response[fusion.OrderAnswer]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/orders/search [post]
func (h *OrderHandler) Search(c *gin.Context) {
	tenant := mustTenant(c)
	if tenant == nil {
		return
	}

	var req dto.OrderSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if req.Email == "" && req.CustomerName == "" {
		dto.BadRequest(c, "email or customer_name is required")
		return
	}

	session, err := h.verification.Session(c.Request.Context(), tenant.ID, req.ConversationID)
	if err != nil {
		respondError(c, "failed to load verification session", err)
		return
	}

	var answer *fusion.OrderAnswer
	if req.Email != "" {
		answer, err = h.fusion.SearchOrders(c.Request.Context(), tenant, session, req.Email)
	} else {
		answer, err = h.fusion.SearchOrdersByName(c.Request.Context(), tenant, session, req.CustomerName)
	}
	if err != nil {
		respondError(c, "order search failed", err)
		return
	}

	dto.Success(c, answer)
}
