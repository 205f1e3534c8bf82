// Package handler 提供 HTTP 请求处理器
package handler

import (
	"shoply-ai-cs-api/internal/domain/repository"
	rediscache "shoply-ai-cs-api/internal/infrastructure/persistence/redis"
	"shoply-ai-cs-api/internal/interfaces/http/dto"

	"github.com/gin-gonic/gin"
)

// AdminHandler 运维接口处理器
type AdminHandler struct {
	limiter repository.RateLimitStore
}

// NewAdminHandler 创建运维接口处理器
func NewAdminHandler(limiter repository.RateLimitStore) *AdminHandler {
	return &AdminHandler{
		limiter: limiter,
	}
}

// ResetRateLimitRequest 限流重置请求
type ResetRateLimitRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// ResetRateLimit 重置租户限流窗口
// @Summary 重置租户限流窗口
// @Description 清空指定端点的限流计数，用于处理误封
// @Tags Admin
// @Accept json
// @Produce json
// @Param X-Tenant-ID header string true "租户 ID"
// @Param body body ResetRateLimitRequest true "端点"
// @Success 204
// @Router /v1/admin/ratelimit/reset [post]
func (h *AdminHandler) ResetRateLimit(c *gin.Context) {
	tenant := mustTenant(c)
	if tenant == nil {
		return
	}

	var req ResetRateLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	key := rediscache.BuildRateLimitKey(tenant.ID, req.Endpoint)
	if err := h.limiter.Reset(c.Request.Context(), key); err != nil {
		respondError(c, "failed to reset rate limit", err)
		return
	}

	dto.NoContent(c)
}
