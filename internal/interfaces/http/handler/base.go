// Package handler 提供 HTTP 请求处理器
package handler

import (
	"net/http"

	"shoply-ai-cs-api/internal/domain/entity"
	"shoply-ai-cs-api/internal/interfaces/http/dto"
	"shoply-ai-cs-api/internal/interfaces/http/middleware"
	apperrors "shoply-ai-cs-api/pkg/errors"
	"shoply-ai-cs-api/pkg/logger"

	"github.com/gin-gonic/gin"
)

// mustTenant 获取请求租户。租户中间件缺位时直接判 500。
func mustTenant(c *gin.Context) *entity.Tenant {
	tenant := middleware.GetTenantFromGin(c)
	if tenant == nil {
		dto.InternalError(c, "tenant not resolved")
		return nil
	}
	return tenant
}

// respondError 统一错误出口。5xx 记日志，4xx 属于正常业务分支不刷屏。
func respondError(c *gin.Context, msg string, err error) {
	appErr := apperrors.AsAppError(err)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		logger.Error(c.Request.Context(), msg, err,
			"path", c.Request.URL.Path,
			"tenant_id", middleware.GetTenantIDFromGin(c),
		)
	}
	dto.FromError(c, appErr)
}
