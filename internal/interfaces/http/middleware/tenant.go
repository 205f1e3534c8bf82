// Package middleware 提供 HTTP 中间件
package middleware

import (
	"context"
	"net/http"

	"shoply-ai-cs-api/internal/domain/entity"
	"shoply-ai-cs-api/internal/domain/repository"
	"shoply-ai-cs-api/pkg/errors"
	"shoply-ai-cs-api/pkg/logger"

	"github.com/gin-gonic/gin"
)

// TenantContextKey 租户上下文 Key 类型
type TenantContextKey string

const (
	// TenantIDKey 租户 ID 上下文 Key
	TenantIDKey TenantContextKey = "tenant_id"
)

// TenantConfig 租户中间件配置
type TenantConfig struct {
	// HeaderName 从 Header 中获取租户 ID 的字段名
	HeaderName string
	// DefaultTenantID 默认租户 ID（用于开发环境）
	DefaultTenantID string
}

// Tenant 多租户解析中间件。
// 每个请求必须落到一个激活的租户上，后续处理器经 GetTenantFromGin 取实体。
func Tenant(cfg TenantConfig, repo repository.TenantRepository) gin.HandlerFunc {
	// 设置默认值
	if cfg.HeaderName == "" {
		cfg.HeaderName = "X-Tenant-ID"
	}

	return func(c *gin.Context) {
		tenantID := c.GetHeader(cfg.HeaderName)

		// 如果没有，使用默认值（仅开发环境）
		if tenantID == "" && cfg.DefaultTenantID != "" {
			tenantID = cfg.DefaultTenantID
		}

		if tenantID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"code":    errors.CodeInvalidParam,
				"message": "missing " + cfg.HeaderName + " header",
			})
			return
		}

		tenant, err := repo.GetByID(c.Request.Context(), tenantID)
		if err != nil {
			logger.Error(c.Request.Context(), "failed to resolve tenant", err, "tenant_id", tenantID)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"code":    errors.CodeDatabaseError,
				"message": "tenant resolution unavailable",
			})
			return
		}
		if tenant == nil {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
				"code":    errors.CodeTenantNotFound,
				"message": "tenant not found",
			})
			return
		}
		if !tenant.Active {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":    errors.CodeForbidden,
				"message": "tenant is deactivated",
			})
			return
		}

		// 设置到 Gin Context
		c.Set("tenant_id", tenant.ID)
		c.Set("tenant", tenant)

		// 同时设置到 request context，便于 Repository 层使用
		ctx := context.WithValue(c.Request.Context(), TenantIDKey, tenant.ID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// GetTenantID 从 context 中获取租户 ID
func GetTenantID(ctx context.Context) string {
	if v := ctx.Value(TenantIDKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetTenantIDFromGin 从 Gin Context 中获取租户 ID
func GetTenantIDFromGin(c *gin.Context) string {
	return c.GetString("tenant_id")
}

// GetTenantFromGin 从 Gin Context 中获取租户实体
func GetTenantFromGin(c *gin.Context) *entity.Tenant {
	if v, ok := c.Get("tenant"); ok {
		if tenant, ok := v.(*entity.Tenant); ok {
			return tenant
		}
	}
	return nil
}
