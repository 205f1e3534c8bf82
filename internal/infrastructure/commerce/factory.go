// Package commerce 提供商城后端接入层
package commerce

import (
	"time"

	"shoply-ai-cs-api/internal/domain/entity"
)

// Factory 按租户配置解析商城后端
type Factory struct {
	requestTimeout time.Duration
}

// NewFactory 创建后端工厂
func NewFactory(requestTimeout time.Duration) *Factory {
	return &Factory{requestTimeout: requestTimeout}
}

// ForTenant 解析租户的商城后端。未知类型按无后端处理。
func (f *Factory) ForTenant(tenant *entity.Tenant) Backend {
	if tenant == nil {
		return NewNoneBackend()
	}
	switch tenant.CommerceBackend {
	case entity.BackendREST:
		if tenant.CommerceBaseURL == "" {
			return NewNoneBackend()
		}
		return NewRESTBackend(tenant.CommerceBaseURL, tenant.CommerceAPIKey, f.requestTimeout)
	default:
		return NewNoneBackend()
	}
}
