// Package repository 定义数据访问接口
package repository

import (
	"context"

	"shoply-ai-cs-api/internal/domain/entity"
)

// ModificationRepository 订单修改请求仓储。
// 状态只前移，审计条目只追加；两者在同一事务内落库。
type ModificationRepository interface {
	Create(ctx context.Context, req *entity.ModificationRequest, initial *entity.AuditEntry) error
	GetByID(ctx context.Context, tenantID, id string) (*entity.ModificationRequest, error)
	GetByConfirmationToken(ctx context.Context, tenantID, token string) (*entity.ModificationRequest, error)

	// Transition 前向迁移状态并追加审计条目。非法迁移返回错误且不写任何数据。
	Transition(ctx context.Context, tenantID, id string, next entity.ModificationStatus, audit *entity.AuditEntry) error

	// ListAudit 读取修改请求的完整审计轨迹（按时间升序）
	ListAudit(ctx context.Context, tenantID, modificationID string) ([]*entity.AuditEntry, error)
}

// TenantRepository 租户仓储
type TenantRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Tenant, error)
	GetByDomain(ctx context.Context, domain string) (*entity.Tenant, error)
	Create(ctx context.Context, tenant *entity.Tenant) error
}
