// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"shoply-ai-cs-api/internal/domain/entity"
	"shoply-ai-cs-api/internal/domain/repository"
	apperrors "shoply-ai-cs-api/pkg/errors"
)

// ModificationRepository 订单修改请求仓储实现。
// 状态迁移与审计条目在同一事务内落库，审计表只追加。
type ModificationRepository struct {
	client *Client
	tx     *TxManager
}

// NewModificationRepository 创建修改请求仓储
func NewModificationRepository(client *Client, tx *TxManager) *ModificationRepository {
	return &ModificationRepository{client: client, tx: tx}
}

var _ repository.ModificationRepository = (*ModificationRepository)(nil)

// Create 创建修改请求并写入首条审计
func (r *ModificationRepository) Create(ctx context.Context, req *entity.ModificationRequest, initial *entity.AuditEntry) error {
	ctx, span := tracer.Start(ctx, "postgres.ModificationRepository.Create",
		trace.WithAttributes(
			attribute.String("tenant_id", req.TenantID),
			attribute.String("type", string(req.Type)),
		))
	defer span.End()

	err := r.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		db := getDB(txCtx, r.client.db)
		if err := db.Create(req).Error; err != nil {
			return fmt.Errorf("failed to create modification request: %w", err)
		}
		if initial != nil {
			initial.ModificationID = req.ID
			if err := db.Create(initial).Error; err != nil {
				return fmt.Errorf("failed to create audit entry: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// GetByID 根据 ID 获取修改请求（限定租户）
func (r *ModificationRepository) GetByID(ctx context.Context, tenantID, id string) (*entity.ModificationRequest, error) {
	ctx, span := tracer.Start(ctx, "postgres.ModificationRepository.GetByID",
		trace.WithAttributes(attribute.String("tenant_id", tenantID)))
	defer span.End()

	db := getDB(ctx, r.client.db)
	var req entity.ModificationRequest
	if err := db.First(&req, "tenant_id = ? AND id = ?", tenantID, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get modification request: %w", err)
	}
	return &req, nil
}

// GetByConfirmationToken 根据确认令牌获取修改请求
func (r *ModificationRepository) GetByConfirmationToken(ctx context.Context, tenantID, token string) (*entity.ModificationRequest, error) {
	ctx, span := tracer.Start(ctx, "postgres.ModificationRepository.GetByConfirmationToken",
		trace.WithAttributes(attribute.String("tenant_id", tenantID)))
	defer span.End()

	db := getDB(ctx, r.client.db)
	var req entity.ModificationRequest
	if err := db.First(&req, "tenant_id = ? AND confirmation_token = ?", tenantID, token).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get modification request by token: %w", err)
	}
	return &req, nil
}

// Transition 前向迁移状态并追加审计条目。
// 在事务内重读当前状态做合法性判定，非法迁移不写任何数据。
func (r *ModificationRepository) Transition(ctx context.Context, tenantID, id string, next entity.ModificationStatus, audit *entity.AuditEntry) error {
	ctx, span := tracer.Start(ctx, "postgres.ModificationRepository.Transition",
		trace.WithAttributes(
			attribute.String("tenant_id", tenantID),
			attribute.String("next_status", string(next)),
		))
	defer span.End()

	err := r.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		db := getDB(txCtx, r.client.db)

		// 行级锁避免并发确认导致的双重执行
		var req entity.ModificationRequest
		if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&req, "tenant_id = ? AND id = ?", tenantID, id).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperrors.ErrModificationNotFound
			}
			return fmt.Errorf("failed to load modification request: %w", err)
		}

		if !req.Status.CanTransitionTo(next) {
			return apperrors.ErrInvalidTransition.WithDetail(
				fmt.Sprintf("cannot transition from %s to %s", req.Status, next))
		}

		if err := db.Model(&entity.ModificationRequest{}).
			Where("tenant_id = ? AND id = ? AND status = ?", tenantID, id, req.Status).
			Update("status", next).Error; err != nil {
			return fmt.Errorf("failed to update status: %w", err)
		}

		if audit != nil {
			audit.ModificationID = id
			if err := db.Create(audit).Error; err != nil {
				return fmt.Errorf("failed to append audit entry: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// ListAudit 读取修改请求的完整审计轨迹（按时间升序）
func (r *ModificationRepository) ListAudit(ctx context.Context, tenantID, modificationID string) ([]*entity.AuditEntry, error) {
	ctx, span := tracer.Start(ctx, "postgres.ModificationRepository.ListAudit",
		trace.WithAttributes(attribute.String("tenant_id", tenantID)))
	defer span.End()

	db := getDB(ctx, r.client.db)

	// 审计属于修改请求的子资源，租户校验经由父行
	var req entity.ModificationRequest
	if err := db.First(&req, "tenant_id = ? AND id = ?", tenantID, modificationID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.ErrModificationNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to load modification request: %w", err)
	}

	var entries []*entity.AuditEntry
	if err := db.Order("timestamp ASC").
		Find(&entries, "modification_id = ?", modificationID).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	return entries, nil
}
