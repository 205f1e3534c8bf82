// Package commerce 提供商城后端接入层
package commerce

import (
	"context"

	"shoply-ai-cs-api/internal/domain/entity"
	apperrors "shoply-ai-cs-api/pkg/errors"
)

// NoneBackend 无后端租户的空实现。所有操作返回来源不可用，
// 融合层据此回退到抓取存档数据。
type NoneBackend struct{}

// NewNoneBackend 创建空后端
func NewNoneBackend() *NoneBackend {
	return &NoneBackend{}
}

var _ Backend = (*NoneBackend)(nil)

func (b *NoneBackend) Kind() entity.CommerceBackendKind {
	return entity.BackendNone
}

func (b *NoneBackend) GetProduct(_ context.Context, _ string) (*entity.Product, error) {
	return nil, apperrors.ErrSourceUnavailable.WithDetail("tenant has no commerce backend configured")
}

func (b *NoneBackend) GetOrder(_ context.Context, _ string) (*entity.Order, error) {
	return nil, apperrors.ErrSourceUnavailable.WithDetail("tenant has no commerce backend configured")
}

func (b *NoneBackend) FindOrdersByCustomer(_ context.Context, _ string) ([]*entity.Order, error) {
	return nil, apperrors.ErrSourceUnavailable.WithDetail("tenant has no commerce backend configured")
}

func (b *NoneBackend) FindOrdersByCustomerName(_ context.Context, _ string) ([]*entity.Order, error) {
	return nil, apperrors.ErrSourceUnavailable.WithDetail("tenant has no commerce backend configured")
}

func (b *NoneBackend) CancelOrder(_ context.Context, _ string) error {
	return apperrors.ErrSourceUnavailable.WithDetail("tenant has no commerce backend configured")
}

func (b *NoneBackend) UpdateAddress(_ context.Context, _ string, _ *AddressUpdate) error {
	return apperrors.ErrSourceUnavailable.WithDetail("tenant has no commerce backend configured")
}

func (b *NoneBackend) RefundOrder(_ context.Context, _, _ string) error {
	return apperrors.ErrSourceUnavailable.WithDetail("tenant has no commerce backend configured")
}

func (b *NoneBackend) AddNote(_ context.Context, _, _ string) error {
	return apperrors.ErrSourceUnavailable.WithDetail("tenant has no commerce backend configured")
}
