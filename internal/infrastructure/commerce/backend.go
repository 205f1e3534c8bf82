// Package commerce 提供商城后端接入层。
// 每个租户配置自己的后端类型，未配置后端的租户只用抓取存档数据。
package commerce

import (
	"context"

	"go.opentelemetry.io/otel"

	"shoply-ai-cs-api/internal/domain/entity"
)

var tracer = otel.Tracer("commerce")

// AddressUpdate 收货地址变更参数
type AddressUpdate struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Backend 商城后端接口。查询返回统一视图，写操作用于已确认的订单修改。
type Backend interface {
	// Kind 返回后端类型
	Kind() entity.CommerceBackendKind

	// GetProduct 按 SKU 查询商品
	GetProduct(ctx context.Context, sku string) (*entity.Product, error)

	// GetOrder 按订单号查询订单
	GetOrder(ctx context.Context, orderNumber string) (*entity.Order, error)

	// FindOrdersByCustomer 按客户邮箱查询订单列表
	FindOrdersByCustomer(ctx context.Context, email string) ([]*entity.Order, error)

	// FindOrdersByCustomerName 按客户姓名查询订单列表。
	// 姓名不唯一，结果可能跨多个客户，歧义判定留给调用方。
	FindOrdersByCustomerName(ctx context.Context, name string) ([]*entity.Order, error)

	// CancelOrder 取消订单
	CancelOrder(ctx context.Context, orderNumber string) error

	// UpdateAddress 更新收货地址
	UpdateAddress(ctx context.Context, orderNumber string, addr *AddressUpdate) error

	// RefundOrder 发起退款
	RefundOrder(ctx context.Context, orderNumber, reason string) error

	// AddNote 追加订单备注
	AddNote(ctx context.Context, orderNumber, note string) error
}
