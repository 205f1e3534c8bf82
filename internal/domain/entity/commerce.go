// Package entity 定义领域实体
package entity

import (
	"time"
)

// StockStatus 实时库存状态
type StockStatus string

const (
	StockInStock    StockStatus = "in_stock"
	StockOutOfStock StockStatus = "out_of_stock"
	StockBackorder  StockStatus = "backorder"
	StockUnknown    StockStatus = "unknown"
)

// Product 商品统一视图。无论数据来自实时商城后端还是抓取存档，
// 消费方拿到的结构一致，Source 标注来源。
type Product struct {
	SKU           string      `json:"sku"`
	Name          string      `json:"name"`
	Price         float64     `json:"price"`
	Currency      string      `json:"currency"`
	StockStatus   StockStatus `json:"stock_status"`
	StockQuantity int         `json:"stock_quantity"`
	URL           string      `json:"url,omitempty"`

	Source    string    `json:"source"` // live | stored
	FetchedAt time.Time `json:"fetched_at"`
}

// OrderStatus 订单状态
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPaid      OrderStatus = "paid"
	OrderShipped   OrderStatus = "shipped"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
	OrderRefunded  OrderStatus = "refunded"
)

// OrderLine 订单行
type OrderLine struct {
	SKU      string  `json:"sku"`
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// Order 订单视图
type Order struct {
	OrderNumber   string      `json:"order_number"`
	CustomerEmail string      `json:"customer_email"`
	CustomerName  string      `json:"customer_name,omitempty"`
	Status        OrderStatus `json:"status"`
	Total         float64     `json:"total"`
	Currency      string      `json:"currency"`
	Lines         []OrderLine `json:"lines,omitempty"`
	PostalCode    string      `json:"postal_code,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// Cancellable 检查订单当前状态是否允许取消
func (o *Order) Cancellable() bool {
	return o.Status == OrderPending || o.Status == OrderPaid
}

// AddressUpdatable 检查订单是否还能改地址（发货前）
func (o *Order) AddressUpdatable() bool {
	return o.Status == OrderPending || o.Status == OrderPaid
}

// Refundable 检查订单是否可退款
func (o *Order) Refundable() bool {
	return o.Status == OrderPaid || o.Status == OrderShipped || o.Status == OrderDelivered
}
