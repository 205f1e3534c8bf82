// Package commerce 提供商城后端接入层
package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"shoply-ai-cs-api/internal/domain/entity"
	apperrors "shoply-ai-cs-api/pkg/errors"
)

// RESTBackend 通用 JSON 商城 API 客户端。
// 约定接口形如 GET /products/{sku}、GET /orders/{number}、
// GET /orders?email=、POST /orders/{number}/cancel 等。
type RESTBackend struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewRESTBackend 创建 REST 商城客户端
func NewRESTBackend(baseURL, apiKey string, timeout time.Duration) *RESTBackend {
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	return &RESTBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

var _ Backend = (*RESTBackend)(nil)

func (b *RESTBackend) Kind() entity.CommerceBackendKind {
	return entity.BackendREST
}

type restProduct struct {
	SKU           string  `json:"sku"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	Currency      string  `json:"currency"`
	StockStatus   string  `json:"stock_status"`
	StockQuantity int     `json:"stock_quantity"`
	URL           string  `json:"url"`
}

type restOrder struct {
	OrderNumber   string    `json:"order_number"`
	CustomerEmail string    `json:"customer_email"`
	CustomerName  string    `json:"customer_name"`
	Status        string    `json:"status"`
	Total         float64   `json:"total"`
	Currency      string    `json:"currency"`
	PostalCode    string    `json:"postal_code"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	Lines         []struct {
		SKU      string  `json:"sku"`
		Name     string  `json:"name"`
		Quantity int     `json:"quantity"`
		Price    float64 `json:"price"`
	} `json:"lines"`
}

// GetProduct 按 SKU 查询商品
func (b *RESTBackend) GetProduct(ctx context.Context, sku string) (*entity.Product, error) {
	ctx, span := tracer.Start(ctx, "commerce.rest.GetProduct",
		trace.WithAttributes(attribute.String("sku", sku)))
	defer span.End()

	var raw restProduct
	if err := b.doGet(ctx, "/products/"+url.PathEscape(sku), nil, &raw); err != nil {
		span.RecordError(err)
		return nil, err
	}

	return &entity.Product{
		SKU:           raw.SKU,
		Name:          raw.Name,
		Price:         raw.Price,
		Currency:      raw.Currency,
		StockStatus:   parseStockStatus(raw.StockStatus),
		StockQuantity: raw.StockQuantity,
		URL:           raw.URL,
		Source:        "live",
		FetchedAt:     time.Now(),
	}, nil
}

// GetOrder 按订单号查询订单
func (b *RESTBackend) GetOrder(ctx context.Context, orderNumber string) (*entity.Order, error) {
	ctx, span := tracer.Start(ctx, "commerce.rest.GetOrder",
		trace.WithAttributes(attribute.String("order_number", orderNumber)))
	defer span.End()

	var raw restOrder
	if err := b.doGet(ctx, "/orders/"+url.PathEscape(orderNumber), nil, &raw); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return convertOrder(&raw), nil
}

// FindOrdersByCustomer 按客户邮箱查询订单列表
func (b *RESTBackend) FindOrdersByCustomer(ctx context.Context, email string) ([]*entity.Order, error) {
	ctx, span := tracer.Start(ctx, "commerce.rest.FindOrdersByCustomer")
	defer span.End()

	var raws []restOrder
	query := url.Values{"email": []string{email}}
	if err := b.doGet(ctx, "/orders", query, &raws); err != nil {
		span.RecordError(err)
		return nil, err
	}

	orders := make([]*entity.Order, 0, len(raws))
	for i := range raws {
		orders = append(orders, convertOrder(&raws[i]))
	}
	return orders, nil
}

// FindOrdersByCustomerName 按客户姓名查询订单列表
func (b *RESTBackend) FindOrdersByCustomerName(ctx context.Context, name string) ([]*entity.Order, error) {
	ctx, span := tracer.Start(ctx, "commerce.rest.FindOrdersByCustomerName")
	defer span.End()

	var raws []restOrder
	query := url.Values{"customer_name": []string{name}}
	if err := b.doGet(ctx, "/orders", query, &raws); err != nil {
		span.RecordError(err)
		return nil, err
	}

	orders := make([]*entity.Order, 0, len(raws))
	for i := range raws {
		orders = append(orders, convertOrder(&raws[i]))
	}
	return orders, nil
}

// CancelOrder 取消订单
func (b *RESTBackend) CancelOrder(ctx context.Context, orderNumber string) error {
	ctx, span := tracer.Start(ctx, "commerce.rest.CancelOrder",
		trace.WithAttributes(attribute.String("order_number", orderNumber)))
	defer span.End()

	return b.doPost(ctx, "/orders/"+url.PathEscape(orderNumber)+"/cancel", nil)
}

// UpdateAddress 更新收货地址
func (b *RESTBackend) UpdateAddress(ctx context.Context, orderNumber string, addr *AddressUpdate) error {
	ctx, span := tracer.Start(ctx, "commerce.rest.UpdateAddress",
		trace.WithAttributes(attribute.String("order_number", orderNumber)))
	defer span.End()

	return b.doPost(ctx, "/orders/"+url.PathEscape(orderNumber)+"/address", addr)
}

// RefundOrder 发起退款
func (b *RESTBackend) RefundOrder(ctx context.Context, orderNumber, reason string) error {
	ctx, span := tracer.Start(ctx, "commerce.rest.RefundOrder",
		trace.WithAttributes(attribute.String("order_number", orderNumber)))
	defer span.End()

	return b.doPost(ctx, "/orders/"+url.PathEscape(orderNumber)+"/refund",
		map[string]string{"reason": reason})
}

// AddNote 追加订单备注
func (b *RESTBackend) AddNote(ctx context.Context, orderNumber, note string) error {
	ctx, span := tracer.Start(ctx, "commerce.rest.AddNote",
		trace.WithAttributes(attribute.String("order_number", orderNumber)))
	defer span.End()

	return b.doPost(ctx, "/orders/"+url.PathEscape(orderNumber)+"/notes",
		map[string]string{"note": note})
}

func (b *RESTBackend) doGet(ctx context.Context, path string, query url.Values, out interface{}) error {
	if b.baseURL == "" {
		return apperrors.ErrSourceUnavailable.WithDetail("commerce base url is empty")
	}

	endpoint := b.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create commerce request: %w", err)
	}
	b.setHeaders(req)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return apperrors.ErrSourceUnavailable.WithError(err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp.StatusCode); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode commerce response: %w", err)
	}
	return nil
}

func (b *RESTBackend) doPost(ctx context.Context, path string, body interface{}) error {
	if b.baseURL == "" {
		return apperrors.ErrSourceUnavailable.WithDetail("commerce base url is empty")
	}

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal commerce request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create commerce request: %w", err)
	}
	b.setHeaders(req)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return apperrors.ErrSourceUnavailable.WithError(err)
	}
	defer resp.Body.Close()

	return checkStatus(resp.StatusCode)
}

func (b *RESTBackend) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}
}

func checkStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound:
		return apperrors.ErrNotFound
	case status == http.StatusForbidden || status == http.StatusUnauthorized:
		return apperrors.ErrSourceUnavailable.WithDetail(fmt.Sprintf("commerce auth failed: status=%d", status))
	default:
		return apperrors.ErrSourceUnavailable.WithDetail(fmt.Sprintf("commerce request failed: status=%d", status))
	}
}

func convertOrder(raw *restOrder) *entity.Order {
	order := &entity.Order{
		OrderNumber:   raw.OrderNumber,
		CustomerEmail: raw.CustomerEmail,
		CustomerName:  raw.CustomerName,
		Status:        entity.OrderStatus(raw.Status),
		Total:         raw.Total,
		Currency:      raw.Currency,
		PostalCode:    raw.PostalCode,
		CreatedAt:     raw.CreatedAt,
		UpdatedAt:     raw.UpdatedAt,
	}
	for _, line := range raw.Lines {
		order.Lines = append(order.Lines, entity.OrderLine{
			SKU:      line.SKU,
			Name:     line.Name,
			Quantity: line.Quantity,
			Price:    line.Price,
		})
	}
	return order
}

func parseStockStatus(s string) entity.StockStatus {
	switch entity.StockStatus(s) {
	case entity.StockInStock, entity.StockOutOfStock, entity.StockBackorder:
		return entity.StockStatus(s)
	default:
		return entity.StockUnknown
	}
}
