package fusion

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"shoply-ai-cs-api/internal/domain/entity"
	"shoply-ai-cs-api/internal/domain/repository"
	"shoply-ai-cs-api/internal/infrastructure/commerce"
	rediscache "shoply-ai-cs-api/internal/infrastructure/persistence/redis"
	apperrors "shoply-ai-cs-api/pkg/errors"
	"shoply-ai-cs-api/pkg/logger"
	"shoply-ai-cs-api/pkg/metrics"
)

var tracer = otel.Tracer("fusion")

// BackendResolver 按租户解析商城后端
type BackendResolver interface {
	ForTenant(tenant *entity.Tenant) commerce.Backend
}

// ProductAnswer 商品融合结果。Product 为空且 OutOfStock 非空时，
// 表示未定位到具体商品但给出缺货清单。
type ProductAnswer struct {
	Query      *ProductQuery   `json:"query"`
	Product    *entity.Product `json:"product,omitempty"`
	Confidence float64         `json:"confidence"`

	OutOfStock []*entity.Product `json:"out_of_stock,omitempty"`
}

// OrderAnswer 订单融合结果。验证级别不足时只带验证提示，绝不带订单内容。
type OrderAnswer struct {
	Order     *entity.Order   `json:"order,omitempty"`
	Summaries []*entity.Order `json:"summaries,omitempty"`

	VerificationRequired bool                     `json:"verification_required"`
	RequiredLevel        entity.VerificationLevel `json:"required_level,omitempty"`
}

// Service 商品与订单数据融合服务。
// 实时后端优先，经缓存读穿；不可用或未配置时回退抓取存档。
type Service struct {
	resolver BackendResolver
	cache    *rediscache.Cache // 可为空，为空时直连后端
	chunks   repository.ChunkRepository

	cacheTTL      time.Duration
	maxOutOfStock int
}

// NewService 创建融合服务
func NewService(resolver BackendResolver, cache *rediscache.Cache, chunks repository.ChunkRepository, cacheTTL time.Duration, maxOutOfStock int) *Service {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	if maxOutOfStock <= 0 {
		maxOutOfStock = 5
	}
	return &Service{
		resolver:      resolver,
		cache:         cache,
		chunks:        chunks,
		cacheTTL:      cacheTTL,
		maxOutOfStock: maxOutOfStock,
	}
}

// LookupProduct 按用户输入定位商品。识别不出定位目标且无库存意图时返回 (nil, nil)。
func (s *Service) LookupProduct(ctx context.Context, tenant *entity.Tenant, input string) (*ProductAnswer, error) {
	if tenant == nil {
		return nil, apperrors.ErrTenantNotFound
	}

	q := IdentifyProduct(input)
	if !q.HasTarget() && !q.StockIntent {
		return nil, nil
	}

	ctx, span := tracer.Start(ctx, "fusion.LookupProduct",
		trace.WithAttributes(
			attribute.String("tenant_id", tenant.ID),
			attribute.Float64("confidence", q.Confidence),
		))
	defer span.End()

	answer := &ProductAnswer{Query: q, Confidence: q.Confidence}

	switch {
	case q.SKU != "":
		s.lookupBySKU(ctx, tenant, q.SKU, answer)
	case q.QuotedName != "":
		s.lookupByName(ctx, tenant, q.QuotedName, answer)
	case len(q.Terms) > 0:
		s.lookupByName(ctx, tenant, strings.Join(q.Terms, " "), answer)
	}

	// 未定位到商品的库存询问：给出缺货清单兜底
	if answer.Product == nil && q.StockIntent {
		oos, err := s.listOutOfStock(ctx, tenant.ID)
		if err != nil {
			span.RecordError(err)
			logger.Warn(ctx, "out of stock listing failed", "error", err)
		}
		answer.OutOfStock = oos
	}

	status := "miss"
	source := "none"
	if answer.Product != nil {
		status = "hit"
		source = answer.Product.Source
	} else if len(answer.OutOfStock) > 0 {
		status = "oos_listing"
		source = "stored"
	}
	metrics.FusionLookupTotal.WithLabelValues(tenant.ID, source, status).Inc()
	span.SetAttributes(attribute.String("fusion.status", status))

	return answer, nil
}

// lookupBySKU 先查实时后端（缓存读穿），故障或未配置时回退存档；
// 实时侧明确 404 视为权威答案，不回退
func (s *Service) lookupBySKU(ctx context.Context, tenant *entity.Tenant, sku string, answer *ProductAnswer) {
	backend := s.resolver.ForTenant(tenant)
	if backend != nil && backend.Kind() != entity.BackendNone {
		start := time.Now()
		product, err := s.liveProduct(ctx, backend, tenant.ID, sku)
		metrics.FusionLookupDuration.WithLabelValues(tenant.ID, "live").Observe(time.Since(start).Seconds())
		if err == nil && product != nil {
			answer.Product = product
			return
		}
		if err != nil {
			// 实时侧权威 404 不回退存档：已下架的商品不得从抓取数据复活
			if appErr := apperrors.AsAppError(err); appErr != nil &&
				(appErr.Code == apperrors.CodeNotFound || appErr.Code == apperrors.CodeProductNotFound) {
				return
			}
			logger.Warn(ctx, "live product lookup failed, falling back to stored",
				"sku", sku, "error", err)
		}
	}

	if s.chunks == nil {
		return
	}
	chunks, err := s.chunks.FindByEntityValue(ctx, tenant.ID, "sku", sku, 3)
	if err != nil {
		logger.Warn(ctx, "stored product lookup failed", "sku", sku, "error", err)
		return
	}
	if len(chunks) > 0 {
		answer.Product = productFromChunk(chunks[0], sku)
	}
}

// lookupByName 按商品名查存档。实时后端不提供名称检索。
func (s *Service) lookupByName(ctx context.Context, tenant *entity.Tenant, name string, answer *ProductAnswer) {
	if s.chunks == nil {
		return
	}
	chunks, err := s.chunks.FindByEntityValue(ctx, tenant.ID, "product_name", name, 5)
	if err != nil {
		logger.Warn(ctx, "stored product lookup failed", "name", name, "error", err)
		return
	}
	if len(chunks) == 0 {
		return
	}
	// 多文档命中时取文档 ID 最小者，保证同一输入结果可复现
	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].DocumentID < chunks[j].DocumentID
	})
	answer.Product = productFromChunk(chunks[0], "")
	if countDocuments(chunks) > 1 {
		// 命中多个商品，定位不唯一，置信度降档
		answer.Confidence = ConfidenceTerms * 0.9
	}
}

// liveProduct 经缓存读穿查询实时商品
func (s *Service) liveProduct(ctx context.Context, backend commerce.Backend, tenantID, sku string) (*entity.Product, error) {
	if s.cache == nil {
		return backend.GetProduct(ctx, sku)
	}

	key := rediscache.BuildProductCacheKey(tenantID, sku)
	data, err := s.cache.GetOrLoadSafe(ctx, key, s.cacheTTL, func() (interface{}, error) {
		return backend.GetProduct(ctx, sku)
	})
	if err != nil {
		return nil, err
	}

	var product entity.Product
	if err := json.Unmarshal(data, &product); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached product: %w", err)
	}
	return &product, nil
}

func (s *Service) listOutOfStock(ctx context.Context, tenantID string) ([]*entity.Product, error) {
	if s.chunks == nil {
		return nil, nil
	}
	chunks, err := s.chunks.ListOutOfStock(ctx, tenantID, s.maxOutOfStock)
	if err != nil {
		return nil, err
	}
	out := make([]*entity.Product, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, productFromChunk(c, ""))
	}
	return out, nil
}

// LookupOrder 按订单号取完整订单。需要 full 验证级别，不足时只返回验证提示。
func (s *Service) LookupOrder(ctx context.Context, tenant *entity.Tenant, session *entity.VerificationSession, orderNumber string) (*OrderAnswer, error) {
	if tenant == nil {
		return nil, apperrors.ErrTenantNotFound
	}
	if orderNumber == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("order number is required")
	}

	ctx, span := tracer.Start(ctx, "fusion.LookupOrder",
		trace.WithAttributes(attribute.String("tenant_id", tenant.ID)))
	defer span.End()

	if session == nil || !session.Level.AtLeast(entity.VerificationFull) {
		span.SetAttributes(attribute.Bool("verification_required", true))
		return &OrderAnswer{
			VerificationRequired: true,
			RequiredLevel:        entity.VerificationFull,
		}, nil
	}

	backend := s.resolver.ForTenant(tenant)
	if backend == nil || backend.Kind() == entity.BackendNone {
		return nil, apperrors.ErrSourceUnavailable.WithDetail("tenant has no commerce backend configured")
	}

	start := time.Now()
	order, err := s.liveOrder(ctx, backend, tenant.ID, orderNumber)
	metrics.FusionLookupDuration.WithLabelValues(tenant.ID, "live").Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		metrics.FusionLookupTotal.WithLabelValues(tenant.ID, "live", "error").Inc()
		return nil, err
	}
	if order == nil {
		metrics.FusionLookupTotal.WithLabelValues(tenant.ID, "live", "miss").Inc()
		return nil, apperrors.ErrOrderNotFound
	}

	metrics.FusionLookupTotal.WithLabelValues(tenant.ID, "live", "hit").Inc()
	return &OrderAnswer{Order: order}, nil
}

// SearchOrders 按客户邮箱列订单摘要。需要 partial 级别；摘要不含行项目与地址。
func (s *Service) SearchOrders(ctx context.Context, tenant *entity.Tenant, session *entity.VerificationSession, email string) (*OrderAnswer, error) {
	if tenant == nil {
		return nil, apperrors.ErrTenantNotFound
	}

	ctx, span := tracer.Start(ctx, "fusion.SearchOrders",
		trace.WithAttributes(attribute.String("tenant_id", tenant.ID)))
	defer span.End()

	// 验证门槛先于参数校验：未验证会话只收到验证提示
	if session == nil || !session.Level.AtLeast(entity.VerificationPartial) {
		span.SetAttributes(attribute.Bool("verification_required", true))
		return &OrderAnswer{
			VerificationRequired: true,
			RequiredLevel:        entity.VerificationPartial,
		}, nil
	}
	if email == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("customer email is required")
	}

	backend := s.resolver.ForTenant(tenant)
	if backend == nil || backend.Kind() == entity.BackendNone {
		return nil, apperrors.ErrSourceUnavailable.WithDetail("tenant has no commerce backend configured")
	}

	orders, err := backend.FindOrdersByCustomer(ctx, email)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	summaries := make([]*entity.Order, 0, len(orders))
	for _, o := range orders {
		summaries = append(summaries, summarizeOrder(o))
	}
	return &OrderAnswer{Summaries: summaries}, nil
}

// SearchOrdersByName 按客户姓名列订单摘要。需要 partial 级别。
// 命中的订单跨多个客户时绝不挑选，返回歧义错误要求调用方追问。
func (s *Service) SearchOrdersByName(ctx context.Context, tenant *entity.Tenant, session *entity.VerificationSession, name string) (*OrderAnswer, error) {
	if tenant == nil {
		return nil, apperrors.ErrTenantNotFound
	}

	ctx, span := tracer.Start(ctx, "fusion.SearchOrdersByName",
		trace.WithAttributes(attribute.String("tenant_id", tenant.ID)))
	defer span.End()

	if session == nil || !session.Level.AtLeast(entity.VerificationPartial) {
		span.SetAttributes(attribute.Bool("verification_required", true))
		return &OrderAnswer{
			VerificationRequired: true,
			RequiredLevel:        entity.VerificationPartial,
		}, nil
	}
	if strings.TrimSpace(name) == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("customer name is required")
	}

	backend := s.resolver.ForTenant(tenant)
	if backend == nil || backend.Kind() == entity.BackendNone {
		return nil, apperrors.ErrSourceUnavailable.WithDetail("tenant has no commerce backend configured")
	}

	orders, err := backend.FindOrdersByCustomerName(ctx, name)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if countCustomers(orders) > 1 {
		span.SetAttributes(attribute.Bool("ambiguous", true))
		return nil, apperrors.ErrAmbiguousIdentity.WithDetail("multiple customers match that name, ask for an order number or email")
	}

	summaries := make([]*entity.Order, 0, len(orders))
	for _, o := range orders {
		summaries = append(summaries, summarizeOrder(o))
	}
	return &OrderAnswer{Summaries: summaries}, nil
}

// countCustomers 统计订单列表覆盖的客户数（按邮箱归并）
func countCustomers(orders []*entity.Order) int {
	seen := make(map[string]struct{}, len(orders))
	for _, o := range orders {
		if o == nil {
			continue
		}
		seen[strings.ToLower(strings.TrimSpace(o.CustomerEmail))] = struct{}{}
	}
	return len(seen)
}

// liveOrder 经缓存读穿查询实时订单
func (s *Service) liveOrder(ctx context.Context, backend commerce.Backend, tenantID, orderNumber string) (*entity.Order, error) {
	if s.cache == nil {
		return backend.GetOrder(ctx, orderNumber)
	}

	key := rediscache.BuildOrderCacheKey(tenantID, orderNumber)
	data, err := s.cache.GetOrLoadSafe(ctx, key, s.cacheTTL, func() (interface{}, error) {
		return backend.GetOrder(ctx, orderNumber)
	})
	if err != nil {
		return nil, err
	}

	var order entity.Order
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached order: %w", err)
	}
	return &order, nil
}

// summarizeOrder 剥离行项目、收件人与地址，只留可对 partial 级别展示的摘要
func summarizeOrder(o *entity.Order) *entity.Order {
	if o == nil {
		return nil
	}
	return &entity.Order{
		OrderNumber: o.OrderNumber,
		Status:      o.Status,
		Total:       o.Total,
		Currency:    o.Currency,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
}

// productFromChunk 把存档商品分块降级为统一商品视图
func productFromChunk(chunk *entity.EmbeddingChunk, sku string) *entity.Product {
	if chunk == nil {
		return nil
	}
	if sku == "" {
		if values := chunk.EntityValues("sku"); len(values) > 0 {
			sku = values[0]
		}
	}
	name := chunk.Title
	if values := chunk.EntityValues("product_name"); name == "" && len(values) > 0 {
		name = values[0]
	}

	p := &entity.Product{
		SKU:         sku,
		Name:        name,
		URL:         chunk.URL,
		StockStatus: stockFromAvailability(chunk.Availability),
		Source:      "stored",
		FetchedAt:   chunk.IndexedAt,
	}
	if chunk.PriceRange != nil {
		p.Price = chunk.PriceRange.Min
		p.Currency = chunk.PriceRange.Currency
	}
	return p
}

func stockFromAvailability(a entity.Availability) entity.StockStatus {
	switch a {
	case entity.AvailabilityInStock:
		return entity.StockInStock
	case entity.AvailabilityOutOfStock:
		return entity.StockOutOfStock
	case entity.AvailabilityPreorder:
		return entity.StockBackorder
	default:
		return entity.StockUnknown
	}
}

func countDocuments(chunks []*entity.EmbeddingChunk) int {
	seen := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		seen[c.DocumentID] = true
	}
	return len(seen)
}
