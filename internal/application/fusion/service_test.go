package fusion

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shoply-ai-cs-api/internal/domain/entity"
	"shoply-ai-cs-api/internal/domain/repository"
	"shoply-ai-cs-api/internal/infrastructure/commerce"
	apperrors "shoply-ai-cs-api/pkg/errors"
)

type fakeChunkRepo struct {
	chunks []*entity.EmbeddingChunk
}

func (f *fakeChunkRepo) Search(ctx context.Context, params *repository.ChunkSearchParams) ([]*repository.ChunkHit, error) {
	return nil, nil
}

func (f *fakeChunkRepo) ReplaceDocument(ctx context.Context, tenantID, documentID string, chunks []*entity.EmbeddingChunk) error {
	return nil
}

func (f *fakeChunkRepo) FindByEntityValue(ctx context.Context, tenantID, kind, value string, limit int) ([]*entity.EmbeddingChunk, error) {
	var out []*entity.EmbeddingChunk
	for _, c := range f.chunks {
		if c.TenantID != tenantID || len(out) >= limit {
			continue
		}
		for _, v := range c.EntityValues(kind) {
			if v == value {
				out = append(out, c)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeChunkRepo) ListOutOfStock(ctx context.Context, tenantID string, limit int) ([]*entity.EmbeddingChunk, error) {
	var out []*entity.EmbeddingChunk
	for _, c := range f.chunks {
		if c.TenantID == tenantID && c.Availability == entity.AvailabilityOutOfStock && len(out) < limit {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeChunkRepo) EnsureCollection(ctx context.Context) error { return nil }

type fakeBackend struct {
	commerce.Backend
	products   map[string]*entity.Product
	productErr error
	orders     map[string]*entity.Order
	byEmail    map[string][]*entity.Order
	byName     map[string][]*entity.Order
}

func (f *fakeBackend) Kind() entity.CommerceBackendKind { return entity.BackendREST }

func (f *fakeBackend) GetProduct(ctx context.Context, sku string) (*entity.Product, error) {
	if f.productErr != nil {
		return nil, f.productErr
	}
	if p, ok := f.products[sku]; ok {
		return p, nil
	}
	return nil, apperrors.ErrProductNotFound
}

func (f *fakeBackend) GetOrder(ctx context.Context, orderNumber string) (*entity.Order, error) {
	if o, ok := f.orders[orderNumber]; ok {
		return o, nil
	}
	return nil, apperrors.ErrOrderNotFound
}

func (f *fakeBackend) FindOrdersByCustomer(ctx context.Context, email string) ([]*entity.Order, error) {
	return f.byEmail[email], nil
}

func (f *fakeBackend) FindOrdersByCustomerName(ctx context.Context, name string) ([]*entity.Order, error) {
	return f.byName[name], nil
}

type fakeResolver struct {
	backend commerce.Backend
}

func (f *fakeResolver) ForTenant(tenant *entity.Tenant) commerce.Backend {
	if f.backend == nil {
		return commerce.NewNoneBackend()
	}
	return f.backend
}

func testTenant() *entity.Tenant {
	return &entity.Tenant{
		ID:              "tenant-1",
		Name:            "Acme Shop",
		Domain:          "shop.example.com",
		CommerceBackend: entity.BackendREST,
		Active:          true,
	}
}

func productChunk(id, docID, sku, name string, availability entity.Availability) *entity.EmbeddingChunk {
	return &entity.EmbeddingChunk{
		ID:          id,
		DocumentID:  docID,
		TenantID:    "tenant-1",
		Text:        name + " product page",
		ContentType: entity.ContentTypeProduct,
		Title:       name,
		URL:         "https://shop.example.com/p/" + docID,
		Entities: map[string][]string{
			"sku":          {sku},
			"product_name": {name},
		},
		PriceRange:   &entity.PriceRange{Min: 19.99, Max: 19.99, Currency: "EUR"},
		Availability: availability,
		IndexedAt:    time.Now(),
	}
}

func verifiedSession(level entity.VerificationLevel) *entity.VerificationSession {
	s := entity.NewVerificationSession("tenant-1", "conv-1")
	s.Level = level
	return s
}

func TestLookupProduct_LiveBySKU(t *testing.T) {
	backend := &fakeBackend{products: map[string]*entity.Product{
		"SKU-AB12": {SKU: "SKU-AB12", Name: "Aurora Desk Lamp", Price: 49.90, StockStatus: entity.StockInStock, Source: "live"},
	}}
	svc := NewService(&fakeResolver{backend: backend}, nil, &fakeChunkRepo{}, time.Minute, 5)

	answer, err := svc.LookupProduct(context.Background(), testTenant(), "stock for SKU-AB12")
	require.NoError(t, err)
	require.NotNil(t, answer)
	require.NotNil(t, answer.Product)
	assert.Equal(t, "live", answer.Product.Source)
	assert.Equal(t, entity.StockInStock, answer.Product.StockStatus)
	assert.Equal(t, ConfidenceSKU, answer.Confidence)
}

func TestLookupProduct_StoredFallback(t *testing.T) {
	// 实时后端故障时回退存档
	backend := &fakeBackend{productErr: apperrors.ErrSourceUnavailable}
	repo := &fakeChunkRepo{chunks: []*entity.EmbeddingChunk{
		productChunk("c-1", "doc-1", "SKU-AB12", "Aurora Desk Lamp", entity.AvailabilityInStock),
	}}
	svc := NewService(&fakeResolver{backend: backend}, nil, repo, time.Minute, 5)

	answer, err := svc.LookupProduct(context.Background(), testTenant(), "price of SKU-AB12")
	require.NoError(t, err)
	require.NotNil(t, answer.Product)
	assert.Equal(t, "stored", answer.Product.Source)
	assert.Equal(t, "SKU-AB12", answer.Product.SKU)
	assert.Equal(t, 19.99, answer.Product.Price)
	assert.Equal(t, entity.StockInStock, answer.Product.StockStatus)
}

func TestLookupProduct_LiveNotFoundIsAuthoritative(t *testing.T) {
	// 实时侧明确 404：商品已下架，存档里的旧页面不得复活
	backend := &fakeBackend{products: map[string]*entity.Product{}}
	repo := &fakeChunkRepo{chunks: []*entity.EmbeddingChunk{
		productChunk("c-1", "doc-1", "SKU-AB12", "Aurora Desk Lamp", entity.AvailabilityInStock),
	}}
	svc := NewService(&fakeResolver{backend: backend}, nil, repo, time.Minute, 5)

	answer, err := svc.LookupProduct(context.Background(), testTenant(), "price of SKU-AB12")
	require.NoError(t, err)
	assert.Nil(t, answer.Product)
}

func TestLookupProduct_NoBackendUsesStored(t *testing.T) {
	repo := &fakeChunkRepo{chunks: []*entity.EmbeddingChunk{
		productChunk("c-1", "doc-1", "SKU-AB12", "Aurora Desk Lamp", entity.AvailabilityOutOfStock),
	}}
	svc := NewService(&fakeResolver{}, nil, repo, time.Minute, 5)

	answer, err := svc.LookupProduct(context.Background(), testTenant(), "stock for SKU-AB12")
	require.NoError(t, err)
	require.NotNil(t, answer.Product)
	assert.Equal(t, "stored", answer.Product.Source)
	assert.Equal(t, entity.StockOutOfStock, answer.Product.StockStatus)
}

func TestLookupProduct_QuotedName(t *testing.T) {
	repo := &fakeChunkRepo{chunks: []*entity.EmbeddingChunk{
		productChunk("c-1", "doc-1", "SKU-AB12", "Aurora Desk Lamp", entity.AvailabilityInStock),
	}}
	svc := NewService(&fakeResolver{}, nil, repo, time.Minute, 5)

	answer, err := svc.LookupProduct(context.Background(), testTenant(), `do you sell the "Aurora Desk Lamp"`)
	require.NoError(t, err)
	require.NotNil(t, answer.Product)
	assert.Equal(t, "Aurora Desk Lamp", answer.Product.Name)
	assert.Equal(t, ConfidenceQuoted, answer.Confidence)
}

func TestLookupProduct_OutOfStockListing(t *testing.T) {
	repo := &fakeChunkRepo{chunks: []*entity.EmbeddingChunk{
		productChunk("c-1", "doc-1", "SKU-A1", "Lamp", entity.AvailabilityOutOfStock),
		productChunk("c-2", "doc-2", "SKU-B2", "Mug", entity.AvailabilityOutOfStock),
		productChunk("c-3", "doc-3", "SKU-C3", "Shelf", entity.AvailabilityInStock),
	}}
	svc := NewService(&fakeResolver{}, nil, repo, time.Minute, 5)

	// 库存询问但没能定位具体商品
	answer, err := svc.LookupProduct(context.Background(), testTenant(), "is anything sold out right now")
	require.NoError(t, err)
	require.NotNil(t, answer)
	assert.Nil(t, answer.Product)
	require.Len(t, answer.OutOfStock, 2)
	assert.Equal(t, entity.StockOutOfStock, answer.OutOfStock[0].StockStatus)
}

func TestLookupProduct_NoIntent(t *testing.T) {
	svc := NewService(&fakeResolver{}, nil, &fakeChunkRepo{}, time.Minute, 5)

	answer, err := svc.LookupProduct(context.Background(), testTenant(), "")
	require.NoError(t, err)
	assert.Nil(t, answer)
}

func TestLookupOrder_RequiresFullVerification(t *testing.T) {
	backend := &fakeBackend{orders: map[string]*entity.Order{
		"100234": {OrderNumber: "100234", Status: entity.OrderShipped, CustomerEmail: "jo@example.com"},
	}}
	svc := NewService(&fakeResolver{backend: backend}, nil, &fakeChunkRepo{}, time.Minute, 5)

	// 未验证与 partial 均不得返回订单内容
	for _, level := range []entity.VerificationLevel{entity.VerificationNone, entity.VerificationPartial} {
		answer, err := svc.LookupOrder(context.Background(), testTenant(), verifiedSession(level), "100234")
		require.NoError(t, err)
		assert.True(t, answer.VerificationRequired)
		assert.Equal(t, entity.VerificationFull, answer.RequiredLevel)
		assert.Nil(t, answer.Order)
	}

	answer, err := svc.LookupOrder(context.Background(), testTenant(), verifiedSession(entity.VerificationFull), "100234")
	require.NoError(t, err)
	assert.False(t, answer.VerificationRequired)
	require.NotNil(t, answer.Order)
	assert.Equal(t, "100234", answer.Order.OrderNumber)
}

func TestLookupOrder_NilSession(t *testing.T) {
	svc := NewService(&fakeResolver{}, nil, &fakeChunkRepo{}, time.Minute, 5)

	answer, err := svc.LookupOrder(context.Background(), testTenant(), nil, "100234")
	require.NoError(t, err)
	assert.True(t, answer.VerificationRequired)
	assert.Nil(t, answer.Order)
}

func TestSearchOrders_PartialSufficient(t *testing.T) {
	backend := &fakeBackend{byEmail: map[string][]*entity.Order{
		"jo@example.com": {
			{
				OrderNumber:   "100234",
				CustomerEmail: "jo@example.com",
				CustomerName:  "Jo Doe",
				Status:        entity.OrderShipped,
				Total:         59.90,
				Currency:      "EUR",
				Lines:         []entity.OrderLine{{SKU: "SKU-AB12", Name: "Lamp", Quantity: 1, Price: 59.90}},
				PostalCode:    "10115",
			},
		},
	}}
	svc := NewService(&fakeResolver{backend: backend}, nil, &fakeChunkRepo{}, time.Minute, 5)

	answer, err := svc.SearchOrders(context.Background(), testTenant(), verifiedSession(entity.VerificationPartial), "jo@example.com")
	require.NoError(t, err)
	require.Len(t, answer.Summaries, 1)

	// 摘要不得携带行项目、姓名、邮编
	summary := answer.Summaries[0]
	assert.Equal(t, "100234", summary.OrderNumber)
	assert.Equal(t, entity.OrderShipped, summary.Status)
	assert.Empty(t, summary.Lines)
	assert.Empty(t, summary.CustomerName)
	assert.Empty(t, summary.CustomerEmail)
	assert.Empty(t, summary.PostalCode)
}

func TestSearchOrders_RequiresPartial(t *testing.T) {
	svc := NewService(&fakeResolver{}, nil, &fakeChunkRepo{}, time.Minute, 5)

	answer, err := svc.SearchOrders(context.Background(), testTenant(), verifiedSession(entity.VerificationNone), "jo@example.com")
	require.NoError(t, err)
	assert.True(t, answer.VerificationRequired)
	assert.Equal(t, entity.VerificationPartial, answer.RequiredLevel)
	assert.Empty(t, answer.Summaries)
}

func TestSearchOrdersByName_SingleCustomer(t *testing.T) {
	backend := &fakeBackend{byName: map[string][]*entity.Order{
		"Jo Doe": {
			{OrderNumber: "100234", CustomerEmail: "jo@example.com", Status: entity.OrderShipped},
			{OrderNumber: "100500", CustomerEmail: "jo@example.com", Status: entity.OrderPaid},
		},
	}}
	svc := NewService(&fakeResolver{backend: backend}, nil, &fakeChunkRepo{}, time.Minute, 5)

	answer, err := svc.SearchOrdersByName(context.Background(), testTenant(), verifiedSession(entity.VerificationPartial), "Jo Doe")
	require.NoError(t, err)
	require.Len(t, answer.Summaries, 2)
	assert.Equal(t, "100234", answer.Summaries[0].OrderNumber)
}

func TestSearchOrdersByName_AmbiguousAcrossCustomers(t *testing.T) {
	// 同名不同客户：绝不自动挑选，返回歧义让对话侧追问
	backend := &fakeBackend{byName: map[string][]*entity.Order{
		"Jo Doe": {
			{OrderNumber: "100234", CustomerEmail: "jo@example.com"},
			{OrderNumber: "200100", CustomerEmail: "jo.doe@other.net"},
		},
	}}
	svc := NewService(&fakeResolver{backend: backend}, nil, &fakeChunkRepo{}, time.Minute, 5)

	_, err := svc.SearchOrdersByName(context.Background(), testTenant(), verifiedSession(entity.VerificationPartial), "Jo Doe")
	require.Error(t, err)
	appErr := apperrors.AsAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.CodeAmbiguousIdentity, appErr.Code)
}

func TestSearchOrdersByName_RequiresPartial(t *testing.T) {
	svc := NewService(&fakeResolver{}, nil, &fakeChunkRepo{}, time.Minute, 5)

	answer, err := svc.SearchOrdersByName(context.Background(), testTenant(), nil, "Jo Doe")
	require.NoError(t, err)
	assert.True(t, answer.VerificationRequired)
	assert.Equal(t, entity.VerificationPartial, answer.RequiredLevel)
}

func TestSearchOrders_NoBackend(t *testing.T) {
	svc := NewService(&fakeResolver{}, nil, &fakeChunkRepo{}, time.Minute, 5)

	_, err := svc.SearchOrders(context.Background(), testTenant(), verifiedSession(entity.VerificationPartial), "jo@example.com")
	require.Error(t, err)
	appErr := apperrors.AsAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.CodeSourceUnavailable, appErr.Code)
}
