package turn

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shoply-ai-cs-api/internal/application/fusion"
	"shoply-ai-cs-api/internal/application/search"
	"shoply-ai-cs-api/internal/application/verification"
	"shoply-ai-cs-api/internal/domain/entity"
	"shoply-ai-cs-api/internal/domain/repository"
	"shoply-ai-cs-api/internal/infrastructure/commerce"
	apperrors "shoply-ai-cs-api/pkg/errors"
)

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

type fakeChunkRepo struct {
	hits []*repository.ChunkHit
}

func (f *fakeChunkRepo) Search(ctx context.Context, params *repository.ChunkSearchParams) ([]*repository.ChunkHit, error) {
	return f.hits, nil
}

func (f *fakeChunkRepo) ReplaceDocument(ctx context.Context, tenantID, documentID string, chunks []*entity.EmbeddingChunk) error {
	return nil
}

func (f *fakeChunkRepo) FindByEntityValue(ctx context.Context, tenantID, kind, value string, limit int) ([]*entity.EmbeddingChunk, error) {
	return nil, nil
}

func (f *fakeChunkRepo) ListOutOfStock(ctx context.Context, tenantID string, limit int) ([]*entity.EmbeddingChunk, error) {
	return nil, nil
}

func (f *fakeChunkRepo) EnsureCollection(ctx context.Context) error { return nil }

type fakeBackend struct {
	commerce.Backend
	products map[string]*entity.Product
	orders   map[string]*entity.Order
	byEmail  map[string][]*entity.Order
	delay    time.Duration
}

func (f *fakeBackend) Kind() entity.CommerceBackendKind { return entity.BackendREST }

func (f *fakeBackend) GetProduct(ctx context.Context, sku string) (*entity.Product, error) {
	if p, ok := f.products[sku]; ok {
		return p, nil
	}
	return nil, apperrors.ErrProductNotFound
}

func (f *fakeBackend) GetOrder(ctx context.Context, orderNumber string) (*entity.Order, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if o, ok := f.orders[orderNumber]; ok {
		return o, nil
	}
	return nil, apperrors.ErrOrderNotFound
}

func (f *fakeBackend) FindOrdersByCustomer(ctx context.Context, email string) ([]*entity.Order, error) {
	return f.byEmail[email], nil
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

type fakeVerificationStore struct {
	sessions map[string]*entity.VerificationSession
}

func (f *fakeVerificationStore) Get(ctx context.Context, tenantID, conversationID string) (*entity.VerificationSession, error) {
	return f.sessions[tenantID+":"+conversationID], nil
}

func (f *fakeVerificationStore) Put(ctx context.Context, session *entity.VerificationSession, ttl time.Duration) error {
	if f.sessions == nil {
		f.sessions = make(map[string]*entity.VerificationSession)
	}
	f.sessions[session.TenantID+":"+session.ConversationID] = session
	return nil
}

func (f *fakeVerificationStore) IncrementAttempts(ctx context.Context, tenantID, conversationID string, now time.Time, window time.Duration) (int, error) {
	return 1, nil
}

func (f *fakeVerificationStore) GetAttempts(ctx context.Context, tenantID, conversationID string) (int, time.Time, error) {
	return 0, time.Time{}, nil
}

func (f *fakeVerificationStore) Delete(ctx context.Context, tenantID, conversationID string) error {
	delete(f.sessions, tenantID+":"+conversationID)
	return nil
}

func testTenant() *entity.Tenant {
	return &entity.Tenant{ID: "tenant-1", Domain: "shop.example.com", CommerceBackend: entity.BackendREST}
}

func retrievalHit(id string, similarity float64) *repository.ChunkHit {
	return &repository.ChunkHit{
		Chunk: &entity.EmbeddingChunk{
			ID:          id,
			DocumentID:  "doc-1",
			TenantID:    "tenant-1",
			Text:        "Shipping to Germany takes 3-5 business days.",
			ContentType: entity.ContentTypeFAQ,
			Title:       "Shipping FAQ",
			URL:         "https://shop.example.com/faq",
			Position:    5,
		},
		Similarity: similarity,
	}
}

func newOrchestrator(backend commerce.Backend, store *fakeVerificationStore, embedErr error, deadline time.Duration) *Orchestrator {
	engine := search.NewEngine(
		&fakeEmbedder{err: embedErr},
		&fakeChunkRepo{hits: []*repository.ChunkHit{retrievalHit("c-1", 0.9)}},
		search.NewScorer(180),
		search.NewAssembler(search.DefaultAssemblerConfig()),
	)
	resolver := &fakeResolver{backend: backend}
	fusionSvc := fusion.NewService(resolver, nil, &fakeChunkRepo{}, time.Minute, 5)
	verificationSvc := verification.NewService(store, resolver, verification.DefaultConfig())
	return NewOrchestrator(engine, fusionSvc, verificationSvc, deadline)
}

func fullSessionStore() *fakeVerificationStore {
	session := entity.NewVerificationSession("tenant-1", "conv-1")
	session.Level = entity.VerificationFull
	session.Email = "jo@example.com"
	return &fakeVerificationStore{sessions: map[string]*entity.VerificationSession{
		"tenant-1:conv-1": session,
	}}
}

func TestRun_UnverifiedOrderAskGetsPromptOnly(t *testing.T) {
	backend := &fakeBackend{orders: map[string]*entity.Order{
		"100234": {OrderNumber: "100234", Status: entity.OrderShipped, CustomerEmail: "jo@example.com", PostalCode: "10115"},
	}}
	orch := newOrchestrator(backend, &fakeVerificationStore{}, nil, time.Second)

	result, err := orch.Run(context.Background(), &Input{
		Tenant:         testTenant(),
		ConversationID: "conv-1",
		Message:        "where is my order #100234",
	})
	require.NoError(t, err)

	require.NotNil(t, result.Order)
	assert.True(t, result.Order.VerificationRequired)
	assert.Nil(t, result.Order.Order)
	assert.Equal(t, verificationPrompt, result.VerificationPrompt)
	assert.Equal(t, entity.VerificationNone, result.Level)

	// 渲染结果不得出现订单内容
	rendered := result.Render()
	assert.Contains(t, rendered, "identity")
	assert.NotContains(t, rendered, "shipped")
	assert.NotContains(t, rendered, "10115")
}

func TestRun_VerifiedOrderReturned(t *testing.T) {
	backend := &fakeBackend{orders: map[string]*entity.Order{
		"100234": {OrderNumber: "100234", Status: entity.OrderShipped, Total: 59.90, Currency: "EUR"},
	}}
	orch := newOrchestrator(backend, fullSessionStore(), nil, time.Second)

	result, err := orch.Run(context.Background(), &Input{
		Tenant:         testTenant(),
		ConversationID: "conv-1",
		Message:        "where is my order #100234",
	})
	require.NoError(t, err)

	require.NotNil(t, result.Order)
	require.NotNil(t, result.Order.Order)
	assert.Equal(t, "100234", result.Order.Order.OrderNumber)
	assert.Empty(t, result.VerificationPrompt)
	assert.Equal(t, entity.VerificationFull, result.Level)
	assert.Contains(t, result.Render(), "Order #100234")
}

func TestRun_OrderOverviewWithoutNumber(t *testing.T) {
	backend := &fakeBackend{byEmail: map[string][]*entity.Order{
		"jo@example.com": {
			{OrderNumber: "100234", Status: entity.OrderShipped, CustomerEmail: "jo@example.com"},
			{OrderNumber: "100500", Status: entity.OrderPaid, CustomerEmail: "jo@example.com"},
		},
	}}
	orch := newOrchestrator(backend, fullSessionStore(), nil, time.Second)

	result, err := orch.Run(context.Background(), &Input{
		Tenant:         testTenant(),
		ConversationID: "conv-1",
		Message:        "can you show my recent orders",
	})
	require.NoError(t, err)

	require.NotNil(t, result.Order)
	require.Len(t, result.Order.Summaries, 2)
	assert.Nil(t, result.Order.Order)
	assert.Empty(t, result.VerificationPrompt)
}

func TestRun_OrderOverviewUnverifiedGetsPrompt(t *testing.T) {
	backend := &fakeBackend{byEmail: map[string][]*entity.Order{
		"jo@example.com": {{OrderNumber: "100234", Status: entity.OrderShipped}},
	}}
	orch := newOrchestrator(backend, &fakeVerificationStore{}, nil, time.Second)

	result, err := orch.Run(context.Background(), &Input{
		Tenant:         testTenant(),
		ConversationID: "conv-1",
		Message:        "where are my orders",
	})
	require.NoError(t, err)

	require.NotNil(t, result.Order)
	assert.True(t, result.Order.VerificationRequired)
	assert.Empty(t, result.Order.Summaries)
	assert.Equal(t, verificationPrompt, result.VerificationPrompt)
}

func TestRun_RetrievalAlwaysPresent(t *testing.T) {
	orch := newOrchestrator(nil, &fakeVerificationStore{}, nil, time.Second)

	result, err := orch.Run(context.Background(), &Input{
		Tenant:         testTenant(),
		ConversationID: "conv-1",
		Message:        "how long does shipping take",
	})
	require.NoError(t, err)

	require.NotNil(t, result.Retrieval)
	require.NotEmpty(t, result.Retrieval.Entries)
	assert.Contains(t, result.Render(), "Shipping FAQ")
}

func TestRun_RetrievalDegradesOnEmbedderFailure(t *testing.T) {
	orch := newOrchestrator(nil, &fakeVerificationStore{}, errors.New("embedding endpoint down"), time.Second)

	result, err := orch.Run(context.Background(), &Input{
		Tenant:         testTenant(),
		ConversationID: "conv-1",
		Message:        "how long does shipping take",
	})
	require.NoError(t, err)

	// 检索失败降级，整轮不失败
	assert.Nil(t, result.Retrieval)
	assert.Contains(t, result.Degraded, "retrieval")
}

func TestRun_SlowOrderSourceHitsDeadline(t *testing.T) {
	backend := &fakeBackend{
		orders: map[string]*entity.Order{"100234": {OrderNumber: "100234"}},
		delay:  300 * time.Millisecond,
	}
	orch := newOrchestrator(backend, fullSessionStore(), nil, 50*time.Millisecond)

	result, err := orch.Run(context.Background(), &Input{
		Tenant:         testTenant(),
		ConversationID: "conv-1",
		Message:        "where is my order #100234",
	})
	require.NoError(t, err)

	assert.Nil(t, result.Order)
	assert.Contains(t, result.Degraded, "order")
	// 检索不受慢订单源拖累
	assert.NotNil(t, result.Retrieval)
}

func TestRun_ValidatesInput(t *testing.T) {
	orch := newOrchestrator(nil, &fakeVerificationStore{}, nil, time.Second)

	_, err := orch.Run(context.Background(), nil)
	require.Error(t, err)

	_, err = orch.Run(context.Background(), &Input{Tenant: testTenant(), ConversationID: "conv-1"})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidParam, apperrors.AsAppError(err).Code)
}

func TestRun_ProductLookupRuns(t *testing.T) {
	backend := &fakeBackend{products: map[string]*entity.Product{
		"SKU-AB12": {SKU: "SKU-AB12", Name: "Aurora Desk Lamp", StockStatus: entity.StockInStock, Price: 49.90, Currency: "EUR", Source: "live"},
	}}
	orch := newOrchestrator(backend, &fakeVerificationStore{}, nil, time.Second)

	result, err := orch.Run(context.Background(), &Input{
		Tenant:         testTenant(),
		ConversationID: "conv-1",
		Message:        "is SKU-AB12 in stock?",
	})
	require.NoError(t, err)

	require.NotNil(t, result.Product)
	require.NotNil(t, result.Product.Product)
	assert.Contains(t, result.Render(), "Aurora Desk Lamp")
}
