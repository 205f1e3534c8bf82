package ingest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shoply-ai-cs-api/internal/domain/entity"
	"shoply-ai-cs-api/internal/domain/repository"
	"shoply-ai-cs-api/internal/infrastructure/messaging"
)

type fakeEmbedder struct {
	calls [][]string
	err   error
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, texts)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

type fakeChunkRepo struct {
	replaced map[string][]*entity.EmbeddingChunk
}

func newFakeChunkRepo() *fakeChunkRepo {
	return &fakeChunkRepo{replaced: make(map[string][]*entity.EmbeddingChunk)}
}

func (f *fakeChunkRepo) Search(ctx context.Context, params *repository.ChunkSearchParams) ([]*repository.ChunkHit, error) {
	return nil, nil
}

func (f *fakeChunkRepo) ReplaceDocument(ctx context.Context, tenantID, documentID string, chunks []*entity.EmbeddingChunk) error {
	f.replaced[documentID] = chunks
	return nil
}

func (f *fakeChunkRepo) FindByEntityValue(ctx context.Context, tenantID, kind, value string, limit int) ([]*entity.EmbeddingChunk, error) {
	return nil, nil
}

func (f *fakeChunkRepo) ListOutOfStock(ctx context.Context, tenantID string, limit int) ([]*entity.EmbeddingChunk, error) {
	return nil, nil
}

func (f *fakeChunkRepo) EnsureCollection(ctx context.Context) error { return nil }

func testDoc(text string) *entity.ScrapedDocument {
	return &entity.ScrapedDocument{
		DocumentID:  "doc-1",
		TenantID:    "tenant-1",
		URL:         "https://shop.example.com/faq",
		Title:       "Shipping FAQ",
		RawText:     text,
		ContentType: "faq",
		ScrapedAt:   time.Now(),
	}
}

func TestSplitText_ShortTextSingleChunk(t *testing.T) {
	out := SplitText("Shipping takes 3-5 days.", 800, 120)
	require.Len(t, out, 1)
	assert.Equal(t, "Shipping takes 3-5 days.", out[0])
}

func TestSplitText_Empty(t *testing.T) {
	assert.Nil(t, SplitText("", 800, 120))
	assert.Nil(t, SplitText("   \n  ", 800, 120))
}

func TestSplitText_ChunksWithOverlap(t *testing.T) {
	sentence := "All orders ship from our Berlin warehouse within two days. "
	text := strings.Repeat(sentence, 40)

	out := SplitText(text, 300, 50)
	require.Greater(t, len(out), 1)

	for _, chunk := range out {
		assert.LessOrEqual(t, len([]rune(chunk)), 300)
		assert.NotEmpty(t, chunk)
	}

	// 全文内容都要被覆盖：任一句必须出现在某块里
	joined := strings.Join(out, " ")
	assert.Contains(t, joined, "Berlin warehouse")
}

func TestSplitText_HardCutWithoutBoundaries(t *testing.T) {
	text := strings.Repeat("a", 1000)
	out := SplitText(text, 300, 50)
	require.Greater(t, len(out), 1)
	for _, chunk := range out {
		assert.LessOrEqual(t, len([]rune(chunk)), 300)
	}
}

func TestIndex_WritesChunks(t *testing.T) {
	embedder := &fakeEmbedder{}
	repo := newFakeChunkRepo()
	indexer := NewIndexer(embedder, repo, DefaultChunkingConfig())

	sentence := "Returns are accepted within 30 days of delivery. "
	doc := testDoc(strings.Repeat(sentence, 60))

	count, err := indexer.Index(context.Background(), doc)
	require.NoError(t, err)
	require.Greater(t, count, 1)

	chunks := repo.replaced["doc-1"]
	require.Len(t, chunks, count)
	for pos, c := range chunks {
		assert.Equal(t, "tenant-1", c.TenantID)
		assert.Equal(t, "doc-1", c.DocumentID)
		assert.Equal(t, entity.ContentTypeFAQ, c.ContentType)
		assert.Equal(t, pos, c.Position)
		assert.NotEmpty(t, c.Vector)
		assert.NotEmpty(t, c.Keywords)
		assert.False(t, c.IndexedAt.IsZero())
	}
}

func TestIndex_BatchesEmbedding(t *testing.T) {
	embedder := &fakeEmbedder{}
	repo := newFakeChunkRepo()
	cfg := DefaultChunkingConfig()
	cfg.ChunkRunes = 100
	cfg.OverlapRunes = 10
	cfg.EmbedBatch = 2
	indexer := NewIndexer(embedder, repo, cfg)

	doc := testDoc(strings.Repeat("Shipping to most EU countries is free above fifty euros. ", 20))

	count, err := indexer.Index(context.Background(), doc)
	require.NoError(t, err)
	require.Greater(t, count, 2)

	// 每批不超过 EmbedBatch
	require.NotEmpty(t, embedder.calls)
	for _, call := range embedder.calls {
		assert.LessOrEqual(t, len(call), 2)
	}
}

func TestIndex_EmbedderFailure(t *testing.T) {
	embedder := &fakeEmbedder{err: assert.AnError}
	repo := newFakeChunkRepo()
	indexer := NewIndexer(embedder, repo, DefaultChunkingConfig())

	_, err := indexer.Index(context.Background(), testDoc("Some page text to index."))
	require.Error(t, err)
	assert.Empty(t, repo.replaced)
}

func TestIndex_EmptyTextClearsDocument(t *testing.T) {
	embedder := &fakeEmbedder{}
	repo := newFakeChunkRepo()
	indexer := NewIndexer(embedder, repo, DefaultChunkingConfig())

	count, err := indexer.Index(context.Background(), testDoc(""))
	require.NoError(t, err)
	assert.Zero(t, count)

	// 空正文仍触发替换，旧分块被清空
	chunks, ok := repo.replaced["doc-1"]
	assert.True(t, ok)
	assert.Empty(t, chunks)
}

func TestIndex_ValidatesInput(t *testing.T) {
	indexer := NewIndexer(&fakeEmbedder{}, newFakeChunkRepo(), DefaultChunkingConfig())

	_, err := indexer.Index(context.Background(), nil)
	require.Error(t, err)

	_, err = indexer.Index(context.Background(), &entity.ScrapedDocument{DocumentID: "doc-1"})
	require.Error(t, err)
}

func TestHandleIngestMessage_CarriesCommerceFields(t *testing.T) {
	embedder := &fakeEmbedder{}
	repo := newFakeChunkRepo()
	indexer := NewIndexer(embedder, repo, DefaultChunkingConfig())

	job := &messaging.IngestJobMessage{
		TenantID:     "tenant-1",
		DocumentID:   "doc-1",
		URL:          "https://shop.example.com/p/aurora",
		Title:        "Aurora Desk Lamp",
		ContentType:  "product",
		Text:         "Aurora Desk Lamp, warm white LED.",
		Entities:     map[string][]string{"sku": {"SKU-AB12"}},
		PriceRange:   &entity.PriceRange{Min: 49.90, Max: 59.90, Currency: "EUR"},
		Availability: string(entity.AvailabilityOutOfStock),
	}
	msg, err := messaging.NewMessage("msg-1", "document_ingest", job.TenantID, job.DocumentID, job)
	require.NoError(t, err)

	require.NoError(t, indexer.HandleIngestMessage()(context.Background(), msg))

	chunks := repo.replaced["doc-1"]
	require.Len(t, chunks, 1)
	assert.Equal(t, entity.AvailabilityOutOfStock, chunks[0].Availability)
	require.NotNil(t, chunks[0].PriceRange)
	assert.Equal(t, 59.90, chunks[0].PriceRange.Max)
}

func TestIndex_ProductEntitiesCarried(t *testing.T) {
	embedder := &fakeEmbedder{}
	repo := newFakeChunkRepo()
	indexer := NewIndexer(embedder, repo, DefaultChunkingConfig())

	doc := testDoc("Aurora Desk Lamp, warm white LED, EUR 49.90.")
	doc.ContentType = "product"
	doc.Entities = map[string][]string{"sku": {"SKU-AB12"}, "product_name": {"Aurora Desk Lamp"}}
	doc.Availability = string(entity.AvailabilityInStock)
	doc.PriceRange = &entity.PriceRange{Min: 49.90, Max: 49.90, Currency: "EUR"}

	_, err := indexer.Index(context.Background(), doc)
	require.NoError(t, err)

	chunks := repo.replaced["doc-1"]
	require.Len(t, chunks, 1)
	assert.Equal(t, entity.ContentTypeProduct, chunks[0].ContentType)
	assert.True(t, chunks[0].HasEntity("sku-ab12"))
	assert.Equal(t, entity.AvailabilityInStock, chunks[0].Availability)
	require.NotNil(t, chunks[0].PriceRange)
	assert.Equal(t, "EUR", chunks[0].PriceRange.Currency)
}
