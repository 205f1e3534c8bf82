// Package ingest 把抓取侧交付的页面切块、向量化并写入索引。
// 写入以文档为单位整体替换，消费端幂等。
package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"shoply-ai-cs-api/internal/application/search"
	"shoply-ai-cs-api/internal/domain/entity"
	"shoply-ai-cs-api/internal/domain/repository"
	"shoply-ai-cs-api/internal/infrastructure/embedding"
	"shoply-ai-cs-api/internal/infrastructure/messaging"
	apperrors "shoply-ai-cs-api/pkg/errors"
	"shoply-ai-cs-api/pkg/logger"
	"shoply-ai-cs-api/pkg/metrics"
)

var tracer = otel.Tracer("ingest")

// ChunkingConfig 切块参数
type ChunkingConfig struct {
	// ChunkRunes 单块目标长度（按 rune 计）
	ChunkRunes int
	// OverlapRunes 相邻块重叠长度
	OverlapRunes int
	// EmbedBatch 每次送入向量化服务的块数
	EmbedBatch int
}

// DefaultChunkingConfig 默认切块参数
func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{
		ChunkRunes:   800,
		OverlapRunes: 120,
		EmbedBatch:   32,
	}
}

// Indexer 文档入库器
type Indexer struct {
	embedder embedding.Embedder
	chunks   repository.ChunkRepository
	config   ChunkingConfig

	now func() time.Time
}

// NewIndexer 创建入库器
func NewIndexer(embedder embedding.Embedder, chunks repository.ChunkRepository, config ChunkingConfig) *Indexer {
	if config.ChunkRunes <= 0 {
		config.ChunkRunes = 800
	}
	if config.OverlapRunes < 0 || config.OverlapRunes >= config.ChunkRunes {
		config.OverlapRunes = config.ChunkRunes / 8
	}
	if config.EmbedBatch <= 0 {
		config.EmbedBatch = 32
	}
	return &Indexer{
		embedder: embedder,
		chunks:   chunks,
		config:   config,
		now:      time.Now,
	}
}

// Index 切块、向量化并整体替换文档的索引分块。
// 正文为空的文档只做删除（旧分块随替换清空）。
func (i *Indexer) Index(ctx context.Context, doc *entity.ScrapedDocument) (int, error) {
	if doc == nil || doc.TenantID == "" || doc.DocumentID == "" {
		return 0, apperrors.ErrInvalidParam.WithDetail("tenant_id and document_id are required")
	}

	ctx, span := tracer.Start(ctx, "ingest.Index",
		trace.WithAttributes(
			attribute.String("tenant_id", doc.TenantID),
			attribute.String("document_id", doc.DocumentID),
		))
	defer span.End()

	texts := SplitText(doc.RawText, i.config.ChunkRunes, i.config.OverlapRunes)
	chunks := make([]*entity.EmbeddingChunk, 0, len(texts))

	contentType := entity.ParseContentType(doc.ContentType)
	keywords := doc.Keywords
	if len(keywords) == 0 {
		keywords = search.ExtractKeywords(doc.Title + " " + doc.RawText)
		if len(keywords) > 32 {
			keywords = keywords[:32]
		}
	}
	now := i.now()

	for pos, text := range texts {
		chunks = append(chunks, &entity.EmbeddingChunk{
			ID:           uuid.NewString(),
			DocumentID:   doc.DocumentID,
			TenantID:     doc.TenantID,
			Text:         text,
			ContentType:  contentType,
			URL:          doc.URL,
			Title:        doc.Title,
			Position:     pos,
			Keywords:     keywords,
			Entities:     doc.Entities,
			PriceRange:   doc.PriceRange,
			Availability: entity.Availability(doc.Availability),
			CreatedAt:    doc.ScrapedAt,
			IndexedAt:    now,
		})
	}

	if err := i.embedChunks(ctx, chunks); err != nil {
		span.RecordError(err)
		metrics.IngestDocumentsTotal.WithLabelValues(doc.TenantID, "error").Inc()
		return 0, err
	}

	if err := i.chunks.ReplaceDocument(ctx, doc.TenantID, doc.DocumentID, chunks); err != nil {
		span.RecordError(err)
		metrics.IngestDocumentsTotal.WithLabelValues(doc.TenantID, "error").Inc()
		return 0, fmt.Errorf("failed to replace document chunks: %w", err)
	}

	metrics.IngestDocumentsTotal.WithLabelValues(doc.TenantID, "ok").Inc()
	metrics.IngestChunksTotal.WithLabelValues(doc.TenantID).Add(float64(len(chunks)))
	span.SetAttributes(attribute.Int("chunk_count", len(chunks)))
	logger.Info(ctx, "document indexed",
		"document_id", doc.DocumentID,
		"chunks", len(chunks))

	return len(chunks), nil
}

// embedChunks 按批送向量化服务，向量写回分块
func (i *Indexer) embedChunks(ctx context.Context, chunks []*entity.EmbeddingChunk) error {
	for start := 0; start < len(chunks); start += i.config.EmbedBatch {
		end := start + i.config.EmbedBatch
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for j, c := range batch {
			texts[j] = c.Text
		}

		vectors, err := i.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed chunk batch: %w", err)
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("embedding count mismatch: got %d for %d chunks", len(vectors), len(batch))
		}
		for j, v := range vectors {
			batch[j].Vector = v
		}
	}
	return nil
}

// HandleIngestMessage 返回入库任务的流消费处理函数
func (i *Indexer) HandleIngestMessage() messaging.MessageHandler {
	return func(ctx context.Context, msg *messaging.Message) error {
		var job messaging.IngestJobMessage
		if err := msg.UnmarshalPayload(&job); err != nil {
			return fmt.Errorf("failed to decode ingest job: %w", err)
		}

		doc := &entity.ScrapedDocument{
			DocumentID:   job.DocumentID,
			TenantID:     job.TenantID,
			URL:          job.URL,
			Title:        job.Title,
			RawText:      job.Text,
			ContentType:  job.ContentType,
			Keywords:     job.Keywords,
			Entities:     job.Entities,
			PriceRange:   job.PriceRange,
			Availability: job.Availability,
			ScrapedAt:    msg.CreatedAt,
		}
		_, err := i.Index(ctx, doc)
		return err
	}
}

// SplitText 按目标长度切块，相邻块保留 overlap 重叠。
// 优先在句边界断开，句内超长时硬切。
func SplitText(text string, chunkRunes, overlapRunes int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if len(runes) <= chunkRunes {
		return []string{text}
	}

	var out []string
	step := chunkRunes - overlapRunes
	for start := 0; start < len(runes); start += step {
		end := start + chunkRunes
		if end >= len(runes) {
			out = append(out, strings.TrimSpace(string(runes[start:])))
			break
		}

		cut := end
		// 回找最近的句边界，但不回退超过半块
		for j := end; j > start+chunkRunes/2; j-- {
			if isSentenceBoundary(runes[j-1]) {
				cut = j
				break
			}
		}
		out = append(out, strings.TrimSpace(string(runes[start:cut])))
		step = cut - start - overlapRunes
		if step <= 0 {
			step = chunkRunes / 2
		}
	}

	// 去掉截出的空块
	filtered := out[:0]
	for _, s := range out {
		if s != "" {
			filtered = append(filtered, s)
		}
	}
	return filtered
}

func isSentenceBoundary(r rune) bool {
	switch r {
	case '.', '!', '?', '\n', '。', '！', '？':
		return true
	}
	return false
}
