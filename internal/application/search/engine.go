package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"shoply-ai-cs-api/internal/domain/entity"
	"shoply-ai-cs-api/internal/domain/repository"
	"shoply-ai-cs-api/internal/infrastructure/embedding"
	"shoply-ai-cs-api/pkg/metrics"
)

var tracer = otel.Tracer("search")

// Engine 检索引擎：向量召回 + 打分 + 分档组装。
type Engine struct {
	embedder  embedding.Embedder
	chunks    repository.ChunkRepository
	scorer    *Scorer
	assembler *Assembler
}

// NewEngine 创建检索引擎
func NewEngine(embedder embedding.Embedder, chunks repository.ChunkRepository, scorer *Scorer, assembler *Assembler) *Engine {
	return &Engine{
		embedder:  embedder,
		chunks:    chunks,
		scorer:    scorer,
		assembler: assembler,
	}
}

// Enabled 检索能力是否可用
func (e *Engine) Enabled() bool {
	return e != nil && e.embedder != nil && e.chunks != nil
}

// Search 执行一次完整检索。budget <= 0 时使用组装器默认预算。
func (e *Engine) Search(ctx context.Context, in *SearchInput, budget int) (*SearchOutput, error) {
	if !e.Enabled() {
		return nil, ErrSearchDisabled
	}

	in.TenantID = strings.TrimSpace(in.TenantID)
	in.Query = strings.TrimSpace(in.Query)
	if in.TenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if in.Query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if in.TopK <= 0 {
		in.TopK = 20
	}
	if in.TopK > 50 {
		in.TopK = 50
	}
	if len(in.Keywords) == 0 {
		in.Keywords = ExtractKeywords(in.Query)
	}

	ctx, span := tracer.Start(ctx, "search.Search",
		trace.WithAttributes(
			attribute.String("tenant_id", in.TenantID),
			attribute.Int("top_k", in.TopK),
		))
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.RetrievalSearchDuration.WithLabelValues(in.TenantID).Observe(time.Since(start).Seconds())
	}()

	queryVector, err := e.embedQuery(ctx, in.Query)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := e.chunks.Search(ctx, &repository.ChunkSearchParams{
		TenantID:     in.TenantID,
		QueryVector:  queryVector,
		TopK:         in.TopK,
		ContentTypes: in.ContentTypes,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	candidates := e.scoreHits(hits, in)
	metrics.RetrievalCandidates.WithLabelValues(in.TenantID).Observe(float64(len(candidates)))

	block := e.assembler.Assemble(candidates, budget)
	metrics.ContextBytesEmitted.WithLabelValues(in.TenantID).Observe(float64(block.TotalChars))

	span.SetAttributes(
		attribute.Int("candidate_count", len(candidates)),
		attribute.Int("context_chars", block.TotalChars),
	)

	return &SearchOutput{
		Candidates: candidates,
		Context:    block,
	}, nil
}

func (e *Engine) scoreHits(hits []*repository.ChunkHit, in *SearchInput) []*ScoredCandidate {
	chunks := make([]*entity.EmbeddingChunk, 0, len(hits))
	sims := make([]float64, 0, len(hits))
	for _, h := range hits {
		if h == nil || h.Chunk == nil {
			continue
		}
		chunks = append(chunks, h.Chunk)
		sims = append(sims, h.Similarity)
	}
	return e.scorer.Score(chunks, sims, in)
}

func (e *Engine) embedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := e.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}
