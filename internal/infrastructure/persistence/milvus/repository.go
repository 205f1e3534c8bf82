// Package milvus 提供 Milvus 向量数据库访问层实现
package milvus

import (
	"context"
	"fmt"
	"strings"
	"time"

	milvusclient "github.com/milvus-io/milvus-sdk-go/v2/client"
	milvusentity "github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"shoply-ai-cs-api/internal/domain/entity"
	"shoply-ai-cs-api/internal/domain/repository"
	"shoply-ai-cs-api/pkg/metrics"
)

var chunkOutputFields = []string{"id", "tenant_id", "document_id", "content_type", "position", "indexed_at", "text_content"}

// Repository 分块仓储（repository.ChunkRepository 的 Milvus 实现）
type Repository struct {
	client *Client
}

// NewRepository 创建分块仓储
func NewRepository(client *Client) *Repository {
	return &Repository{client: client}
}

var _ repository.ChunkRepository = (*Repository)(nil)

// EnsureCollection 确保集合与索引可用（不存在则创建）。
// 约束：不做 drop/rebuild 等破坏性操作。
func (r *Repository) EnsureCollection(ctx context.Context) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}

	exists, err := r.client.HasCollection(ctx, CollectionChunks)
	if err != nil {
		return err
	}
	if !exists {
		schema := ChunksSchema()
		schema.CollectionName = r.client.CollectionName(schema.CollectionName)
		if err := r.client.milvus.CreateCollection(ctx, schema, milvusentity.DefaultShardNumber); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}
		// 新建集合时创建索引；若失败，允许后续由运维介入。
		_ = r.createIndex(ctx)
	}

	return r.client.LoadCollection(ctx, CollectionChunks)
}

// createIndex 创建 HNSW 索引
func (r *Repository) createIndex(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "milvus.createIndex")
	defer span.End()

	idx, err := milvusentity.NewIndexHNSW(
		milvusentity.COSINE,
		r.client.config.HNSWM,
		r.client.config.HNSWEfConstruction,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}

	collName := r.client.CollectionName(CollectionChunks)
	if err := r.client.milvus.CreateIndex(ctx, collName, "vector", idx, false); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// ensurePartition 确保租户分区存在
func (r *Repository) ensurePartition(ctx context.Context, tenantID string) error {
	collName := r.client.CollectionName(CollectionChunks)
	partitionName := PartitionName(tenantID)

	has, err := r.client.milvus.HasPartition(ctx, collName, partitionName)
	if err != nil {
		return fmt.Errorf("failed to check partition: %w", err)
	}
	if !has {
		return r.client.milvus.CreatePartition(ctx, collName, partitionName)
	}
	return nil
}

// Search 检索租户内相似分块
func (r *Repository) Search(ctx context.Context, params *repository.ChunkSearchParams) ([]*repository.ChunkHit, error) {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return nil, fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.Search",
		trace.WithAttributes(
			attribute.String("tenant_id", params.TenantID),
			attribute.Int("top_k", params.TopK),
		))
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.MilvusSearchDuration.WithLabelValues(CollectionChunks).Observe(time.Since(start).Seconds())
	}()

	collName := r.client.CollectionName(CollectionChunks)
	partitionName := PartitionName(params.TenantID)

	// 新租户分区尚未创建时直接返回空结果，避免 partition not found
	if has, err := r.client.milvus.HasPartition(ctx, collName, partitionName); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to check partition: %w", err)
	} else if !has {
		return []*repository.ChunkHit{}, nil
	}

	filter := fmt.Sprintf(`tenant_id == "%s"`, params.TenantID)
	if len(params.ContentTypes) > 0 {
		var parts []string
		for _, ct := range params.ContentTypes {
			s := strings.TrimSpace(string(ct))
			if s == "" {
				continue
			}
			parts = append(parts, fmt.Sprintf(`content_type == "%s"`, s))
		}
		if len(parts) > 0 {
			filter += " && (" + strings.Join(parts, " || ") + ")"
		}
	}

	sp, err := milvusentity.NewIndexHNSWSearchParam(128)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}

	results, err := r.client.milvus.Search(ctx,
		collName,
		[]string{partitionName},
		filter,
		chunkOutputFields,
		[]milvusentity.Vector{milvusentity.FloatVector(params.QueryVector)},
		"vector",
		milvusentity.COSINE,
		params.TopK,
		sp,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	var hits []*repository.ChunkHit
	for _, result := range results {
		for i := 0; i < result.ResultCount; i++ {
			row := extractRow(result.Fields, i)
			chunk := decodeChunk(row.id, row.tenantID, row.documentID, row.contentType, row.position, row.indexedAt, row.text)
			hits = append(hits, &repository.ChunkHit{
				Chunk: chunk,
				// COSINE 距离转换为相似度：distance = 1 - cos
				Similarity: clamp01(1 - float64(result.Scores[i])),
			})
		}
	}

	span.SetAttributes(attribute.Int("result_count", len(hits)))
	return hits, nil
}

// ReplaceDocument 原子替换文档分块：同分区内先删后插。
func (r *Repository) ReplaceDocument(ctx context.Context, tenantID, documentID string, chunks []*entity.EmbeddingChunk) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	documentID = strings.TrimSpace(documentID)
	if tenantID == "" || documentID == "" {
		return fmt.Errorf("tenant_id and document_id are required")
	}

	ctx, span := tracer.Start(ctx, "milvus.ReplaceDocument",
		trace.WithAttributes(
			attribute.String("tenant_id", tenantID),
			attribute.String("document_id", documentID),
			attribute.Int("count", len(chunks)),
		))
	defer span.End()

	if err := r.ensurePartition(ctx, tenantID); err != nil {
		span.RecordError(err)
		return err
	}

	collName := r.client.CollectionName(CollectionChunks)
	partitionName := PartitionName(tenantID)

	filter := fmt.Sprintf(`document_id == "%s"`, documentID)
	if err := r.client.milvus.Delete(ctx, collName, partitionName, filter); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete stale chunks: %w", err)
	}

	if len(chunks) == 0 {
		return nil
	}

	ids := make([]string, len(chunks))
	vectors := make([][]float32, len(chunks))
	tenantIDs := make([]string, len(chunks))
	documentIDs := make([]string, len(chunks))
	contentTypes := make([]string, len(chunks))
	positions := make([]int64, len(chunks))
	indexedAts := make([]int64, len(chunks))
	texts := make([]string, len(chunks))

	for i, c := range chunks {
		id, text, meta := encodeChunk(c)
		ids[i] = id
		vectors[i] = c.Vector
		tenantIDs[i] = tenantID
		documentIDs[i] = documentID
		contentTypes[i] = string(c.ContentType)
		positions[i] = int64(c.Position)
		indexedAts[i] = c.IndexedAt.Unix()
		texts[i] = encodeChunkText(meta, text)
	}

	idCol := milvusentity.NewColumnVarChar("id", ids)
	vectorCol := milvusentity.NewColumnFloatVector("vector", VectorDimension, vectors)
	tenantCol := milvusentity.NewColumnVarChar("tenant_id", tenantIDs)
	documentCol := milvusentity.NewColumnVarChar("document_id", documentIDs)
	typeCol := milvusentity.NewColumnVarChar("content_type", contentTypes)
	posCol := milvusentity.NewColumnInt64("position", positions)
	indexedCol := milvusentity.NewColumnInt64("indexed_at", indexedAts)
	textCol := milvusentity.NewColumnVarChar("text_content", texts)

	if _, err := r.client.milvus.Insert(ctx, collName, partitionName,
		idCol, vectorCol, tenantCol, documentCol, typeCol, posCol, indexedCol, textCol); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert chunks: %w", err)
	}

	return nil
}

// FindByEntityValue 按命名实体值扫描分块。Milvus 不索引 meta 内容，
// 这里用 Query 拉取租户内 product 分块后在内存匹配，只用于存档回退路径。
func (r *Repository) FindByEntityValue(ctx context.Context, tenantID, kind, value string, limit int) ([]*entity.EmbeddingChunk, error) {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return nil, fmt.Errorf("milvus client not configured")
	}
	if limit <= 0 {
		limit = 10
	}
	ctx, span := tracer.Start(ctx, "milvus.FindByEntityValue",
		trace.WithAttributes(
			attribute.String("tenant_id", tenantID),
			attribute.String("entity_kind", kind),
		))
	defer span.End()

	collName := r.client.CollectionName(CollectionChunks)
	partitionName := PartitionName(tenantID)

	if has, err := r.client.milvus.HasPartition(ctx, collName, partitionName); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to check partition: %w", err)
	} else if !has {
		return nil, nil
	}

	filter := fmt.Sprintf(`tenant_id == "%s" && content_type == "%s"`, tenantID, entity.ContentTypeProduct)
	resultSet, err := r.client.milvus.Query(ctx, collName, []string{partitionName}, filter, chunkOutputFields)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}

	var out []*entity.EmbeddingChunk
	rowCount := resultSet.Len()
	for i := 0; i < rowCount && len(out) < limit; i++ {
		row := extractRow(resultSet, i)
		chunk := decodeChunk(row.id, row.tenantID, row.documentID, row.contentType, row.position, row.indexedAt, row.text)
		if kind != "" {
			if containsFold(chunk.EntityValues(kind), value) {
				out = append(out, chunk)
			}
		} else if chunk.HasEntity(value) {
			out = append(out, chunk)
		}
	}

	span.SetAttributes(attribute.Int("result_count", len(out)))
	return out, nil
}

// ListOutOfStock 列出抓取时标记缺货的商品分块，每个文档只取一条。
// 与 FindByEntityValue 一样走 Query 后在内存过滤，仅存档回退路径使用。
func (r *Repository) ListOutOfStock(ctx context.Context, tenantID string, limit int) ([]*entity.EmbeddingChunk, error) {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return nil, fmt.Errorf("milvus client not configured")
	}
	if limit <= 0 {
		limit = 5
	}
	ctx, span := tracer.Start(ctx, "milvus.ListOutOfStock",
		trace.WithAttributes(attribute.String("tenant_id", tenantID)))
	defer span.End()

	collName := r.client.CollectionName(CollectionChunks)
	partitionName := PartitionName(tenantID)

	if has, err := r.client.milvus.HasPartition(ctx, collName, partitionName); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to check partition: %w", err)
	} else if !has {
		return nil, nil
	}

	filter := fmt.Sprintf(`tenant_id == "%s" && content_type == "%s"`, tenantID, entity.ContentTypeProduct)
	resultSet, err := r.client.milvus.Query(ctx, collName, []string{partitionName}, filter, chunkOutputFields)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}

	seen := make(map[string]bool)
	var out []*entity.EmbeddingChunk
	rowCount := resultSet.Len()
	for i := 0; i < rowCount && len(out) < limit; i++ {
		row := extractRow(resultSet, i)
		chunk := decodeChunk(row.id, row.tenantID, row.documentID, row.contentType, row.position, row.indexedAt, row.text)
		if chunk.Availability != entity.AvailabilityOutOfStock || seen[chunk.DocumentID] {
			continue
		}
		seen[chunk.DocumentID] = true
		out = append(out, chunk)
	}

	span.SetAttributes(attribute.Int("result_count", len(out)))
	return out, nil
}

type chunkRow struct {
	id          string
	tenantID    string
	documentID  string
	contentType string
	position    int64
	indexedAt   int64
	text        string
}

// extractRow 从结果列集中提取第 i 行
func extractRow(fields milvusclient.ResultSet, i int) chunkRow {
	var row chunkRow
	if col, ok := fields.GetColumn("id").(*milvusentity.ColumnVarChar); ok {
		row.id = col.Data()[i]
	}
	if col, ok := fields.GetColumn("tenant_id").(*milvusentity.ColumnVarChar); ok {
		row.tenantID = col.Data()[i]
	}
	if col, ok := fields.GetColumn("document_id").(*milvusentity.ColumnVarChar); ok {
		row.documentID = col.Data()[i]
	}
	if col, ok := fields.GetColumn("content_type").(*milvusentity.ColumnVarChar); ok {
		row.contentType = col.Data()[i]
	}
	if col, ok := fields.GetColumn("position").(*milvusentity.ColumnInt64); ok {
		row.position = col.Data()[i]
	}
	if col, ok := fields.GetColumn("indexed_at").(*milvusentity.ColumnInt64); ok {
		row.indexedAt = col.Data()[i]
	}
	if col, ok := fields.GetColumn("text_content").(*milvusentity.ColumnVarChar); ok {
		row.text = col.Data()[i]
	}
	return row
}

func containsFold(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(target)) {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
