// Package repository 定义数据访问接口
package repository

import (
	"context"

	"shoply-ai-cs-api/internal/domain/entity"
)

// ChunkSearchParams 向量检索参数
type ChunkSearchParams struct {
	TenantID     string
	QueryVector  []float32
	TopK         int
	ContentTypes []entity.ContentType // 为空表示不过滤
}

// ChunkHit 向量检索命中：分块 + 余弦相似度（0-1）
type ChunkHit struct {
	Chunk      *entity.EmbeddingChunk
	Similarity float64
}

// ChunkRepository 嵌入分块仓储。检索只读；写入按文档整体替换。
type ChunkRepository interface {
	// Search 按查询向量检索租户内分块
	Search(ctx context.Context, params *ChunkSearchParams) ([]*ChunkHit, error)

	// ReplaceDocument 原子替换文档的全部分块：先删 document_id 旧分块再插入。
	// 不存在局部更新路径。
	ReplaceDocument(ctx context.Context, tenantID, documentID string, chunks []*entity.EmbeddingChunk) error

	// FindByEntityValue 按命名实体值（如 SKU）查找分块，用于商品数据的存档回退
	FindByEntityValue(ctx context.Context, tenantID, kind, value string, limit int) ([]*entity.EmbeddingChunk, error)

	// ListOutOfStock 列出抓取时标记为缺货的商品分块，每个文档取首个分块
	ListOutOfStock(ctx context.Context, tenantID string, limit int) ([]*entity.EmbeddingChunk, error)

	// EnsureCollection 确保集合与索引可用
	EnsureCollection(ctx context.Context) error
}
