// Package milvus 提供 Milvus 向量数据库访问层实现
package milvus

import (
	"encoding/json"
	"strings"
	"time"

	milvusentity "github.com/milvus-io/milvus-sdk-go/v2/entity"

	"shoply-ai-cs-api/internal/domain/entity"
)

const (
	// CollectionChunks 页面分块集合
	CollectionChunks = "cs_chunks"

	// VectorDimension 向量维度
	VectorDimension = 1024
)

// ChunksSchema 页面分块 Collection Schema
func ChunksSchema() *milvusentity.Schema {
	return &milvusentity.Schema{
		CollectionName: CollectionChunks,
		Description:    "Scraped page chunks for grounded retrieval",
		Fields: []*milvusentity.Field{
			{
				Name:       "id",
				DataType:   milvusentity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "vector",
				DataType: milvusentity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": "1024",
				},
			},
			{
				Name:     "tenant_id",
				DataType: milvusentity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "document_id",
				DataType: milvusentity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "content_type",
				DataType: milvusentity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "16",
				},
			},
			{
				Name:     "position",
				DataType: milvusentity.FieldTypeInt64,
			},
			{
				Name:     "indexed_at",
				DataType: milvusentity.FieldTypeInt64,
			},
			{
				Name:     "text_content",
				DataType: milvusentity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "65535",
				},
			},
		},
	}
}

// PartitionName 生成租户分区名称
func PartitionName(tenantID string) string {
	return "tenant_" + tenantID
}

const chunkMetaPrefix = "@@meta:"

// chunkMeta 写入 text_content 的结构化元信息。
// 约定：仅读写自家写入的分块；前缀缺失时安全降级为纯文本。
type chunkMeta struct {
	URL          string              `json:"url,omitempty"`
	Title        string              `json:"title,omitempty"`
	Keywords     []string            `json:"keywords,omitempty"`
	Entities     map[string][]string `json:"entities,omitempty"`
	PriceRange   *entity.PriceRange  `json:"price_range,omitempty"`
	Availability string              `json:"availability,omitempty"`
	CreatedAt    int64               `json:"created_at,omitempty"`
}

func encodeChunkText(meta chunkMeta, text string) string {
	b, _ := json.Marshal(meta)
	var sb strings.Builder
	sb.Grow(len(chunkMetaPrefix) + len(b) + 1 + len(text))
	sb.WriteString(chunkMetaPrefix)
	sb.Write(b)
	sb.WriteByte('\n')
	sb.WriteString(text)
	return sb.String()
}

func decodeChunkText(textContent string) (chunkMeta, string) {
	raw := strings.TrimSpace(textContent)
	if !strings.HasPrefix(raw, chunkMetaPrefix) {
		return chunkMeta{}, raw
	}
	rest := strings.TrimPrefix(raw, chunkMetaPrefix)
	line, body, ok := strings.Cut(rest, "\n")
	if !ok {
		return chunkMeta{}, raw
	}
	var meta chunkMeta
	if err := json.Unmarshal([]byte(strings.TrimSpace(line)), &meta); err != nil {
		return chunkMeta{}, strings.TrimSpace(body)
	}
	return meta, strings.TrimSpace(body)
}

// encodeChunk 将领域分块转换为 Milvus 行
func encodeChunk(c *entity.EmbeddingChunk) (id string, text string, meta chunkMeta) {
	meta = chunkMeta{
		URL:          c.URL,
		Title:        c.Title,
		Keywords:     c.Keywords,
		Entities:     c.Entities,
		PriceRange:   c.PriceRange,
		Availability: string(c.Availability),
		CreatedAt:    c.CreatedAt.Unix(),
	}
	return c.ID, c.Text, meta
}

// decodeChunk 从 Milvus 行还原领域分块
func decodeChunk(id, tenantID, documentID, contentType string, position, indexedAt int64, textContent string) *entity.EmbeddingChunk {
	meta, text := decodeChunkText(textContent)
	c := &entity.EmbeddingChunk{
		ID:          strings.TrimSpace(id),
		TenantID:    strings.TrimSpace(tenantID),
		DocumentID:  strings.TrimSpace(documentID),
		ContentType: entity.ParseContentType(contentType),
		Position:    int(position),
		Text:        text,
		URL:         meta.URL,
		Title:       meta.Title,
		Keywords:    meta.Keywords,
		Entities:    meta.Entities,
		PriceRange:  meta.PriceRange,
		IndexedAt:   time.Unix(indexedAt, 0).UTC(),
	}
	if meta.Availability != "" {
		c.Availability = entity.Availability(meta.Availability)
	}
	if meta.CreatedAt > 0 {
		c.CreatedAt = time.Unix(meta.CreatedAt, 0).UTC()
	}
	return c
}
