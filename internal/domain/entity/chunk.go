// Package entity 定义领域实体
package entity

import (
	"strings"
	"time"
)

// ContentType 页面内容类型
type ContentType string

const (
	ContentTypeProduct ContentType = "product"
	ContentTypeFAQ     ContentType = "faq"
	ContentTypeDoc     ContentType = "doc"
	ContentTypeBlog    ContentType = "blog"
	ContentTypeSupport ContentType = "support"
	ContentTypeGeneral ContentType = "general"
)

// ParseContentType 解析内容类型字符串，未知值归入 general
func ParseContentType(s string) ContentType {
	switch ContentType(strings.ToLower(strings.TrimSpace(s))) {
	case ContentTypeProduct, ContentTypeFAQ, ContentTypeDoc,
		ContentTypeBlog, ContentTypeSupport:
		return ContentType(strings.ToLower(strings.TrimSpace(s)))
	default:
		return ContentTypeGeneral
	}
}

// Availability 抓取时的库存状态
type Availability string

const (
	AvailabilityInStock    Availability = "in_stock"
	AvailabilityOutOfStock Availability = "out_of_stock"
	AvailabilityPreorder   Availability = "preorder"
	AvailabilityUnknown    Availability = ""
)

// PriceRange 抓取到的价格区间
type PriceRange struct {
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Currency string  `json:"currency"`
}

// EmbeddingChunk 嵌入分块。由抓取侧按页面整体替换写入，检索期间只读。
// 同一 document_id 的分块整体删除后重建，不做局部更新。
type EmbeddingChunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	TenantID   string `json:"tenant_id"`

	Vector []float32 `json:"vector,omitempty"`
	Text   string    `json:"text"`

	ContentType ContentType         `json:"content_type"`
	URL         string              `json:"url,omitempty"`
	Title       string              `json:"title,omitempty"`
	Position    int                 `json:"position"` // 在文档内的分块序号，0 起
	Keywords    []string            `json:"keywords,omitempty"`
	Entities    map[string][]string `json:"entities,omitempty"` // sku/brand/product_name -> 值集合

	PriceRange   *PriceRange  `json:"price_range,omitempty"`
	Availability Availability `json:"availability,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	IndexedAt time.Time `json:"indexed_at"`
}

// HasKeyword 检查分块关键词是否包含指定词（大小写不敏感）
func (c *EmbeddingChunk) HasKeyword(kw string) bool {
	kw = strings.ToLower(strings.TrimSpace(kw))
	if kw == "" {
		return false
	}
	for _, k := range c.Keywords {
		if strings.ToLower(k) == kw {
			return true
		}
	}
	return false
}

// HasEntity 检查分块命名实体中是否包含指定值（大小写不敏感）
func (c *EmbeddingChunk) HasEntity(value string) bool {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return false
	}
	for _, vals := range c.Entities {
		for _, v := range vals {
			if strings.ToLower(v) == value {
				return true
			}
		}
	}
	return false
}

// EntityValues 返回指定实体类别的全部值
func (c *EmbeddingChunk) EntityValues(kind string) []string {
	if c.Entities == nil {
		return nil
	}
	return c.Entities[kind]
}

// ScrapedDocument 抓取侧交付的原始页面记录（摄取输入）。
type ScrapedDocument struct {
	DocumentID  string              `json:"document_id"`
	TenantID    string              `json:"tenant_id"`
	URL         string              `json:"url"`
	Title       string              `json:"title"`
	RawText     string              `json:"raw_text"`
	ContentType string              `json:"content_type"`
	Keywords    []string            `json:"keywords,omitempty"`
	Entities    map[string][]string `json:"entities,omitempty"`
	PriceRange  *PriceRange         `json:"price_range,omitempty"`
	Availability string             `json:"availability,omitempty"`
	ScrapedAt   time.Time           `json:"scraped_at"`
}
