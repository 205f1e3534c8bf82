package search

import (
	"shoply-ai-cs-api/internal/domain/entity"
)

// SearchInput 检索输入。
type SearchInput struct {
	TenantID string
	Query    string
	TopK     int

	// Keywords 为空时从查询文本中提取
	Keywords []string

	// ContentTypes 为空表示不过滤；非空则仅检索指定类型并参与类型加权。
	ContentTypes []entity.ContentType

	// WithRecency 调用方显式开启新鲜度加权（并非所有查询都偏好最新内容）
	WithRecency bool
}

// BoostSet 各加权项的独立贡献，便于调试与测试断言。
type BoostSet struct {
	Position    float64 `json:"position"`
	Keyword     float64 `json:"keyword"`
	Recency     float64 `json:"recency"`
	ContentType float64 `json:"content_type"`
}

// Sum 加权项之和
func (b BoostSet) Sum() float64 {
	return b.Position + b.Keyword + b.Recency + b.ContentType
}

// ScoredCandidate 打分后的候选分块。仅查询期存在，不落库。
type ScoredCandidate struct {
	Chunk          *entity.EmbeddingChunk
	BaseSimilarity float64
	Boosts         BoostSet
	FinalScore     float64
}

// Tier 相关性档位
type Tier string

const (
	TierHigh       Tier = "high"
	TierMedium     Tier = "medium"
	TierContextual Tier = "contextual"
)

// ContextEntry 组装输出中的单条内容
type ContextEntry struct {
	ChunkID      string             `json:"chunk_id"`
	Tier         Tier               `json:"tier"`
	MatchPercent int                `json:"match_percent"`
	Text         string             `json:"text"`
	URL          string             `json:"url,omitempty"`
	Title        string             `json:"title,omitempty"`
	ContentType  entity.ContentType `json:"content_type"`
}

// ContextBlock 分档组装结果
type ContextBlock struct {
	Entries   []ContextEntry `json:"entries"`
	Directive string         `json:"directive"`

	// TotalChars 输出正文字符数（不含指令块），用于预算观测
	TotalChars int `json:"total_chars"`
}

// SearchOutput 检索输出
type SearchOutput struct {
	Candidates []*ScoredCandidate
	Context    *ContextBlock
}
