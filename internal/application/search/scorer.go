package search

import (
	"sort"
	"strings"
	"time"

	"shoply-ai-cs-api/internal/domain/entity"
)

// 加权常量。各项独立封顶，最终分数整体封顶为 1。
const (
	boostPositionFirst  = 0.15
	boostPositionSecond = 0.10
	boostPositionThird  = 0.05
	boostKeywordMatch   = 0.20
	boostEntityMatch    = 0.25
	boostRecencyMax     = 0.10
	boostContentType    = 0.10
)

// Scorer 相关性打分器。无状态、确定性：相同输入产出相同分数与相同排序。
type Scorer struct {
	recencyHorizon time.Duration
	now            func() time.Time
}

// NewScorer 创建打分器。horizonDays 为新鲜度加权的衰减区间（天）。
func NewScorer(horizonDays int) *Scorer {
	if horizonDays <= 0 {
		horizonDays = 180
	}
	return &Scorer{
		recencyHorizon: time.Duration(horizonDays) * 24 * time.Hour,
		now:            time.Now,
	}
}

// Score 对候选分块打分。输出顺序与输入一致，排序由组装器负责。
func (s *Scorer) Score(candidates []*entity.EmbeddingChunk, similarities []float64, in *SearchInput) []*ScoredCandidate {
	keywords := normalizeKeywords(in.Keywords)
	allowed := make(map[entity.ContentType]bool, len(in.ContentTypes))
	for _, ct := range in.ContentTypes {
		allowed[ct] = true
	}

	now := s.now()
	out := make([]*ScoredCandidate, 0, len(candidates))
	for i, chunk := range candidates {
		if chunk == nil {
			continue
		}
		base := clampScore(similarities[i])
		boosts := BoostSet{
			Position:    positionBoost(chunk.Position),
			Keyword:     s.keywordBoost(chunk, keywords),
			ContentType: contentTypeBoost(chunk.ContentType, allowed),
		}
		if in.WithRecency {
			boosts.Recency = s.recencyBoost(chunk.IndexedAt, now)
		}

		out = append(out, &ScoredCandidate{
			Chunk:          chunk,
			BaseSimilarity: base,
			Boosts:         boosts,
			FinalScore:     clampScore(base + boosts.Sum()),
		})
	}
	return out
}

// positionBoost 文档首段往往是摘要，给予位置加权
func positionBoost(position int) float64 {
	switch position {
	case 0:
		return boostPositionFirst
	case 1:
		return boostPositionSecond
	case 2:
		return boostPositionThird
	default:
		return 0
	}
}

// keywordBoost 关键词加权。命名实体（SKU/品牌/商品名）的命中
// 高于普通关键词命中，因为实体能唯一定位具体商品；两者不叠加，取高者。
func (s *Scorer) keywordBoost(chunk *entity.EmbeddingChunk, keywords []string) float64 {
	var boost float64
	for _, kw := range keywords {
		if chunk.HasEntity(kw) {
			return boostEntityMatch
		}
		if boost == 0 && chunk.HasKeyword(kw) {
			boost = boostKeywordMatch
		}
	}
	return boost
}

// recencyBoost 新鲜度加权：当天索引 +0.10，线性衰减到区间末归零
func (s *Scorer) recencyBoost(indexedAt time.Time, now time.Time) float64 {
	if indexedAt.IsZero() {
		return 0
	}
	age := now.Sub(indexedAt)
	if age <= 0 {
		return boostRecencyMax
	}
	if age >= s.recencyHorizon {
		return 0
	}
	return boostRecencyMax * (1 - float64(age)/float64(s.recencyHorizon))
}

func contentTypeBoost(ct entity.ContentType, allowed map[entity.ContentType]bool) float64 {
	if len(allowed) == 0 {
		return 0
	}
	if allowed[ct] {
		return boostContentType
	}
	return 0
}

// SortCandidates 按最终分数降序排序，同分按分块 ID 升序，保证可复现。
func SortCandidates(candidates []*ScoredCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].FinalScore != candidates[j].FinalScore {
			return candidates[i].FinalScore > candidates[j].FinalScore
		}
		return candidates[i].Chunk.ID < candidates[j].Chunk.ID
	})
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func normalizeKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

// 查询分词的停用词表，够用即可
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"do": true, "does": true, "for": true, "of": true, "in": true,
	"on": true, "to": true, "my": true, "you": true, "have": true,
	"what": true, "how": true, "can": true, "i": true, "it": true,
	"and": true, "or": true, "with": true, "about": true, "any": true,
}

// ExtractKeywords 从查询文本提取关键词：小写化、去标点、去停用词，保留 ≥3 字符词元。
func ExtractKeywords(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !isKeywordRune(r)
	})

	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 3 || stopwords[f] || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

func isKeywordRune(r rune) bool {
	return r == '-' || r == '_' ||
		(r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') ||
		(r >= 'A' && r <= 'Z') || r > 127
}
