package search

import (
	"fmt"
	"strings"

	"shoply-ai-cs-api/internal/domain/entity"
)

// AssemblerConfig 分档组装配置。阈值与 product 豁免是调参项，经由配置注入。
type AssemblerConfig struct {
	HighThreshold   float64
	MediumThreshold float64

	HighChars       int
	MediumChars     int
	ContextualChars int

	// ProductFullLength 为真时 product 类型分块不受档位截断，
	// 始终使用 High 档长度。商品规格常因分数偏低被截断，
	// 截断后的规格会诱发下游幻觉。
	ProductFullLength bool

	// DefaultBudget 调用方未给预算时的输出字符上限
	DefaultBudget int
}

// DefaultAssemblerConfig 默认组装配置
func DefaultAssemblerConfig() AssemblerConfig {
	return AssemblerConfig{
		HighThreshold:     0.85,
		MediumThreshold:   0.70,
		HighChars:         2000,
		MediumChars:       500,
		ContextualChars:   150,
		ProductFullLength: true,
		DefaultBudget:     12000,
	}
}

// Assembler 分档上下文组装器
type Assembler struct {
	config AssemblerConfig
}

// NewAssembler 创建组装器
func NewAssembler(config AssemblerConfig) *Assembler {
	if config.HighThreshold <= 0 {
		config.HighThreshold = 0.85
	}
	if config.MediumThreshold <= 0 {
		config.MediumThreshold = 0.70
	}
	if config.HighChars <= 0 {
		config.HighChars = 2000
	}
	if config.MediumChars <= 0 {
		config.MediumChars = 500
	}
	if config.ContextualChars <= 0 {
		config.ContextualChars = 150
	}
	if config.DefaultBudget <= 0 {
		config.DefaultBudget = 12000
	}
	return &Assembler{config: config}
}

// directive 下游消费方的使用指令。所有档位都是真实数据：
// 低档分块往往因用词差异而分数偏低，内容仍是事实，
// 只有任何档位都不含所问事实时才允许回答“没有该信息”。
const directive = `All entries below contain real data extracted from this site, ordered by relevance. ` +
	`Lower-relevance entries are still factual and usable. ` +
	`Only answer "I don't have that information" when no entry in any tier contains the requested fact.`

// Assemble 组装分档上下文。降序排序、分档、按档截断、
// 依 High→Medium→Contextual 顺序输出直到预算耗尽。
func (a *Assembler) Assemble(candidates []*ScoredCandidate, budget int) *ContextBlock {
	if budget <= 0 {
		budget = a.config.DefaultBudget
	}

	sorted := make([]*ScoredCandidate, len(candidates))
	copy(sorted, candidates)
	SortCandidates(sorted)

	block := &ContextBlock{
		Directive: directive,
	}

	for _, cand := range sorted {
		if cand == nil || cand.Chunk == nil {
			continue
		}
		tier := a.tierOf(cand.FinalScore)
		text := a.truncate(cand.Chunk, tier)
		if text == "" {
			continue
		}

		// 预算耗尽后停止输出低档条目；高档条目不会为低档让位
		if block.TotalChars+len([]rune(text)) > budget {
			if len(block.Entries) == 0 {
				// 单条超预算时保留首条，截到预算内
				text = truncateRunes(text, budget)
			} else {
				break
			}
		}

		block.Entries = append(block.Entries, ContextEntry{
			ChunkID:      cand.Chunk.ID,
			Tier:         tier,
			MatchPercent: int(cand.FinalScore*100 + 0.5),
			Text:         text,
			URL:          cand.Chunk.URL,
			Title:        cand.Chunk.Title,
			ContentType:  cand.Chunk.ContentType,
		})
		block.TotalChars += len([]rune(text))
	}

	return block
}

// tierOf 分数到档位：High > 0.85，Medium (0.70, 0.85]，Contextual ≤ 0.70
func (a *Assembler) tierOf(score float64) Tier {
	switch {
	case score > a.config.HighThreshold:
		return TierHigh
	case score > a.config.MediumThreshold:
		return TierMedium
	default:
		return TierContextual
	}
}

// truncate 按档位截断分块文本；product 类型可豁免，始终用 High 档长度
func (a *Assembler) truncate(chunk *entity.EmbeddingChunk, tier Tier) string {
	limit := a.config.ContextualChars
	switch tier {
	case TierHigh:
		limit = a.config.HighChars
	case TierMedium:
		limit = a.config.MediumChars
	}
	if a.config.ProductFullLength && chunk.ContentType == entity.ContentTypeProduct {
		limit = a.config.HighChars
	}
	return truncateRunes(strings.TrimSpace(chunk.Text), limit)
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return strings.TrimSpace(string(runes[:limit]))
}

// Render 渲染为提示词文本：指令块在前，各条目带相关度与来源标注
func (b *ContextBlock) Render() string {
	if b == nil || len(b.Entries) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(b.Directive)
	sb.WriteString("\n\n")

	for _, e := range b.Entries {
		sb.WriteString(fmt.Sprintf("[%d%% match", e.MatchPercent))
		if e.URL != "" {
			sb.WriteString(" | " + e.URL)
		}
		sb.WriteString("]\n")
		if e.Title != "" {
			sb.WriteString(e.Title + "\n")
		}
		sb.WriteString(e.Text)
		sb.WriteString("\n\n")
	}
	return strings.TrimSpace(sb.String())
}
