// Package fusion 融合实时商城数据与抓取存档，向对话轮次提供商品与订单事实。
package fusion

import (
	"regexp"
	"strings"
	"unicode"
)

// 识别置信度。SKU 精确命中最高，引号内商品名次之，清洗词元再次。
const (
	ConfidenceSKU    = 0.99
	ConfidenceQuoted = 0.95
	ConfidenceTerms  = 0.90
)

// ProductQuery 从用户输入识别出的商品定位信息
type ProductQuery struct {
	Raw        string
	SKU        string
	QuotedName string
	Terms      []string

	// StockIntent 询问库存或可售状态
	StockIntent bool

	// Confidence 识别置信度，取最高命中档
	Confidence float64
}

// HasTarget 是否识别出可定位的商品
func (q *ProductQuery) HasTarget() bool {
	return q.SKU != "" || q.QuotedName != "" || len(q.Terms) > 0
}

var (
	// SKU 形态：≥3 位字母数字词元，可带连字符段，须含数字以排除普通单词
	skuPattern = regexp.MustCompile(`\b[A-Za-z0-9]+(?:-[A-Za-z0-9]+)+\b|\b[A-Za-z]*[0-9][A-Za-z0-9]{2,}\b`)

	// 仅双引号与弯引号。单引号会和缩写撇号混淆。
	quotedPattern = regexp.MustCompile(`["“]([^"”]{2,64})["”]`)

	stockWords = []string{
		"in stock", "out of stock", "stock", "availability",
		"available", "sold out", "back in", "restock",
	}
)

// 商品查询里无定位价值的词
var termStopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"do": true, "does": true, "you": true, "have": true, "any": true,
	"for": true, "of": true, "in": true, "on": true, "my": true,
	"what": true, "how": true, "much": true, "price": true, "cost": true,
	"stock": true, "available": true, "availability": true, "sell": true,
	"buy": true, "get": true, "still": true, "there": true,
}

// IdentifyProduct 从用户输入中识别商品定位信息。
// 定位顺序：SKU，引号内商品名，清洗后的剩余词元。
func IdentifyProduct(input string) *ProductQuery {
	q := &ProductQuery{Raw: input}
	lower := strings.ToLower(input)

	for _, w := range stockWords {
		if strings.Contains(lower, w) {
			q.StockIntent = true
			break
		}
	}

	if m := skuPattern.FindString(input); m != "" && len(m) >= 3 {
		q.SKU = strings.ToUpper(m)
		q.Confidence = ConfidenceSKU
		return q
	}

	if m := quotedPattern.FindStringSubmatch(input); len(m) == 2 {
		q.QuotedName = strings.TrimSpace(m[1])
		if q.QuotedName != "" {
			q.Confidence = ConfidenceQuoted
			return q
		}
	}

	q.Terms = cleanTerms(lower)
	if len(q.Terms) > 0 {
		q.Confidence = ConfidenceTerms
	}
	return q
}

// cleanTerms 拆词、去标点、去疑问词与库存用语，留下可能指向商品的词元
func cleanTerms(lower string) []string {
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})

	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 3 || termStopwords[f] || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// orderNumberPattern 订单号形态：可选前缀加数字串
var orderNumberPattern = regexp.MustCompile(`(?i)\b(?:#|ord[-_]?|order[ -]?)?(\d{4,})\b`)

// ExtractOrderNumber 从用户输入中提取订单号，未找到返回空串
func ExtractOrderNumber(input string) string {
	m := orderNumberPattern.FindStringSubmatch(input)
	if len(m) == 2 {
		return m[1]
	}
	return ""
}

// orderOverviewPattern 无订单号的订单询问形态
var orderOverviewPattern = regexp.MustCompile(`(?i)\bmy\s+(?:recent\s+)?(?:orders?|purchases?)\b|\border\s+(?:history|status)\b|\bwhere\s+is\s+my\s+(?:order|package|delivery)\b`)

// AsksOrderOverview 判断输入是否在询问自己的订单而未给订单号
func AsksOrderOverview(input string) bool {
	return orderOverviewPattern.MatchString(input)
}
