// Package modification 处理订单修改：意图识别、确认流与执行，全程留审计轨迹。
package modification

import (
	"regexp"

	"shoply-ai-cs-api/internal/domain/entity"
)

// 各修改类型的置信度门槛。取消订单不可逆，门槛最高；
// 备注无副作用，门槛最低。低于门槛不建请求，改为追问。
var intentFloors = map[entity.ModificationType]float64{
	entity.ModificationCancel:        0.90,
	entity.ModificationAddressUpdate: 0.85,
	entity.ModificationRefund:        0.85,
	entity.ModificationNote:          0.70,
}

// IntentFloor 返回修改类型的置信度门槛
func IntentFloor(t entity.ModificationType) float64 {
	return intentFloors[t]
}

// Intent 识别出的修改意图
type Intent struct {
	Type       entity.ModificationType
	Confidence float64
	Matched    string
}

// Actionable 置信度是否达到该类型的执行门槛
func (i *Intent) Actionable() bool {
	return i != nil && i.Confidence >= IntentFloor(i.Type)
}

type intentRule struct {
	modType    entity.ModificationType
	pattern    *regexp.Regexp
	confidence float64
}

// 规则按置信度降序排列，命中多条取最高
var intentRules = []intentRule{
	{entity.ModificationCancel, regexp.MustCompile(`(?i)\bcancel\b.{0,30}\border\b|\border\b.{0,30}\bcancel`), 0.97},
	{entity.ModificationCancel, regexp.MustCompile(`(?i)\b(?:want|need|like) to cancel\b`), 0.92},
	{entity.ModificationCancel, regexp.MustCompile(`(?i)\bcancel (?:it|this|that|everything)\b`), 0.90},
	{entity.ModificationCancel, regexp.MustCompile(`(?i)\bdon'?t want (?:it|this|the order)\b`), 0.70},

	{entity.ModificationAddressUpdate, regexp.MustCompile(`(?i)\b(?:change|update|correct|fix)\b.{0,40}\b(?:shipping|delivery)? ?address\b`), 0.93},
	{entity.ModificationAddressUpdate, regexp.MustCompile(`(?i)\b(?:ship|send|deliver)\b.{0,40}\b(?:instead|different address|new address)\b`), 0.88},
	{entity.ModificationAddressUpdate, regexp.MustCompile(`(?i)\bwrong address\b`), 0.85},
	{entity.ModificationAddressUpdate, regexp.MustCompile(`(?i)\b(?:moved|moving)\b`), 0.55},

	{entity.ModificationRefund, regexp.MustCompile(`(?i)\brefund\b`), 0.92},
	{entity.ModificationRefund, regexp.MustCompile(`(?i)\bmoney back\b`), 0.90},
	{entity.ModificationRefund, regexp.MustCompile(`(?i)\breturn\b.{0,30}\b(?:order|item|it)\b`), 0.75},

	{entity.ModificationNote, regexp.MustCompile(`(?i)\b(?:add|leave|attach)\b.{0,30}\b(?:note|message|instruction)`), 0.85},
	{entity.ModificationNote, regexp.MustCompile(`(?i)\b(?:note|message) (?:for|to|on)\b.{0,30}\border\b`), 0.80},
	{entity.ModificationNote, regexp.MustCompile(`(?i)\btell the (?:courier|driver|delivery)\b`), 0.72},
}

// 追问话术，识别到意图但置信度不够时使用
var clarifyQuestions = map[entity.ModificationType]string{
	entity.ModificationCancel:        "It sounds like you may want to cancel an order. Could you confirm that, and tell me which order?",
	entity.ModificationAddressUpdate: "Do you want to change the delivery address for an order? If so, which order and what is the new address?",
	entity.ModificationRefund:        "Are you asking for a refund? Please confirm and tell me which order it concerns.",
	entity.ModificationNote:          "Would you like me to add a note to your order? What should it say?",
}

// ClarifyQuestion 返回该修改类型的追问话术
func ClarifyQuestion(t entity.ModificationType) string {
	if q, ok := clarifyQuestions[t]; ok {
		return q
	}
	return "Could you describe in more detail what you would like to change about your order?"
}

// DetectIntent 从用户输入识别修改意图，无命中返回 nil。
// 返回的意图可能低于执行门槛，是否执行由调用方检查 Actionable。
func DetectIntent(input string) *Intent {
	var best *Intent
	for _, rule := range intentRules {
		m := rule.pattern.FindString(input)
		if m == "" {
			continue
		}
		if best == nil || rule.confidence > best.Confidence {
			best = &Intent{
				Type:       rule.modType,
				Confidence: rule.confidence,
				Matched:    m,
			}
		}
	}
	return best
}
