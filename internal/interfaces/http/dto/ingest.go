package dto

import (
	"shoply-ai-cs-api/internal/domain/entity"
	"shoply-ai-cs-api/internal/infrastructure/messaging"
)

// IngestDocumentRequest 抓取文档入库请求
type IngestDocumentRequest struct {
	DocumentID     string              `json:"document_id" binding:"required"`
	URL            string              `json:"url" binding:"required"`
	Title          string              `json:"title,omitempty"`
	ContentType    string              `json:"content_type" binding:"required"`
	Text           string              `json:"text"`
	Keywords       []string            `json:"keywords,omitempty"`
	Entities       map[string][]string `json:"entities,omitempty"`
	PriceRange     *entity.PriceRange  `json:"price_range,omitempty"`
	Availability   string              `json:"availability,omitempty"`
	IdempotencyKey string              `json:"idempotency_key,omitempty"`
}

// IngestAcceptedResponse 入库任务受理回执
type IngestAcceptedResponse struct {
	DocumentID string `json:"document_id"`
	MessageID  string `json:"message_id"`
}

// ToIngestJobMessage 转换为入库任务消息
func (r *IngestDocumentRequest) ToIngestJobMessage(tenantID string) *messaging.IngestJobMessage {
	return &messaging.IngestJobMessage{
		TenantID:       tenantID,
		DocumentID:     r.DocumentID,
		URL:            r.URL,
		Title:          r.Title,
		ContentType:    r.ContentType,
		Text:           r.Text,
		Keywords:       r.Keywords,
		Entities:       r.Entities,
		PriceRange:     r.PriceRange,
		Availability:   r.Availability,
		IdempotencyKey: r.IdempotencyKey,
	}
}
