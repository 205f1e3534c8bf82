// Package handler 提供 HTTP 请求处理器
package handler

import (
	"shoply-ai-cs-api/internal/infrastructure/messaging"
	"shoply-ai-cs-api/internal/interfaces/http/dto"

	"github.com/gin-gonic/gin"
)

// IngestHandler 抓取文档入库处理器
type IngestHandler struct {
	producer *messaging.Producer
}

// NewIngestHandler 创建入库处理器
func NewIngestHandler(producer *messaging.Producer) *IngestHandler {
	return &IngestHandler{
		producer: producer,
	}
}

// Submit 提交抓取文档
// @Summary 提交抓取文档
// @Description 把抓取文档投递到入库队列，由 worker 异步切块、嵌入并写入向量索引
// @Tags Ingest
// @Accept json
// @Produce json
// @Param X-Tenant-ID header string true "租户 ID"
// @Param body body dto.IngestDocumentRequest true "抓取文档"
// @Success 202 {object} dto.Response[dto.IngestAcceptedResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /v1/ingest/documents [post]
func (h *IngestHandler) Submit(c *gin.Context) {
	tenant := mustTenant(c)
	if tenant == nil {
		return
	}

	var req dto.IngestDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	messageID, err := h.producer.PublishIngestJob(c.Request.Context(), req.ToIngestJobMessage(tenant.ID))
	if err != nil {
		respondError(c, "failed to enqueue ingest job", err)
		return
	}

	dto.Accepted(c, dto.IngestAcceptedResponse{
		DocumentID: req.DocumentID,
		MessageID:  messageID,
	})
}
