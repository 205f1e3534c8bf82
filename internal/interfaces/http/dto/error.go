package dto

import (
	"errors"

	apperrors "shoply-ai-cs-api/pkg/errors"

	"github.com/gin-gonic/gin"
)

// FromError 按应用错误码返回错误响应。
// 非 AppError 一律归为 500，内部细节不外泄。
func FromError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		InternalError(c, "internal server error")
		return
	}

	detail := &ErrorDetail{ErrorCode: string(appErr.Code)}
	if appErr.Detail != "" {
		detail.Details = appErr.Detail
	}
	ErrorWithDetail(c, appErr.HTTPStatus, appErr.Message, detail)
}
