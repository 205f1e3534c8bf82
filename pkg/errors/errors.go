// Package errors 提供统一的错误定义
package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误 (1xxx)
	CodeSuccess            ErrorCode = "0"
	CodeUnknown            ErrorCode = "1000"
	CodeInvalidParam       ErrorCode = "1001"
	CodeUnauthorized       ErrorCode = "1002"
	CodeForbidden          ErrorCode = "1003"
	CodeNotFound           ErrorCode = "1004"
	CodeConflict           ErrorCode = "1005"
	CodeTooManyRequests    ErrorCode = "1006"
	CodeInternalError      ErrorCode = "1007"
	CodeServiceUnavailable ErrorCode = "1008"

	// 身份验证错误 (2xxx)
	CodeVerificationRequired ErrorCode = "2001"
	CodeOTPExpired           ErrorCode = "2002"
	CodeOTPMismatch          ErrorCode = "2003"
	CodeAttemptsExceeded     ErrorCode = "2004"
	CodeAmbiguousIdentity    ErrorCode = "2005"

	// 资源错误 (3xxx)
	CodeTenantNotFound       ErrorCode = "3001"
	CodeDocumentNotFound     ErrorCode = "3002"
	CodeOrderNotFound        ErrorCode = "3003"
	CodeProductNotFound      ErrorCode = "3004"
	CodeModificationNotFound ErrorCode = "3005"

	// 业务错误 (4xxx)
	CodeRetrievalFailed          ErrorCode = "4001"
	CodeIngestFailed             ErrorCode = "4002"
	CodeEmbeddingFailed          ErrorCode = "4003"
	CodeIntentUnclear            ErrorCode = "4004"
	CodeModificationNotPermitted ErrorCode = "4005"
	CodeInvalidTransition        ErrorCode = "4006"

	// 外部服务错误 (5xxx)
	CodeDatabaseError     ErrorCode = "5001"
	CodeCacheError        ErrorCode = "5002"
	CodeVectorDBError     ErrorCode = "5003"
	CodeSourceUnavailable ErrorCode = "5004"
)

// AppError 应用错误
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	HTTPStatus int       `json:"-"`
	Err        error     `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail 添加详细信息。返回副本，预定义错误可安全复用。
func (e *AppError) WithDetail(detail string) *AppError {
	clone := *e
	clone.Detail = detail
	return &clone
}

// WithError 添加底层错误。返回副本，预定义错误可安全复用。
func (e *AppError) WithError(err error) *AppError {
	clone := *e
	clone.Err = err
	return &clone
}

// New 创建新的应用错误
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Err:        err,
	}
}

// codeToHTTPStatus 错误码转 HTTP 状态码
func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case CodeSuccess:
		return http.StatusOK
	case CodeInvalidParam, CodeIntentUnclear:
		return http.StatusBadRequest
	case CodeUnauthorized, CodeVerificationRequired, CodeOTPExpired, CodeOTPMismatch:
		return http.StatusUnauthorized
	case CodeForbidden, CodeModificationNotPermitted:
		return http.StatusForbidden
	case CodeNotFound, CodeTenantNotFound, CodeDocumentNotFound, CodeOrderNotFound,
		CodeProductNotFound, CodeModificationNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeInvalidTransition, CodeAmbiguousIdentity:
		return http.StatusConflict
	case CodeTooManyRequests, CodeAttemptsExceeded:
		return http.StatusTooManyRequests
	case CodeServiceUnavailable, CodeSourceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// 预定义错误
var (
	ErrInvalidParam       = New(CodeInvalidParam, "invalid parameter")
	ErrUnauthorized       = New(CodeUnauthorized, "unauthorized")
	ErrForbidden          = New(CodeForbidden, "forbidden")
	ErrNotFound           = New(CodeNotFound, "resource not found")
	ErrConflict           = New(CodeConflict, "resource conflict")
	ErrTooManyRequests    = New(CodeTooManyRequests, "too many requests")
	ErrInternalError      = New(CodeInternalError, "internal server error")
	ErrServiceUnavailable = New(CodeServiceUnavailable, "service unavailable")

	ErrVerificationRequired = New(CodeVerificationRequired, "identity verification required")
	ErrOTPExpired           = New(CodeOTPExpired, "verification code expired")
	ErrOTPMismatch          = New(CodeOTPMismatch, "verification code incorrect")
	ErrAttemptsExceeded     = New(CodeAttemptsExceeded, "verification attempts exceeded")
	ErrAmbiguousIdentity    = New(CodeAmbiguousIdentity, "multiple customers match")

	ErrTenantNotFound       = New(CodeTenantNotFound, "tenant not found")
	ErrOrderNotFound        = New(CodeOrderNotFound, "order not found")
	ErrProductNotFound      = New(CodeProductNotFound, "product not found")
	ErrModificationNotFound = New(CodeModificationNotFound, "modification request not found")

	ErrRetrievalFailed          = New(CodeRetrievalFailed, "context retrieval failed")
	ErrIngestFailed             = New(CodeIngestFailed, "document ingest failed")
	ErrIntentUnclear            = New(CodeIntentUnclear, "modification intent unclear")
	ErrModificationNotPermitted = New(CodeModificationNotPermitted, "modification not permitted")
	ErrInvalidTransition        = New(CodeInvalidTransition, "invalid status transition")
	ErrSourceUnavailable        = New(CodeSourceUnavailable, "commerce source unavailable")
)

// IsAppError 检查是否为 AppError
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// AsAppError 将错误转换为 AppError
func AsAppError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return Wrap(err, CodeUnknown, "unknown error")
}
