package dto

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "shoply-ai-cs-api/pkg/errors"
)

func serveError(err error) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	FromError(c, err)
	return w
}

func TestFromError_AppErrorMapped(t *testing.T) {
	err := apperrors.ErrVerificationRequired.WithDetail("the details provided do not match our records")
	w := serveError(err)

	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(apperrors.CodeVerificationRequired), resp.Error.ErrorCode)
	assert.Equal(t, "the details provided do not match our records", resp.Error.Details)
}

func TestFromError_NotFoundMapped(t *testing.T) {
	w := serveError(apperrors.ErrOrderNotFound)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFromError_UnknownErrorHidesInternals(t *testing.T) {
	w := serveError(errors.New("pq: connection refused to 10.0.3.7"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "10.0.3.7")
	assert.Contains(t, w.Body.String(), "internal server error")
}

func TestFromError_AttemptsExceededIsTooManyRequests(t *testing.T) {
	w := serveError(apperrors.ErrAttemptsExceeded)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
