package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"shoply-ai-cs-api/internal/infrastructure/persistence/memory"
)

type failingLimiter struct{}

func (failingLimiter) Allow(_ context.Context, _ string, _ int, _ time.Duration) (bool, error) {
	return false, errors.New("limiter down")
}

func newRateLimitRouter(cfg RateLimitConfig, limiter RateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("tenant_id", "tenant-1")
		c.Next()
	})
	r.Use(RateLimit(cfg, limiter))
	r.GET("/probe", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func doProbe(r *gin.Engine) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimit_AllowsWithinLimit(t *testing.T) {
	r := newRateLimitRouter(RateLimitConfig{Enabled: true, RequestsPerSecond: 3}, memory.NewRateLimiter())

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, doProbe(r).Code)
	}
}

func TestRateLimit_RejectsOverLimit(t *testing.T) {
	r := newRateLimitRouter(RateLimitConfig{Enabled: true, RequestsPerSecond: 2}, memory.NewRateLimiter())

	assert.Equal(t, http.StatusOK, doProbe(r).Code)
	assert.Equal(t, http.StatusOK, doProbe(r).Code)

	w := doProbe(r)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "rate limit exceeded")
}

func TestRateLimit_TenantsDoNotShareBuckets(t *testing.T) {
	limiter := memory.NewRateLimiter()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("tenant_id", c.GetHeader("X-Tenant-ID"))
		c.Next()
	})
	r.Use(RateLimit(RateLimitConfig{Enabled: true, RequestsPerSecond: 1}, limiter))
	r.GET("/probe", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	probe := func(tenant string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/probe", nil)
		req.Header.Set("X-Tenant-ID", tenant)
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, probe("tenant-a"))
	assert.Equal(t, http.StatusTooManyRequests, probe("tenant-a"))
	// 另一租户不受影响
	assert.Equal(t, http.StatusOK, probe("tenant-b"))
}

func TestRateLimit_DisabledPassesThrough(t *testing.T) {
	r := newRateLimitRouter(RateLimitConfig{Enabled: false}, memory.NewRateLimiter())

	for i := 0; i < 10; i++ {
		assert.Equal(t, http.StatusOK, doProbe(r).Code)
	}
}

func TestRateLimit_LimiterFailureFailsOpen(t *testing.T) {
	r := newRateLimitRouter(RateLimitConfig{Enabled: true, RequestsPerSecond: 1}, failingLimiter{})

	assert.Equal(t, http.StatusOK, doProbe(r).Code)
	assert.Equal(t, http.StatusOK, doProbe(r).Code)
}
