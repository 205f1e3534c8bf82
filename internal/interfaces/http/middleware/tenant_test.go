package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"shoply-ai-cs-api/internal/domain/entity"
)

type fakeTenantRepo struct {
	tenants map[string]*entity.Tenant
	err     error
}

func (f *fakeTenantRepo) GetByID(_ context.Context, id string) (*entity.Tenant, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tenants[id], nil
}

func (f *fakeTenantRepo) GetByDomain(_ context.Context, domain string) (*entity.Tenant, error) {
	for _, t := range f.tenants {
		if t.Domain == domain {
			return t, nil
		}
	}
	return nil, nil
}

func (f *fakeTenantRepo) Create(_ context.Context, _ *entity.Tenant) error {
	return nil
}

func newTenantRouter(repo *fakeTenantRepo) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Tenant(TenantConfig{}, repo))
	r.GET("/probe", func(c *gin.Context) {
		tenant := GetTenantFromGin(c)
		if tenant == nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"tenant_id": tenant.ID})
	})
	return r
}

func TestTenant_ResolvesActiveTenant(t *testing.T) {
	repo := &fakeTenantRepo{tenants: map[string]*entity.Tenant{
		"t-1": {ID: "t-1", Name: "Acme", Domain: "acme.example", Active: true},
	}}
	r := newTenantRouter(repo)

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("X-Tenant-ID", "t-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "t-1")
}

func TestTenant_MissingHeaderRejected(t *testing.T) {
	r := newTenantRouter(&fakeTenantRepo{tenants: map[string]*entity.Tenant{}})

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTenant_UnknownTenantNotFound(t *testing.T) {
	r := newTenantRouter(&fakeTenantRepo{tenants: map[string]*entity.Tenant{}})

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("X-Tenant-ID", "nope")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTenant_DeactivatedTenantForbidden(t *testing.T) {
	repo := &fakeTenantRepo{tenants: map[string]*entity.Tenant{
		"t-2": {ID: "t-2", Domain: "old.example", Active: false},
	}}
	r := newTenantRouter(repo)

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("X-Tenant-ID", "t-2")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestTenant_DefaultTenantFallback(t *testing.T) {
	repo := &fakeTenantRepo{tenants: map[string]*entity.Tenant{
		"dev": {ID: "dev", Domain: "dev.example", Active: true},
	}}
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Tenant(TenantConfig{DefaultTenantID: "dev"}, repo))
	r.GET("/probe", func(c *gin.Context) {
		c.String(http.StatusOK, GetTenantIDFromGin(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "dev", w.Body.String())
}
