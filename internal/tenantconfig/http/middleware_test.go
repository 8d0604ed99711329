package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	tenantDomain "github.com/allisson/tenantconfig/internal/tenant/domain"
	"github.com/allisson/tenantconfig/internal/tenantconfig/http/mocks"
)

func tenantRouter(lookup TenantLookup, extra ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handlers := append([]gin.HandlerFunc{TenantContextMiddleware(lookup, testLogger())}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		tenantID, _ := tenantDomain.FromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"tenant_id": tenantID.String()})
	})
	router.GET("/test", handlers...)
	return router
}

func TestTenantContextMiddleware(t *testing.T) {
	active := uuid.Must(uuid.NewV7())
	inactive := uuid.Must(uuid.NewV7())
	unknown := uuid.Must(uuid.NewV7())

	lookup := &mocks.MockTenantLookup{}
	lookup.On("GetTenant", mock.Anything, active).
		Return(&tenantDomain.Tenant{ID: active, Active: true}, nil)
	lookup.On("GetTenant", mock.Anything, inactive).
		Return(&tenantDomain.Tenant{ID: inactive, Active: false}, nil)
	lookup.On("GetTenant", mock.Anything, unknown).
		Return(nil, tenantDomain.ErrTenantNotFound)

	router := tenantRouter(lookup)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"bound", active.String(), http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"malformed header", "tenant-1", http.StatusBadRequest},
		{"unknown tenant", unknown.String(), http.StatusUnauthorized},
		{"inactive tenant", inactive.String(), http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.header != "" {
				req.Header.Set(TenantHeader, tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Contains(t, w.Body.String(), active.String())
			}
		})
	}
}

func TestTenantRateLimitMiddleware(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tenantA := uuid.Must(uuid.NewV7())
	tenantB := uuid.Must(uuid.NewV7())
	lookup := &mocks.MockTenantLookup{}
	for _, id := range []uuid.UUID{tenantA, tenantB} {
		lookup.On("GetTenant", mock.Anything, id).Return(&tenantDomain.Tenant{ID: id, Active: true}, nil)
	}

	router := tenantRouter(lookup, TenantRateLimitMiddleware(ctx, 1.0, 2, testLogger()))

	send := func(tenantID uuid.UUID) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(TenantHeader, tenantID.String())
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	for range 2 {
		assert.Equal(t, http.StatusOK, send(tenantA).Code)
	}
	limited := send(tenantA)
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.NotEmpty(t, limited.Header().Get("Retry-After"))

	// buckets are per tenant
	assert.Equal(t, http.StatusOK, send(tenantB).Code)
}

func TestTenantRateLimitMiddleware_RequiresTenant(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	router := gin.New()
	router.GET("/test", TenantRateLimitMiddleware(ctx, 10, 10, testLogger()), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
