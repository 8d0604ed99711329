package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPMetricsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	provider, err := NewProvider("test_app")
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, provider.Shutdown(context.Background()))
	}()

	router := gin.New()
	router.Use(HTTPMetricsMiddleware(provider.MeterProvider(), "test_app"))
	router.GET("/v1/tenants/:tenant_id/configs", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"data": []string{}})
	})

	for _, path := range []string{
		"/v1/tenants/0194d1a0-0000-7000-8000-000000000001/configs",
		"/v1/tenants/0194d1a0-0000-7000-8000-000000000002/configs",
		"/nope",
	} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	w := httptest.NewRecorder()
	provider.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	output := w.Body.String()

	assertBizMetricLine(t, output, `test_app_http_requests_total`,
		`route="/v1/tenants/:tenant_id/configs".*status_code="200"`, `2`)
	assertBizMetricLine(t, output, `test_app_http_requests_total`,
		`route="unmatched".*status_code="404"`, `1`)
	assert.NotContains(t, output, "0194d1a0-0000-7000-8000-000000000001")
}

func TestRouteLabel(t *testing.T) {
	assert.Equal(t, "unmatched", routeLabel(""))
	assert.Equal(t, "/health", routeLabel("/health"))
}
