package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/allisson/tenantconfig/internal/metrics"
)

// MetricsServer serves the Prometheus scrape endpoint on its own port, away
// from the tenant-facing admin API.
type MetricsServer struct {
	server *http.Server
	logger *slog.Logger
}

// NewMetricsServer mounts the provider's handler on /metrics. Scrapes are not
// access logged. A nil provider leaves the server with no routes.
func NewMetricsServer(host string, port int, logger *slog.Logger, provider *metrics.Provider) *MetricsServer {
	router := gin.New()
	router.Use(gin.Recovery())
	if provider != nil {
		router.GET("/metrics", gin.WrapH(provider.Handler()))
	}

	srv := newHTTPServer(host, port, 5*time.Second)
	srv.Handler = router
	return &MetricsServer{server: srv, logger: logger}
}

// GetHandler returns the http.Handler for testing purposes.
func (s *MetricsServer) GetHandler() http.Handler {
	return s.server.Handler
}

// Start blocks serving scrapes until Shutdown.
func (s *MetricsServer) Start(ctx context.Context) error {
	return listenAndServe(s.server, s.logger, "metrics server")
}

// Shutdown gracefully shuts down the metrics server.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down metrics server")
	return s.server.Shutdown(ctx)
}
