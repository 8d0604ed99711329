// Package http provides the admin API server and its health endpoints.
package http

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/allisson/tenantconfig/internal/config"
	"github.com/allisson/tenantconfig/internal/metrics"
	tenantConfigHTTP "github.com/allisson/tenantconfig/internal/tenantconfig/http"
)

// BreakerHealth reports whether every datasource breaker is closed or half-open.
type BreakerHealth interface {
	BreakersHealthy() bool
}

// Server represents the HTTP server.
type Server struct {
	server   *http.Server
	router   *gin.Engine
	db       *sql.DB
	breakers BreakerHealth
	logger   *slog.Logger
}

// NewServer creates a new HTTP server. breakers may be nil.
func NewServer(db *sql.DB, breakers BreakerHealth, host string, port int, logger *slog.Logger) *Server {
	return &Server{
		db:       db,
		breakers: breakers,
		logger:   logger,
		server:   newHTTPServer(host, port, 15*time.Second),
	}
}

func newHTTPServer(host string, port int, timeout time.Duration) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		IdleTimeout:  60 * time.Second,
	}
}

// listenAndServe blocks until srv stops. A graceful shutdown is not an error.
func listenAndServe(srv *http.Server, logger *slog.Logger, name string) error {
	logger.Info("starting "+name, slog.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s stopped: %w", name, err)
	}
	return nil
}

// SetupRouter builds the gin engine. Tenant routes are mounted under
// /v1/tenants behind tenant binding and per-tenant rate limiting; platform
// routes under /v1/platform.
func (s *Server) SetupRouter(
	ctx context.Context,
	cfg *config.Config,
	configHandler *tenantConfigHTTP.ConfigHandler,
	tenants tenantConfigHTTP.TenantLookup,
	metricsProvider *metrics.Provider,
	metricsNamespace string,
) {
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	router.Use(CustomLoggerMiddleware(s.logger))
	if corsMiddleware := createCORSMiddleware(cfg.CORSEnabled, cfg.CORSAllowOrigins, s.logger); corsMiddleware != nil {
		router.Use(corsMiddleware)
	}
	if metricsProvider != nil {
		router.Use(metrics.HTTPMetricsMiddleware(metricsProvider.MeterProvider(), metricsNamespace))
	}

	router.GET("/health", s.healthHandler)
	router.GET("/ready", s.readinessHandler)

	v1 := router.Group("/v1")
	tenantGroup := v1.Group("/tenants")
	tenantGroup.Use(tenantConfigHTTP.TenantContextMiddleware(tenants, s.logger))
	if cfg.RateLimitEnabled {
		tenantGroup.Use(tenantConfigHTTP.TenantRateLimitMiddleware(
			ctx,
			cfg.RateLimitRequestsPerSec,
			cfg.RateLimitBurst,
			s.logger,
		))
	}
	platformGroup := v1.Group("/platform")

	configHandler.RegisterRoutes(tenantGroup, platformGroup)

	s.router = router
}

// GetHandler returns the http.Handler for testing purposes.
func (s *Server) GetHandler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start(ctx context.Context) error {
	s.server.Handler = s.router
	return listenAndServe(s.server, s.logger, "admin api")
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down admin api")
	return s.server.Shutdown(ctx)
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// readinessHandler reports ready when the primary database answers a ping and
// no datasource breaker is open.
func (s *Server) readinessHandler(c *gin.Context) {
	components := gin.H{}
	ready := true

	if s.db == nil {
		components["database"] = "error"
		ready = false
	} else {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			s.logger.Warn("readiness database ping failed", slog.Any("error", err))
			components["database"] = "error"
			ready = false
		} else {
			components["database"] = "ok"
		}
	}

	if s.breakers != nil {
		if s.breakers.BreakersHealthy() {
			components["datasources"] = "ok"
		} else {
			components["datasources"] = "degraded"
			ready = false
		}
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "components": components})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "components": components})
}
