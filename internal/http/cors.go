package http

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/ryanuber/go-glob"

	tenantConfigHTTP "github.com/allisson/tenantconfig/internal/tenantconfig/http"
)

// createCORSMiddleware returns the CORS middleware for the back office web client,
// or nil when CORS is disabled or no origin pattern is configured.
//
// allowOrigins is comma separated. A pattern may use "*" to cover every tenant
// subdomain, e.g. "https://*.admin.example.com".
func createCORSMiddleware(enabled bool, allowOrigins string, logger *slog.Logger) gin.HandlerFunc {
	if !enabled {
		return nil
	}

	patterns := parseOrigins(allowOrigins)
	if len(patterns) == 0 {
		logger.Warn("CORS enabled but no origins configured, CORS will not be applied")
		return nil
	}
	logger.Info("CORS enabled", slog.Any("origins", patterns))

	return cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return originAllowed(patterns, origin)
		},
		AllowMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
		},
		AllowHeaders:  []string{"Content-Type", tenantConfigHTTP.TenantHeader},
		ExposeHeaders: []string{"X-Request-Id", "Retry-After"},
		MaxAge:        12 * time.Hour,
	})
}

func originAllowed(patterns []string, origin string) bool {
	for _, p := range patterns {
		if glob.Glob(p, origin) {
			return true
		}
	}
	return false
}

func parseOrigins(s string) []string {
	var origins []string
	for part := range strings.SplitSeq(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
