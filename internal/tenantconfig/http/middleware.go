package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	apperrors "github.com/allisson/tenantconfig/internal/errors"
	"github.com/allisson/tenantconfig/internal/httputil"
	tenantDomain "github.com/allisson/tenantconfig/internal/tenant/domain"
)

// TenantHeader carries the id of the tenant a request acts for.
const TenantHeader = "X-Tenant-ID"

// TenantLookup resolves tenants. The tenant use case implements it.
type TenantLookup interface {
	GetTenant(ctx context.Context, id uuid.UUID) (*tenantDomain.Tenant, error)
}

// TenantContextMiddleware binds the request context to the tenant named by the
// X-Tenant-ID header. Unknown or inactive tenants are rejected with 401 before
// any handler runs; the bound tenant then limits what the handlers may touch.
func TenantContextMiddleware(tenants TenantLookup, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(TenantHeader)
		if raw == "" {
			httputil.HandleErrorGin(c, apperrors.Wrap(apperrors.ErrUnauthorized, "missing tenant header"), logger)
			c.Abort()
			return
		}
		tenantID, err := uuid.Parse(raw)
		if err != nil {
			httputil.HandleBadRequestGin(c, fmt.Errorf("invalid %s header", TenantHeader), logger)
			c.Abort()
			return
		}

		tenant, err := tenants.GetTenant(c.Request.Context(), tenantID)
		if err != nil {
			if apperrors.Is(err, apperrors.ErrNotFound) {
				err = apperrors.Wrap(apperrors.ErrUnauthorized, "unknown tenant")
			}
			httputil.HandleErrorGin(c, err, logger)
			c.Abort()
			return
		}
		if !tenant.Active {
			httputil.HandleErrorGin(c, apperrors.Wrap(apperrors.ErrUnauthorized, "tenant is inactive"), logger)
			c.Abort()
			return
		}

		c.Request = c.Request.WithContext(tenantDomain.WithTenant(c.Request.Context(), tenantID))
		c.Next()
	}
}

// rateLimiterStore holds per-tenant rate limiters with automatic cleanup.
type rateLimiterStore struct {
	limiters sync.Map // map[uuid.UUID]*rateLimiterEntry
	rps      float64
	burst    int
}

type rateLimiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
	mu         sync.Mutex
}

// TenantRateLimitMiddleware enforces per-tenant rate limiting with a token bucket.
//
// MUST be used after TenantContextMiddleware. Exceeding the limit returns
// 429 Too Many Requests with a Retry-After header. The cleanup goroutine stops
// when ctx is done.
func TenantRateLimitMiddleware(ctx context.Context, rps float64, burst int, logger *slog.Logger) gin.HandlerFunc {
	store := &rateLimiterStore{
		rps:   rps,
		burst: burst,
	}
	go store.cleanupStale(ctx, 5*time.Minute)

	return func(c *gin.Context) {
		tenantID, ok := tenantDomain.FromContext(c.Request.Context())
		if !ok {
			logger.Error("rate limit middleware: no tenant in context")
			httputil.HandleErrorGin(c, apperrors.ErrUnauthorized, logger)
			c.Abort()
			return
		}

		limiter := store.getLimiter(tenantID)
		if !limiter.Allow() {
			reservation := limiter.Reserve()
			retryAfter := int(reservation.Delay().Seconds())
			reservation.Cancel()
			if retryAfter < 1 {
				retryAfter = 1
			}

			logger.Debug("rate limit exceeded",
				slog.String("tenant_id", tenantID.String()),
				slog.Int("retry_after", retryAfter))

			c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limit_exceeded",
				"message": "Too many requests. Please retry after the specified delay.",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

func (s *rateLimiterStore) getLimiter(tenantID uuid.UUID) *rate.Limiter {
	if val, ok := s.limiters.Load(tenantID); ok {
		entry := val.(*rateLimiterEntry)
		entry.mu.Lock()
		entry.lastAccess = time.Now()
		entry.mu.Unlock()
		return entry.limiter
	}

	entry := &rateLimiterEntry{
		limiter:    rate.NewLimiter(rate.Limit(s.rps), s.burst),
		lastAccess: time.Now(),
	}
	actual, _ := s.limiters.LoadOrStore(tenantID, entry)
	return actual.(*rateLimiterEntry).limiter
}

// cleanupStale removes limiters not used in the last hour.
func (s *rateLimiterStore) cleanupStale(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			threshold := time.Now().Add(-1 * time.Hour)
			s.limiters.Range(func(key, value any) bool {
				entry := value.(*rateLimiterEntry)
				entry.mu.Lock()
				stale := entry.lastAccess.Before(threshold)
				entry.mu.Unlock()

				if stale {
					s.limiters.Delete(key)
				}
				return true
			})
		}
	}
}
