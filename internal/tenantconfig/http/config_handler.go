// Package http provides HTTP handlers for tenant configuration.
// Every route acts for the tenant bound by TenantContextMiddleware; the tenant
// in the URL is the target and must match it for writes.
package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/allisson/tenantconfig/internal/errors"
	"github.com/allisson/tenantconfig/internal/httputil"
	"github.com/allisson/tenantconfig/internal/tenantconfig/domain"
	"github.com/allisson/tenantconfig/internal/tenantconfig/http/dto"
	"github.com/allisson/tenantconfig/internal/tenantconfig/usecase"
	customValidation "github.com/allisson/tenantconfig/internal/validation"
)

// ConfigHandler handles HTTP requests for tenant config operations.
type ConfigHandler struct {
	configUseCase usecase.ConfigUseCase
	logger        *slog.Logger
}

// NewConfigHandler creates a ConfigHandler.
func NewConfigHandler(configUseCase usecase.ConfigUseCase, logger *slog.Logger) *ConfigHandler {
	return &ConfigHandler{
		configUseCase: configUseCase,
		logger:        logger,
	}
}

// RegisterRoutes mounts the tenant routes on tenants, which must already carry
// the tenant middleware, and the platform routes on platform.
func (h *ConfigHandler) RegisterRoutes(tenants, platform *gin.RouterGroup) {
	configs := tenants.Group("/:tenant_id/configs")
	{
		configs.GET("", h.ListHandler)
		configs.GET("/batch", h.BatchHandler)
		configs.GET("/:key", h.GetHandler)
		configs.POST("/:key", h.CreateHandler)
		configs.PUT("/:key", h.UpdateHandler)
		configs.DELETE("/:key", h.DeleteHandler)
	}
	tenants.GET("/:tenant_id/branding", h.BrandingHandler)
	tenants.GET("/:tenant_id/integrations/:key", h.IntegrationHandler)

	platform.GET("/branding", h.PlatformBrandingHandler)
}

type writeFunc func(
	ctx context.Context,
	tenantID uuid.UUID,
	key domain.Key,
	value domain.Value,
) (*domain.ConfigMetadata, error)

// CreateHandler stores a config value.
// POST /v1/tenants/:tenant_id/configs/:key - Returns 201 Created with metadata only.
func (h *ConfigHandler) CreateHandler(c *gin.Context) {
	h.write(c, http.StatusCreated, h.configUseCase.CreateConfig)
}

// UpdateHandler replaces a config value.
// PUT /v1/tenants/:tenant_id/configs/:key - Returns 200 OK with metadata only.
func (h *ConfigHandler) UpdateHandler(c *gin.Context) {
	h.write(c, http.StatusOK, h.configUseCase.UpdateConfig)
}

func (h *ConfigHandler) write(c *gin.Context, status int, fn writeFunc) {
	tenantID, key, ok := h.parseTarget(c)
	if !ok {
		return
	}

	var req dto.ConfigValueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}
	value, err := req.ToValue(key)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	metadata, err := fn(c.Request.Context(), tenantID, key, value)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(status, dto.MapMetadataToResponse(metadata))
}

// GetHandler returns a decoded config value. Credentials are returned in the clear.
// GET /v1/tenants/:tenant_id/configs/:key?cache=false
// Returns 404 when the value is unset or cannot be read for this tenant.
func (h *ConfigHandler) GetHandler(c *gin.Context) {
	tenantID, key, ok := h.parseTarget(c)
	if !ok {
		return
	}

	useCache := c.DefaultQuery("cache", "true") != "false"
	value, err := h.configUseCase.GetConfig(c.Request.Context(), tenantID, key, useCache)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}
	if value == nil {
		httputil.HandleErrorGin(c, domain.ErrConfigNotFound, nil)
		return
	}

	c.JSON(http.StatusOK, dto.MapValueToResponse(key, value))
}

// BatchHandler reads several keys at once. Credentials are masked unless decrypt=true.
// GET /v1/tenants/:tenant_id/configs/batch?keys=a,b&decrypt=false&defaults=true
func (h *ConfigHandler) BatchHandler(c *gin.Context) {
	tenantID, ok := h.parseTenant(c)
	if !ok {
		return
	}

	q, err := dto.ParseBatchQuery(c.Query("keys"), c.Query("decrypt"), c.Query("defaults"))
	if err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	result, err := h.configUseCase.GetMultipleConfigs(c.Request.Context(), tenantID, q.Keys, usecase.BatchOptions{
		DecryptSecrets: q.DecryptSecrets,
		UseEnvDefaults: q.UseEnvDefaults,
	})
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapBatchToResponse(result))
}

// DeleteHandler removes a config value.
// DELETE /v1/tenants/:tenant_id/configs/:key - Returns 204 No Content or 404.
func (h *ConfigHandler) DeleteHandler(c *gin.Context) {
	tenantID, key, ok := h.parseTarget(c)
	if !ok {
		return
	}

	deleted, err := h.configUseCase.DeleteConfig(c.Request.Context(), tenantID, key)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}
	if !deleted {
		httputil.HandleErrorGin(c, domain.ErrConfigNotFound, nil)
		return
	}

	c.Data(http.StatusNoContent, "application/json", nil)
}

// ListHandler lists config metadata of a tenant.
// GET /v1/tenants/:tenant_id/configs
func (h *ConfigHandler) ListHandler(c *gin.Context) {
	tenantID, ok := h.parseTenant(c)
	if !ok {
		return
	}

	list, err := h.configUseCase.ListConfigs(c.Request.Context(), tenantID)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapMetadataListToResponse(list))
}

// BrandingHandler returns the composed tenant branding.
// GET /v1/tenants/:tenant_id/branding
func (h *ConfigHandler) BrandingHandler(c *gin.Context) {
	tenantID, ok := h.parseTenant(c)
	if !ok {
		return
	}

	branding, err := h.configUseCase.GetBrandingConfig(c.Request.Context(), tenantID)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}
	if branding == nil {
		httputil.HandleErrorGin(c, domain.ErrBrandingConfigMissing, nil)
		return
	}

	c.JSON(http.StatusOK, branding)
}

// IntegrationHandler returns a decrypted integration credential.
// GET /v1/tenants/:tenant_id/integrations/:key
func (h *ConfigHandler) IntegrationHandler(c *gin.Context) {
	tenantID, key, ok := h.parseTarget(c)
	if !ok {
		return
	}

	value, err := h.configUseCase.GetIntegrationConfig(c.Request.Context(), tenantID, key)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapValueToResponse(key, value))
}

// PlatformBrandingHandler returns the platform default branding.
// GET /v1/platform/branding
func (h *ConfigHandler) PlatformBrandingHandler(c *gin.Context) {
	c.JSON(http.StatusOK, h.configUseCase.PlatformBranding())
}

func (h *ConfigHandler) parseTenant(c *gin.Context) (uuid.UUID, bool) {
	tenantID, err := uuid.Parse(c.Param("tenant_id"))
	if err != nil {
		httputil.HandleValidationErrorGin(c, fmt.Errorf("invalid tenant_id: must be a UUID"), h.logger)
		return uuid.Nil, false
	}
	return tenantID, true
}

func (h *ConfigHandler) parseTarget(c *gin.Context) (uuid.UUID, domain.Key, bool) {
	tenantID, ok := h.parseTenant(c)
	if !ok {
		return uuid.Nil, "", false
	}
	key, err := domain.ParseKey(c.Param("key"))
	if err != nil {
		httputil.HandleErrorGin(c, apperrors.Wrap(err, "invalid key"), h.logger)
		return uuid.Nil, "", false
	}
	return tenantID, key, true
}
