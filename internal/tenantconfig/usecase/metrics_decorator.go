package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/tenantconfig/internal/metrics"
	"github.com/allisson/tenantconfig/internal/tenantconfig/domain"
)

const metricsDomain = "tenant_config"

// configUseCaseWithMetrics decorates ConfigUseCase with metrics instrumentation.
type configUseCaseWithMetrics struct {
	next    ConfigUseCase
	metrics metrics.BusinessMetrics
}

// NewConfigUseCaseWithMetrics wraps a ConfigUseCase with metrics recording.
func NewConfigUseCaseWithMetrics(useCase ConfigUseCase, m metrics.BusinessMetrics) ConfigUseCase {
	return &configUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

func (c *configUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordOperation(ctx, metricsDomain, operation, status)
	c.metrics.RecordDuration(ctx, metricsDomain, operation, time.Since(start), status)
}

func (c *configUseCaseWithMetrics) CreateConfig(
	ctx context.Context,
	tenantID uuid.UUID,
	key domain.Key,
	value domain.Value,
) (*domain.ConfigMetadata, error) {
	start := time.Now()
	metadata, err := c.next.CreateConfig(ctx, tenantID, key, value)
	c.record(ctx, "config_create", start, err)
	return metadata, err
}

func (c *configUseCaseWithMetrics) UpdateConfig(
	ctx context.Context,
	tenantID uuid.UUID,
	key domain.Key,
	value domain.Value,
) (*domain.ConfigMetadata, error) {
	start := time.Now()
	metadata, err := c.next.UpdateConfig(ctx, tenantID, key, value)
	c.record(ctx, "config_update", start, err)
	return metadata, err
}

func (c *configUseCaseWithMetrics) GetConfig(
	ctx context.Context,
	tenantID uuid.UUID,
	key domain.Key,
	useCache bool,
) (domain.Value, error) {
	start := time.Now()
	value, err := c.next.GetConfig(ctx, tenantID, key, useCache)
	c.record(ctx, "config_get", start, err)
	return value, err
}

func (c *configUseCaseWithMetrics) GetMultipleConfigs(
	ctx context.Context,
	tenantID uuid.UUID,
	keys []domain.Key,
	opts BatchOptions,
) (*domain.BatchResult, error) {
	start := time.Now()
	result, err := c.next.GetMultipleConfigs(ctx, tenantID, keys, opts)
	c.record(ctx, "config_get_multiple", start, err)
	return result, err
}

func (c *configUseCaseWithMetrics) DeleteConfig(ctx context.Context, tenantID uuid.UUID, key domain.Key) (bool, error) {
	start := time.Now()
	deleted, err := c.next.DeleteConfig(ctx, tenantID, key)
	c.record(ctx, "config_delete", start, err)
	return deleted, err
}

func (c *configUseCaseWithMetrics) ListConfigs(ctx context.Context, tenantID uuid.UUID) ([]domain.ConfigMetadata, error) {
	start := time.Now()
	metadata, err := c.next.ListConfigs(ctx, tenantID)
	c.record(ctx, "config_list", start, err)
	return metadata, err
}

func (c *configUseCaseWithMetrics) GetBrandingConfig(ctx context.Context, tenantID uuid.UUID) (*domain.BrandingConfig, error) {
	start := time.Now()
	branding, err := c.next.GetBrandingConfig(ctx, tenantID)
	c.record(ctx, "branding_get", start, err)
	return branding, err
}

func (c *configUseCaseWithMetrics) GetIntegrationConfig(
	ctx context.Context,
	tenantID uuid.UUID,
	key domain.Key,
) (domain.Value, error) {
	start := time.Now()
	value, err := c.next.GetIntegrationConfig(ctx, tenantID, key)
	c.record(ctx, "integration_get", start, err)
	return value, err
}

func (c *configUseCaseWithMetrics) PlatformBranding() domain.BrandingConfig {
	return c.next.PlatformBranding()
}
