// Package mocks provides mock implementations for testing tenant config HTTP handlers.
package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	tenantDomain "github.com/allisson/tenantconfig/internal/tenant/domain"
	"github.com/allisson/tenantconfig/internal/tenantconfig/domain"
	"github.com/allisson/tenantconfig/internal/tenantconfig/usecase"
)

// MockConfigUseCase is a mock implementation of usecase.ConfigUseCase.
type MockConfigUseCase struct {
	mock.Mock
}

var _ usecase.ConfigUseCase = (*MockConfigUseCase)(nil)

func (m *MockConfigUseCase) CreateConfig(
	ctx context.Context,
	tenantID uuid.UUID,
	key domain.Key,
	value domain.Value,
) (*domain.ConfigMetadata, error) {
	args := m.Called(ctx, tenantID, key, value)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ConfigMetadata), args.Error(1)
}

func (m *MockConfigUseCase) UpdateConfig(
	ctx context.Context,
	tenantID uuid.UUID,
	key domain.Key,
	value domain.Value,
) (*domain.ConfigMetadata, error) {
	args := m.Called(ctx, tenantID, key, value)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ConfigMetadata), args.Error(1)
}

func (m *MockConfigUseCase) GetConfig(
	ctx context.Context,
	tenantID uuid.UUID,
	key domain.Key,
	useCache bool,
) (domain.Value, error) {
	args := m.Called(ctx, tenantID, key, useCache)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(domain.Value), args.Error(1)
}

func (m *MockConfigUseCase) GetMultipleConfigs(
	ctx context.Context,
	tenantID uuid.UUID,
	keys []domain.Key,
	opts usecase.BatchOptions,
) (*domain.BatchResult, error) {
	args := m.Called(ctx, tenantID, keys, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BatchResult), args.Error(1)
}

func (m *MockConfigUseCase) DeleteConfig(ctx context.Context, tenantID uuid.UUID, key domain.Key) (bool, error) {
	args := m.Called(ctx, tenantID, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockConfigUseCase) ListConfigs(ctx context.Context, tenantID uuid.UUID) ([]domain.ConfigMetadata, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ConfigMetadata), args.Error(1)
}

func (m *MockConfigUseCase) GetBrandingConfig(ctx context.Context, tenantID uuid.UUID) (*domain.BrandingConfig, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BrandingConfig), args.Error(1)
}

func (m *MockConfigUseCase) GetIntegrationConfig(
	ctx context.Context,
	tenantID uuid.UUID,
	key domain.Key,
) (domain.Value, error) {
	args := m.Called(ctx, tenantID, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(domain.Value), args.Error(1)
}

func (m *MockConfigUseCase) PlatformBranding() domain.BrandingConfig {
	args := m.Called()
	return args.Get(0).(domain.BrandingConfig)
}

// MockTenantLookup is a mock implementation of the tenant lookup used by the tenant middleware.
type MockTenantLookup struct {
	mock.Mock
}

// GetTenant mocks tenant lookup by id.
func (m *MockTenantLookup) GetTenant(ctx context.Context, id uuid.UUID) (*tenantDomain.Tenant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tenantDomain.Tenant), args.Error(1)
}
