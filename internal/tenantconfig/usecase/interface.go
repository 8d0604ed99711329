// Package usecase implements the tenant config store: classification, envelope
// encryption of credentials, cache-first reads and tenant isolation.
package usecase

import (
	"context"

	"github.com/google/uuid"

	"github.com/allisson/tenantconfig/internal/cache"
	cryptoService "github.com/allisson/tenantconfig/internal/crypto/service"
	"github.com/allisson/tenantconfig/internal/tenantconfig/domain"
)

// ConfigRepository defines tenant config persistence.
type ConfigRepository interface {
	Upsert(ctx context.Context, record *domain.ConfigRecord) error
	Get(ctx context.Context, tenantID uuid.UUID, key domain.Key) (*domain.ConfigRecord, error)
	GetMany(ctx context.Context, tenantID uuid.UUID, keys []domain.Key) ([]*domain.ConfigRecord, error)
	Delete(ctx context.Context, tenantID uuid.UUID, key domain.Key) (bool, error)
	List(ctx context.Context, tenantID uuid.UUID) ([]*domain.ConfigRecord, error)
}

// Encryptor seals and opens credential values. *cryptoService.EnvelopeService implements it.
type Encryptor interface {
	EncryptEnvelope(plaintext []byte) (cryptoService.Envelope, error)
	DecryptEnvelope(ciphertext, wrappedDek string) ([]byte, error)
}

// ConfigCache is the subset of *cache.TenantCache the store uses.
type ConfigCache interface {
	GetTenantConfig(ctx context.Context, tenantID uuid.UUID, key string) (domain.Value, bool)
	Snapshot(tenantID uuid.UUID) cache.Token
	PopulateTenantConfig(ctx context.Context, token cache.Token, key string, value domain.Value) bool
	SetTenantConfig(ctx context.Context, tenantID uuid.UUID, key string, value domain.Value, opts cache.SetOptions)
	DeleteTenantConfig(ctx context.Context, tenantID uuid.UUID, key string)
}

// BatchOptions controls GetMultipleConfigs.
type BatchOptions struct {
	// DecryptSecrets returns credential values instead of MaskedSecret placeholders.
	DecryptSecrets bool
	// UseEnvDefaults fills missing plain keys from the platform defaults.
	UseEnvDefaults bool
}

// DefaultBatchOptions masks secrets and applies platform defaults.
func DefaultBatchOptions() BatchOptions {
	return BatchOptions{UseEnvDefaults: true}
}

// ConfigUseCase defines tenant config operations.
//
// Reads that cross tenants return nil without error and log a warning; callers
// must treat nil as "unavailable", not "unset". Writes that cross tenants fail
// with domain.ErrCrossTenantAccessDenied.
type ConfigUseCase interface {
	CreateConfig(ctx context.Context, tenantID uuid.UUID, key domain.Key, value domain.Value) (*domain.ConfigMetadata, error)
	UpdateConfig(ctx context.Context, tenantID uuid.UUID, key domain.Key, value domain.Value) (*domain.ConfigMetadata, error)
	GetConfig(ctx context.Context, tenantID uuid.UUID, key domain.Key, useCache bool) (domain.Value, error)
	GetMultipleConfigs(
		ctx context.Context,
		tenantID uuid.UUID,
		keys []domain.Key,
		opts BatchOptions,
	) (*domain.BatchResult, error)
	DeleteConfig(ctx context.Context, tenantID uuid.UUID, key domain.Key) (bool, error)
	ListConfigs(ctx context.Context, tenantID uuid.UUID) ([]domain.ConfigMetadata, error)
	GetBrandingConfig(ctx context.Context, tenantID uuid.UUID) (*domain.BrandingConfig, error)
	// GetIntegrationConfig returns a decrypted credential or ErrIntegrationConfigMissing.
	GetIntegrationConfig(ctx context.Context, tenantID uuid.UUID, key domain.Key) (domain.Value, error)
	// PlatformBranding returns the platform-scope defaults. It never touches the database.
	PlatformBranding() domain.BrandingConfig
}
