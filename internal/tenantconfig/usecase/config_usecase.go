package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/tenantconfig/internal/cache"
	cryptoDomain "github.com/allisson/tenantconfig/internal/crypto/domain"
	apperrors "github.com/allisson/tenantconfig/internal/errors"
	tenantDomain "github.com/allisson/tenantconfig/internal/tenant/domain"
	"github.com/allisson/tenantconfig/internal/tenantconfig/domain"
)

type configUseCase struct {
	repo      ConfigRepository
	encryptor Encryptor
	cache     ConfigCache
	defaults  domain.PlatformDefaults
	logger    *slog.Logger
}

// NewConfigUseCase creates a ConfigUseCase.
func NewConfigUseCase(
	repo ConfigRepository,
	encryptor Encryptor,
	configCache ConfigCache,
	defaults domain.PlatformDefaults,
	logger *slog.Logger,
) ConfigUseCase {
	return &configUseCase{
		repo:      repo,
		encryptor: encryptor,
		cache:     configCache,
		defaults:  defaults,
		logger:    logger,
	}
}

func (uc *configUseCase) CreateConfig(
	ctx context.Context,
	tenantID uuid.UUID,
	key domain.Key,
	value domain.Value,
) (*domain.ConfigMetadata, error) {
	return uc.write(ctx, tenantID, key, value)
}

func (uc *configUseCase) UpdateConfig(
	ctx context.Context,
	tenantID uuid.UUID,
	key domain.Key,
	value domain.Value,
) (*domain.ConfigMetadata, error) {
	return uc.write(ctx, tenantID, key, value)
}

// write classifies and persists value, then invalidates the cache everywhere.
// Create and update share it: the repository upserts on (tenant, key).
func (uc *configUseCase) write(
	ctx context.Context,
	tenantID uuid.UUID,
	key domain.Key,
	value domain.Value,
) (*domain.ConfigMetadata, error) {
	if !tenantDomain.CanAccess(ctx, tenantID) {
		return nil, crossTenantError(ctx, tenantID)
	}
	if !key.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownConfigKey, key)
	}
	if value == nil || value.ConfigKey() != key {
		return nil, fmt.Errorf("%w: value does not belong to %s", domain.ErrInvalidConfigValue, key)
	}

	raw, err := domain.EncodeValue(value)
	if err != nil {
		return nil, err
	}

	record := &domain.ConfigRecord{
		TenantID:  tenantID,
		Key:       key,
		UpdatedAt: time.Now().UTC(),
	}
	if key.Encrypted() {
		envelope, err := uc.encryptor.EncryptEnvelope(raw)
		cryptoDomain.Zero(raw)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to encrypt config")
		}
		record.SecretCiphertext = envelope.Ciphertext
		record.WrappedDek = envelope.WrappedDek
	} else {
		record.ValuePlain = raw
	}

	if err := uc.repo.Upsert(ctx, record); err != nil {
		return nil, err
	}

	uc.cache.SetTenantConfig(ctx, tenantID, string(key), value, cache.SetOptions{Broadcast: true})

	metadata := record.Metadata()
	return &metadata, nil
}

func (uc *configUseCase) GetConfig(
	ctx context.Context,
	tenantID uuid.UUID,
	key domain.Key,
	useCache bool,
) (domain.Value, error) {
	if !uc.readAllowed(ctx, tenantID, "get_config") {
		return nil, nil
	}
	if !key.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownConfigKey, key)
	}
	return uc.getConfig(ctx, tenantID, key, useCache)
}

func (uc *configUseCase) getConfig(
	ctx context.Context,
	tenantID uuid.UUID,
	key domain.Key,
	useCache bool,
) (domain.Value, error) {
	if useCache {
		if v, found := uc.cache.GetTenantConfig(ctx, tenantID, string(key)); found {
			return v, nil
		}
	}

	token := uc.cache.Snapshot(tenantID)
	record, err := uc.repo.Get(ctx, tenantID, key)
	if err != nil {
		if errors.Is(err, domain.ErrConfigNotFound) {
			return nil, nil
		}
		return nil, err
	}

	value, err := uc.decode(record)
	if err != nil {
		uc.logger.Error("failed to read config",
			slog.String("tenant_id", tenantID.String()),
			slog.String("key", string(key)),
			slog.Any("error", err),
		)
		return nil, nil
	}

	uc.cache.PopulateTenantConfig(ctx, token, string(key), value)
	return value, nil
}

func (uc *configUseCase) GetMultipleConfigs(
	ctx context.Context,
	tenantID uuid.UUID,
	keys []domain.Key,
	opts BatchOptions,
) (*domain.BatchResult, error) {
	unique := make([]domain.Key, 0, len(keys))
	seen := make(map[domain.Key]struct{}, len(keys))
	for _, k := range keys {
		if !k.Valid() {
			return nil, fmt.Errorf("%w: %q", domain.ErrUnknownConfigKey, k)
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		unique = append(unique, k)
	}

	result := &domain.BatchResult{Values: make(map[domain.Key]domain.Value, len(unique))}
	for _, k := range unique {
		result.Values[k] = nil
	}
	if !uc.readAllowed(ctx, tenantID, "get_multiple_configs") {
		return result, nil
	}

	records, err := uc.repo.GetMany(ctx, tenantID, unique)
	if err != nil {
		return nil, err
	}

	found := make(map[domain.Key]bool, len(records))
	for _, record := range records {
		found[record.Key] = true

		if record.Key.Encrypted() && !opts.DecryptSecrets {
			result.Values[record.Key] = domain.MaskedSecret{Key: record.Key, SecretSet: true}
			continue
		}
		value, err := uc.decode(record)
		if err != nil {
			uc.logger.Error("failed to read config in batch",
				slog.String("tenant_id", tenantID.String()),
				slog.String("key", string(record.Key)),
				slog.Any("error", err),
			)
			continue
		}
		result.Values[record.Key] = value
	}

	for _, k := range unique {
		if found[k] {
			continue
		}
		if k.Encrypted() {
			if !opts.DecryptSecrets {
				result.Values[k] = domain.MaskedSecret{Key: k, SecretSet: false}
			}
			continue
		}
		if opts.UseEnvDefaults {
			if v, ok := uc.defaults.Value(k); ok {
				result.Values[k] = v
				result.DefaultsUsed = append(result.DefaultsUsed, k)
			}
		}
	}

	return result, nil
}

func (uc *configUseCase) DeleteConfig(ctx context.Context, tenantID uuid.UUID, key domain.Key) (bool, error) {
	if !tenantDomain.CanAccess(ctx, tenantID) {
		return false, crossTenantError(ctx, tenantID)
	}
	if !key.Valid() {
		return false, fmt.Errorf("%w: %q", domain.ErrUnknownConfigKey, key)
	}

	deleted, err := uc.repo.Delete(ctx, tenantID, key)
	if err != nil {
		return false, err
	}
	if deleted {
		uc.cache.DeleteTenantConfig(ctx, tenantID, string(key))
	}
	return deleted, nil
}

func (uc *configUseCase) ListConfigs(ctx context.Context, tenantID uuid.UUID) ([]domain.ConfigMetadata, error) {
	if !uc.readAllowed(ctx, tenantID, "list_configs") {
		return nil, nil
	}

	records, err := uc.repo.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	metadata := make([]domain.ConfigMetadata, 0, len(records))
	for _, r := range records {
		metadata = append(metadata, r.Metadata())
	}
	return metadata, nil
}

func (uc *configUseCase) GetBrandingConfig(ctx context.Context, tenantID uuid.UUID) (*domain.BrandingConfig, error) {
	if !uc.readAllowed(ctx, tenantID, "get_branding_config") {
		return nil, nil
	}

	branding := &domain.BrandingConfig{}
	for _, k := range domain.BrandingKeys() {
		value, err := uc.getConfig(ctx, tenantID, k, true)
		if err != nil {
			return nil, err
		}
		switch v := value.(type) {
		case *domain.BrandingIdentity:
			branding.Identity = *v
		case *domain.BrandingColors:
			branding.Colors = *v
		case *domain.BrandingLogo:
			branding.Logo = *v
		default:
			branding.Missing = append(branding.Missing, k)
		}
	}

	if len(branding.Missing) == len(domain.BrandingKeys()) {
		return nil, fmt.Errorf("%w: tenant %s", domain.ErrBrandingConfigMissing, tenantID)
	}
	return branding, nil
}

func (uc *configUseCase) GetIntegrationConfig(
	ctx context.Context,
	tenantID uuid.UUID,
	key domain.Key,
) (domain.Value, error) {
	if !key.Encrypted() {
		return nil, fmt.Errorf("%w: %s is not an integration key", domain.ErrUnknownConfigKey, key)
	}
	value, err := uc.GetConfig(ctx, tenantID, key, true)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrIntegrationConfigMissing, key)
	}
	return value, nil
}

func (uc *configUseCase) PlatformBranding() domain.BrandingConfig {
	return uc.defaults.Branding()
}

func (uc *configUseCase) decode(record *domain.ConfigRecord) (domain.Value, error) {
	if !record.Key.Encrypted() {
		return domain.DecodeValue(record.Key, record.ValuePlain)
	}

	plaintext, err := uc.encryptor.DecryptEnvelope(record.SecretCiphertext, record.WrappedDek)
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(plaintext)
	return domain.DecodeValue(record.Key, plaintext)
}

func (uc *configUseCase) readAllowed(ctx context.Context, tenantID uuid.UUID, operation string) bool {
	if tenantDomain.CanAccess(ctx, tenantID) {
		return true
	}
	current, _ := tenantDomain.FromContext(ctx)
	uc.logger.Warn("cross-tenant read refused",
		slog.String("operation", operation),
		slog.String("current_tenant_id", current.String()),
		slog.String("target_tenant_id", tenantID.String()),
	)
	return false
}

// crossTenantError builds the write refusal for target, naming the bound tenant.
func crossTenantError(ctx context.Context, target uuid.UUID) error {
	current, _ := tenantDomain.FromContext(ctx)
	return fmt.Errorf("%w: bound to %s, target %s", domain.ErrCrossTenantAccessDenied, current, target)
}
