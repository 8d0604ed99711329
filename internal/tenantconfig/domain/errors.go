package domain

import (
	"github.com/allisson/tenantconfig/internal/errors"
)

var (
	// ErrConfigNotFound indicates no record exists for the tenant and key.
	ErrConfigNotFound = errors.Wrap(errors.ErrNotFound, "config not found")

	// ErrUnknownConfigKey indicates a key outside the closed key set.
	ErrUnknownConfigKey = errors.Wrap(errors.ErrInvalidInput, "unknown config key")

	// ErrInvalidConfigValue indicates a value that cannot be decoded into its key's type.
	ErrInvalidConfigValue = errors.Wrap(errors.ErrInvalidInput, "invalid config value")

	// ErrInvalidRecord indicates a record whose populated columns contradict its key classification.
	ErrInvalidRecord = errors.Wrap(errors.ErrInvalidInput, "config record does not match key classification")

	// ErrCrossTenantAccessDenied indicates a write targeting a tenant other than the bound one.
	ErrCrossTenantAccessDenied = errors.Wrap(errors.ErrForbidden, "cross-tenant access denied")

	// ErrBrandingConfigMissing indicates the tenant has no branding record at all.
	ErrBrandingConfigMissing = errors.NewCoded(errors.ErrNotFound, "BRANDING_CONFIG_MISSING", "branding config missing")

	// ErrIntegrationConfigMissing indicates an integration credential is unset or cannot be decrypted.
	ErrIntegrationConfigMissing = errors.NewCoded(errors.ErrNotFound, "INTEGRATION_CONFIG_MISSING", "integration config missing")
)
