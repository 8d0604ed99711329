package domain

import (
	"time"

	"github.com/google/uuid"
)

// ConfigRecord is a persisted tenant configuration row. Plain keys populate
// ValuePlain; encrypted keys populate SecretCiphertext and WrappedDek. Never both.
type ConfigRecord struct {
	TenantID         uuid.UUID
	Key              Key
	ValuePlain       []byte
	SecretCiphertext string
	WrappedDek       string
	UpdatedAt        time.Time
}

// Validate checks the populated columns against the key classification.
func (r *ConfigRecord) Validate() error {
	if !r.Key.Valid() {
		return ErrUnknownConfigKey
	}
	hasPlain := len(r.ValuePlain) > 0
	hasSecret := r.SecretCiphertext != "" && r.WrappedDek != ""
	partialSecret := (r.SecretCiphertext != "") != (r.WrappedDek != "")

	if partialSecret {
		return ErrInvalidRecord
	}
	if r.Key.Encrypted() {
		if !hasSecret || hasPlain {
			return ErrInvalidRecord
		}
		return nil
	}
	if !hasPlain || hasSecret {
		return ErrInvalidRecord
	}
	return nil
}

// ConfigMetadata describes a record without exposing its value.
type ConfigMetadata struct {
	Key         Key
	HasValue    bool
	IsEncrypted bool
	UpdatedAt   time.Time
}

// Metadata returns the record's metadata.
func (r *ConfigRecord) Metadata() ConfigMetadata {
	return ConfigMetadata{
		Key:         r.Key,
		HasValue:    len(r.ValuePlain) > 0 || r.SecretCiphertext != "",
		IsEncrypted: r.Key.Encrypted(),
		UpdatedAt:   r.UpdatedAt,
	}
}

// GlobalConfigRecord is a platform-scope configuration row. Keys are free-form;
// the retired-key registry is stored here as a plain value.
type GlobalConfigRecord struct {
	Key              string
	ValuePlain       []byte
	SecretCiphertext string
	WrappedDek       string
	UpdatedAt        time.Time
}

// BatchResult is the outcome of a multi-key read. Values holds one entry per
// requested key; a nil entry means absent or unreadable. Encrypted values
// appear as MaskedSecret unless decryption was requested.
type BatchResult struct {
	Values       map[Key]Value
	DefaultsUsed []Key
}

// BrandingConfig is the composed branding of a tenant.
type BrandingConfig struct {
	Identity BrandingIdentity `json:"identity"`
	Colors   BrandingColors   `json:"colors"`
	Logo     BrandingLogo     `json:"logo"`
	// Missing lists branding keys the tenant has not set. Their parts stay zero.
	Missing []Key `json:"missing,omitempty"`
}
