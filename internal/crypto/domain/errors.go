package domain

import (
	"github.com/allisson/tenantconfig/internal/errors"
)

// Cryptographic error definitions. Each wraps a sentinel from internal/errors
// so handlers can map them without knowing about this package.
var (
	// ErrUnsupportedAlgorithm indicates an unknown AEAD name in config or in a sealed value.
	ErrUnsupportedAlgorithm = errors.Wrap(errors.ErrInvalidInput, "unsupported algorithm")

	// ErrInvalidKeySize indicates a key that is not exactly KeySize bytes.
	ErrInvalidKeySize = errors.Wrap(errors.ErrInvalidInput, "invalid key size")

	// ErrInvalidKeyEncoding indicates a KEK that is not valid hex.
	ErrInvalidKeyEncoding = errors.Wrap(errors.ErrInvalidInput, "invalid key encoding")

	// ErrInvalidSecondaryRole indicates a KEK_SECONDARY_ROLE other than staged or retiring.
	ErrInvalidSecondaryRole = errors.Wrap(errors.ErrInvalidInput, "invalid secondary key role")

	// ErrMalformedCiphertext indicates a sealed value that does not follow the "<alg>:<base64>" layout.
	ErrMalformedCiphertext = errors.Wrap(errors.ErrInvalidInput, "malformed ciphertext")

	// ErrDecryptionFailed indicates neither the primary nor the secondary KEK could open a value.
	//
	// Callers on read paths surface this as an absent value, never as partially decrypted data.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrPrimaryKeyMismatch indicates Rotate was called with an old key that is not the current primary.
	ErrPrimaryKeyMismatch = errors.Wrap(errors.ErrConflict, "primary key does not match")

	// ErrNoPrimaryKey indicates key material was requested before KEK_PRIMARY was loaded.
	ErrNoPrimaryKey = errors.Wrap(errors.ErrInvalidInput, "primary key is not configured")
)
