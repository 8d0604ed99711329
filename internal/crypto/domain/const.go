package domain

import "fmt"

// KeySize is the size in bytes of every KEK and DEK (256 bits).
const KeySize = 32

// Algorithm represents the AEAD used to seal a value.
//
// Both algorithms use 256-bit keys, 12-byte nonces and 16-byte tags. The
// algorithm name is written as a prefix on every sealed value so records
// written under one algorithm stay readable after CRYPTO_ALGORITHM changes.
type Algorithm string

const (
	// AESGCM is AES-256-GCM. Preferred on CPUs with AES-NI.
	AESGCM Algorithm = "aes-gcm"

	// ChaCha20 is ChaCha20-Poly1305. Preferred where AES hardware support is missing.
	ChaCha20 Algorithm = "chacha20-poly1305"
)

// ParseAlgorithm validates an algorithm name coming from configuration or a sealed value prefix.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case AESGCM, ChaCha20:
		return Algorithm(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, s)
	}
}
