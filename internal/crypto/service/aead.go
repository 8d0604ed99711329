// Package service implements the cryptographic primitives behind tenant config
// encryption: AEAD ciphers, the envelope service and the KMS adapter for KEK material.
package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	cryptoDomain "github.com/allisson/tenantconfig/internal/crypto/domain"
)

// AEAD seals and opens values. Sealed output is nonce || ciphertext || tag.
type AEAD interface {
	Seal(plaintext, aad []byte) ([]byte, error)
	Open(sealed, aad []byte) ([]byte, error)
}

// AEADManager creates ciphers for a key and algorithm.
type AEADManager interface {
	CreateCipher(key []byte, alg cryptoDomain.Algorithm) (AEAD, error)
}

type aeadManager struct{}

// NewAEADManager returns the default AEADManager.
func NewAEADManager() AEADManager {
	return aeadManager{}
}

// CreateCipher returns an AEAD for a 32-byte key.
func (aeadManager) CreateCipher(key []byte, alg cryptoDomain.Algorithm) (AEAD, error) {
	if len(key) != cryptoDomain.KeySize {
		return nil, cryptoDomain.ErrInvalidKeySize
	}

	switch alg {
	case cryptoDomain.AESGCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("failed to create AES cipher: %w", err)
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("failed to create GCM: %w", err)
		}
		return &randomNonceAEAD{aead: gcm}, nil
	case cryptoDomain.ChaCha20:
		c, err := chacha20poly1305.New(key)
		if err != nil {
			return nil, fmt.Errorf("failed to create ChaCha20-Poly1305 cipher: %w", err)
		}
		return &randomNonceAEAD{aead: c}, nil
	default:
		return nil, cryptoDomain.ErrUnsupportedAlgorithm
	}
}

// randomNonceAEAD prefixes every sealed value with a fresh random nonce.
type randomNonceAEAD struct {
	aead cipher.AEAD
}

func (a *randomNonceAEAD) Seal(plaintext, aad []byte) ([]byte, error) {
	nonceSize := a.aead.NonceSize()
	out := make([]byte, nonceSize, nonceSize+len(plaintext)+a.aead.Overhead())
	if _, err := rand.Read(out); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return a.aead.Seal(out, out[:nonceSize], plaintext, aad), nil
}

func (a *randomNonceAEAD) Open(sealed, aad []byte) ([]byte, error) {
	nonceSize := a.aead.NonceSize()
	if len(sealed) < nonceSize+a.aead.Overhead() {
		return nil, cryptoDomain.ErrMalformedCiphertext
	}
	plaintext, err := a.aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], aad)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}
