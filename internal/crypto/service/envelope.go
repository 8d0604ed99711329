package service

import (
	"encoding/base64"
	"fmt"
	"strings"

	cryptoDomain "github.com/allisson/tenantconfig/internal/crypto/domain"
)

var (
	dekAAD   = []byte("tenantconfig:dek")
	fieldAAD = []byte("tenantconfig:kek-field")
)

// KeySource exposes the KEKs used to wrap and unwrap. *cryptoDomain.KeyMaterial implements it.
type KeySource interface {
	Primary() []byte
	Secondary() ([]byte, cryptoDomain.SecondaryRole)
}

// Envelope is an encrypted value as persisted: the payload sealed under a
// per-value DEK and that DEK sealed under the primary KEK.
type Envelope struct {
	Ciphertext string
	WrappedDek string
}

// EnvelopeService implements per-value envelope encryption with primary/secondary
// KEK tolerance on every read.
//
// Sealed values are encoded as "<algorithm>:<base64(nonce || ciphertext)>" so that
// changing the configured algorithm never breaks existing records.
type EnvelopeService struct {
	keys      KeySource
	algorithm cryptoDomain.Algorithm
	aeads     AEADManager
}

// NewEnvelopeService creates an EnvelopeService writing new values with alg.
func NewEnvelopeService(keys KeySource, alg cryptoDomain.Algorithm, aeads AEADManager) *EnvelopeService {
	return &EnvelopeService{keys: keys, algorithm: alg, aeads: aeads}
}

// GenerateKey returns a random 256-bit key.
func (s *EnvelopeService) GenerateKey() ([]byte, error) {
	return cryptoDomain.GenerateKey()
}

// EncryptEnvelope seals plaintext under a fresh DEK and wraps the DEK under the primary KEK.
func (s *EnvelopeService) EncryptEnvelope(plaintext []byte) (Envelope, error) {
	dek, err := cryptoDomain.GenerateKey()
	if err != nil {
		return Envelope{}, err
	}
	defer cryptoDomain.Zero(dek)

	ciphertext, err := s.seal(dek, plaintext, nil)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to encrypt payload: %w", err)
	}

	wrapped, err := s.seal(s.keys.Primary(), dek, dekAAD)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to wrap dek: %w", err)
	}

	return Envelope{Ciphertext: ciphertext, WrappedDek: wrapped}, nil
}

// DecryptEnvelope unwraps the DEK (primary, then secondary) and opens the payload.
func (s *EnvelopeService) DecryptEnvelope(ciphertext, wrappedDek string) ([]byte, error) {
	dek, err := s.unwrapDek(wrappedDek)
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(dek)

	plaintext, err := s.open(dek, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cryptoDomain.ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

// RewrapDek re-seals a wrapped DEK from oldKeyHex to newKeyHex. The payload
// ciphertext is not needed and never touched.
func (s *EnvelopeService) RewrapDek(wrappedDek, oldKeyHex, newKeyHex string) (string, error) {
	return s.rewrap(wrappedDek, oldKeyHex, newKeyHex, dekAAD)
}

// RewrapCiphertext re-seals a value encrypted directly under a KEK (see EncryptWithKEK).
func (s *EnvelopeService) RewrapCiphertext(ciphertext, oldKeyHex, newKeyHex string) (string, error) {
	return s.rewrap(ciphertext, oldKeyHex, newKeyHex, fieldAAD)
}

// EncryptWithKEK seals a small value directly under the primary KEK, bypassing the envelope.
func (s *EnvelopeService) EncryptWithKEK(plaintext []byte) (string, error) {
	return s.seal(s.keys.Primary(), plaintext, fieldAAD)
}

// DecryptWithKEK opens a value sealed by EncryptWithKEK, trying primary then secondary.
func (s *EnvelopeService) DecryptWithKEK(ciphertext string) ([]byte, error) {
	return s.openWithKEKs(ciphertext, fieldAAD)
}

// WrappedUnder reports whether wrappedDek opens under keyHex. Rotation uses it to
// skip records a previous, interrupted run already rewrapped.
func (s *EnvelopeService) WrappedUnder(wrappedDek, keyHex string) bool {
	return s.sealedUnder(wrappedDek, keyHex, dekAAD)
}

// CiphertextUnder is WrappedUnder for values sealed by EncryptWithKEK.
func (s *EnvelopeService) CiphertextUnder(ciphertext, keyHex string) bool {
	return s.sealedUnder(ciphertext, keyHex, fieldAAD)
}

func (s *EnvelopeService) sealedUnder(value, keyHex string, aad []byte) bool {
	key, err := cryptoDomain.DecodeKeyHex(keyHex)
	if err != nil {
		return false
	}
	defer cryptoDomain.Zero(key)
	plaintext, err := s.open(key, value, aad)
	if err != nil {
		return false
	}
	cryptoDomain.Zero(plaintext)
	return true
}

func (s *EnvelopeService) unwrapDek(wrappedDek string) ([]byte, error) {
	return s.openWithKEKs(wrappedDek, dekAAD)
}

func (s *EnvelopeService) openWithKEKs(value string, aad []byte) ([]byte, error) {
	plaintext, err := s.open(s.keys.Primary(), value, aad)
	if err == nil {
		return plaintext, nil
	}
	if secondary, _ := s.keys.Secondary(); secondary != nil {
		if plaintext, secErr := s.open(secondary, value, aad); secErr == nil {
			return plaintext, nil
		}
	}
	return nil, fmt.Errorf("%w: %v", cryptoDomain.ErrDecryptionFailed, err)
}

func (s *EnvelopeService) rewrap(value, oldKeyHex, newKeyHex string, aad []byte) (string, error) {
	oldKey, err := cryptoDomain.DecodeKeyHex(oldKeyHex)
	if err != nil {
		return "", fmt.Errorf("old key: %w", err)
	}
	defer cryptoDomain.Zero(oldKey)
	newKey, err := cryptoDomain.DecodeKeyHex(newKeyHex)
	if err != nil {
		return "", fmt.Errorf("new key: %w", err)
	}
	defer cryptoDomain.Zero(newKey)

	plaintext, err := s.open(oldKey, value, aad)
	if err != nil {
		return "", fmt.Errorf("%w: %v", cryptoDomain.ErrDecryptionFailed, err)
	}
	defer cryptoDomain.Zero(plaintext)

	return s.seal(newKey, plaintext, aad)
}

func (s *EnvelopeService) seal(key, plaintext, aad []byte) (string, error) {
	cipher, err := s.aeads.CreateCipher(key, s.algorithm)
	if err != nil {
		return "", err
	}
	sealed, err := cipher.Seal(plaintext, aad)
	if err != nil {
		return "", err
	}
	return string(s.algorithm) + ":" + base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *EnvelopeService) open(key []byte, value string, aad []byte) ([]byte, error) {
	algName, encoded, ok := strings.Cut(value, ":")
	if !ok {
		return nil, cryptoDomain.ErrMalformedCiphertext
	}
	alg, err := cryptoDomain.ParseAlgorithm(algName)
	if err != nil {
		return nil, err
	}
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cryptoDomain.ErrMalformedCiphertext, err)
	}
	cipher, err := s.aeads.CreateCipher(key, alg)
	if err != nil {
		return nil, err
	}
	return cipher.Open(sealed, aad)
}
