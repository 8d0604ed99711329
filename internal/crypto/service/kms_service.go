package service

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"gocloud.dev/secrets"

	cryptoDomain "github.com/allisson/tenantconfig/internal/crypto/domain"

	_ "gocloud.dev/secrets/awskms"
	_ "gocloud.dev/secrets/azurekeyvault"
	_ "gocloud.dev/secrets/gcpkms"
	_ "gocloud.dev/secrets/hashivault"
	_ "gocloud.dev/secrets/localsecrets"
)

// KMSKeeper is the subset of *secrets.Keeper used to protect KEK env values.
type KMSKeeper interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
	Close() error
}

// KMSService opens keepers from gocloud.dev secrets URIs
// (awskms://, gcpkms://, azurekeyvault://, hashivault://, base64key://).
type KMSService interface {
	OpenKeeper(ctx context.Context, keyURI string) (KMSKeeper, error)
}

type kmsService struct{}

// NewKMSService creates a KMSService.
func NewKMSService() KMSService {
	return &kmsService{}
}

func (k *kmsService) OpenKeeper(ctx context.Context, keyURI string) (KMSKeeper, error) {
	keeper, err := secrets.OpenKeeper(ctx, keyURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open KMS keeper: %w", err)
	}
	return keeper, nil
}

// UnwrapKEK turns a KMS protected env value (base64 ciphertext) into the hex KEK
// that KeyMaterial expects. Empty input stays empty.
func UnwrapKEK(ctx context.Context, keeper KMSKeeper, encoded string) (string, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return "", nil
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: KMS wrapped key is not base64: %v", cryptoDomain.ErrInvalidKeyEncoding, err)
	}
	key, err := keeper.Decrypt(ctx, ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt KEK with KMS: %w", err)
	}
	defer cryptoDomain.Zero(key)
	if len(key) != cryptoDomain.KeySize {
		return "", cryptoDomain.ErrInvalidKeySize
	}
	return hex.EncodeToString(key), nil
}

// WrapKEK is the inverse of UnwrapKEK, used when printing new keys for operators.
func WrapKEK(ctx context.Context, keeper KMSKeeper, keyHex string) (string, error) {
	key, err := cryptoDomain.DecodeKeyHex(keyHex)
	if err != nil {
		return "", err
	}
	defer cryptoDomain.Zero(key)
	ciphertext, err := keeper.Encrypt(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt KEK with KMS: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}
