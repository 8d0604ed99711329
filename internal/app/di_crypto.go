package app

import (
	"context"
	"fmt"

	cryptoDomain "github.com/allisson/tenantconfig/internal/crypto/domain"
	cryptoService "github.com/allisson/tenantconfig/internal/crypto/service"
)

// KMSService returns the KMS service.
func (c *Container) KMSService() cryptoService.KMSService {
	c.kmsServiceInit.Do(func() {
		c.kmsService = cryptoService.NewKMSService()
	})
	return c.kmsService
}

// KeyMaterial returns the process KEKs loaded from KEK_PRIMARY and KEK_SECONDARY.
func (c *Container) KeyMaterial() (*cryptoDomain.KeyMaterial, error) {
	var err error
	c.keyMaterialInit.Do(func() {
		c.keyMaterial, err = c.initKeyMaterial()
		if err != nil {
			c.initErrors["keyMaterial"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["keyMaterial"]; exists {
		return nil, storedErr
	}
	return c.keyMaterial, nil
}

// EnvelopeService returns the envelope encryption service.
func (c *Container) EnvelopeService() (*cryptoService.EnvelopeService, error) {
	var err error
	c.envelopeInit.Do(func() {
		c.envelope, err = c.initEnvelopeService()
		if err != nil {
			c.initErrors["envelope"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["envelope"]; exists {
		return nil, storedErr
	}
	return c.envelope, nil
}

// initKeyMaterial loads the KEKs. With KMS_KEY_URI set the env values are KMS
// ciphertexts and are unwrapped before use.
func (c *Container) initKeyMaterial() (*cryptoDomain.KeyMaterial, error) {
	role, err := cryptoDomain.ParseSecondaryRole(c.config.KEKSecondaryRole)
	if err != nil {
		return nil, err
	}

	primaryHex, secondaryHex := c.config.KEKPrimary, c.config.KEKSecondary
	if c.config.KMSKeyURI != "" {
		primaryHex, secondaryHex, err = c.unwrapKEKs(context.Background(), primaryHex, secondaryHex)
		if err != nil {
			return nil, err
		}
	}

	keys, err := cryptoDomain.LoadKeyMaterial(primaryHex, secondaryHex, role)
	if err != nil {
		return nil, fmt.Errorf("failed to load key material: %w", err)
	}
	c.Logger().Info("key material loaded",
		"primary_fingerprint", cryptoDomain.Fingerprint(keys.Primary()),
		"kms_provider", c.config.KMSProvider,
	)
	return keys, nil
}

func (c *Container) unwrapKEKs(ctx context.Context, primary, secondary string) (string, string, error) {
	keeper, err := c.KMSService().OpenKeeper(ctx, c.config.KMSKeyURI)
	if err != nil {
		return "", "", err
	}
	defer func() {
		if closeErr := keeper.Close(); closeErr != nil {
			c.Logger().Warn("failed to close KMS keeper", "error", closeErr)
		}
	}()

	primaryHex, err := cryptoService.UnwrapKEK(ctx, keeper, primary)
	if err != nil {
		return "", "", fmt.Errorf("KEK_PRIMARY: %w", err)
	}
	secondaryHex, err := cryptoService.UnwrapKEK(ctx, keeper, secondary)
	if err != nil {
		return "", "", fmt.Errorf("KEK_SECONDARY: %w", err)
	}
	return primaryHex, secondaryHex, nil
}

func (c *Container) initEnvelopeService() (*cryptoService.EnvelopeService, error) {
	keys, err := c.KeyMaterial()
	if err != nil {
		return nil, fmt.Errorf("failed to get key material for envelope service: %w", err)
	}
	alg, err := cryptoDomain.ParseAlgorithm(c.config.CryptoAlgorithm)
	if err != nil {
		return nil, err
	}
	return cryptoService.NewEnvelopeService(keys, alg, cryptoService.NewAEADManager()), nil
}
