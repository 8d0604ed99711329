package commands

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"

	cryptoDomain "github.com/allisson/tenantconfig/internal/crypto/domain"
	cryptoService "github.com/allisson/tenantconfig/internal/crypto/service"
)

// RunGenerateKEK prints a fresh KEK_PRIMARY for a new deployment. With a KMS
// key URI the value is wrapped by the KMS so only the ciphertext reaches the
// environment.
func RunGenerateKEK(
	ctx context.Context,
	kmsService cryptoService.KMSService,
	logger *slog.Logger,
	w io.Writer,
	kmsProvider, kmsKeyURI string,
) error {
	key, err := cryptoDomain.GenerateKey()
	if err != nil {
		return err
	}
	defer cryptoDomain.Zero(key)

	value := hex.EncodeToString(key)
	if kmsKeyURI != "" {
		wrapped, err := wrapWithKMS(ctx, kmsService, logger, kmsKeyURI, value)
		if err != nil {
			return err
		}
		value = wrapped[0]
	}

	_, _ = fmt.Fprintln(w, "# Copy these environment variables to your .env file or secrets manager")
	if kmsKeyURI != "" {
		_, _ = fmt.Fprintf(w, "KMS_PROVIDER=\"%s\"\n", kmsProvider)
		_, _ = fmt.Fprintf(w, "KMS_KEY_URI=\"%s\"\n", kmsKeyURI)
	}
	_, _ = fmt.Fprintf(w, "KEK_PRIMARY=\"%s\"\n", value)

	logger.Info("KEK generated",
		slog.String("fingerprint", cryptoDomain.Fingerprint(key)),
		slog.Bool("kms", kmsKeyURI != ""),
	)
	return nil
}

// wrapWithKMS wraps hex encoded keys under the KMS key at uri. Empty keys stay empty.
func wrapWithKMS(
	ctx context.Context,
	kmsService cryptoService.KMSService,
	logger *slog.Logger,
	uri string,
	keys ...string,
) ([]string, error) {
	keeper, err := kmsService.OpenKeeper(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := keeper.Close(); closeErr != nil {
			logger.Warn("failed to close KMS keeper", slog.Any("error", closeErr))
		}
	}()

	out := make([]string, len(keys))
	for i, keyHex := range keys {
		if keyHex == "" {
			continue
		}
		if out[i], err = cryptoService.WrapKEK(ctx, keeper, keyHex); err != nil {
			return nil, err
		}
	}
	return out, nil
}
