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

// KeyStager stages the next KEK. *rotation.Job implements it.
type KeyStager interface {
	StageNewKey(ctx context.Context) ([]byte, error)
}

// RunStageKEK generates the next KEK and prints it as a staged secondary.
// Every instance must load it and restart before rotate-keys runs, otherwise
// records rewrapped under it are unreadable on instances that lack it.
func RunStageKEK(
	ctx context.Context,
	stager KeyStager,
	kmsService cryptoService.KMSService,
	logger *slog.Logger,
	w io.Writer,
	kmsKeyURI string,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	key, err := stager.StageNewKey(ctx)
	if err != nil {
		return fmt.Errorf("failed to stage key: %w", err)
	}
	defer cryptoDomain.Zero(key)
	fingerprint := cryptoDomain.Fingerprint(key)

	value := hex.EncodeToString(key)
	if kmsKeyURI != "" {
		wrapped, err := wrapWithKMS(ctx, kmsService, logger, kmsKeyURI, value)
		if err != nil {
			return err
		}
		value = wrapped[0]
	}

	if format == "json" {
		if err := writeJSON(w, map[string]any{
			"staged_key_fingerprint": fingerprint,
			"env": map[string]string{
				"KEK_SECONDARY":      value,
				"KEK_SECONDARY_ROLE": "staged",
			},
		}); err != nil {
			return err
		}
	} else {
		_, _ = fmt.Fprintln(w, "# Load these values on every instance and restart them, then run rotate-keys:")
		_, _ = fmt.Fprintf(w, "KEK_SECONDARY=\"%s\"\n", value)
		_, _ = fmt.Fprintln(w, "KEK_SECONDARY_ROLE=\"staged\"")
	}

	logger.Info("KEK staged",
		slog.String("fingerprint", fingerprint),
		slog.Bool("kms", kmsKeyURI != ""),
	)
	return nil
}
