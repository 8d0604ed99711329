package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	cryptoService "github.com/allisson/tenantconfig/internal/crypto/service"
	"github.com/allisson/tenantconfig/internal/rotation"
)

// KeyRotator runs a key rotation. *rotation.Job implements it.
type KeyRotator interface {
	RotateEncryptionKeys(ctx context.Context) (*rotation.Report, error)
}

// ErrRotationIncomplete is returned after a run that could not promote the
// staged key, or a sweep that left records under the retiring key. The
// environment stays as it is so the next run resumes where this one stopped.
var ErrRotationIncomplete = errors.New("key rotation incomplete")

// RunRotateKeys rewraps every DEK under the staged KEK and prints the
// environment the deployment must persist before the next restart. Keys are
// KMS wrapped when kmsKeyURI is set. The staged key itself comes from
// RunStageKEK and has to be loaded by every instance first.
func RunRotateKeys(
	ctx context.Context,
	rotator KeyRotator,
	kmsService cryptoService.KMSService,
	logger *slog.Logger,
	w io.Writer,
	kmsKeyURI string,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	report, err := rotator.RotateEncryptionKeys(ctx)
	if err != nil {
		return fmt.Errorf("failed to rotate keys: %w", err)
	}

	env, err := rotationEnv(ctx, report, kmsService, logger, kmsKeyURI)
	if err != nil {
		return err
	}

	if format == "json" {
		failed := make([]string, 0, len(report.FailedTenants))
		for _, id := range report.FailedTenants {
			failed = append(failed, id.String())
		}
		result := map[string]any{
			"promoted":            report.Promoted,
			"sweep":               report.Sweep,
			"old_key_fingerprint": report.OldKeyFingerprint,
			"new_key_fingerprint": report.NewKeyFingerprint,
			"tenants_rotated":     report.TenantsRotated,
			"tenants_failed":      report.TenantsFailed,
			"failed_tenants":      failed,
			"records_rewrapped":   report.RecordsRewrapped,
			"records_skipped":     report.RecordsSkipped,
			"platform_rewrapped":  report.PlatformRewrapped,
			"platform_failed":     report.PlatformFailed,
		}
		if env != nil {
			result["env"] = env
		}
		if err := writeJSON(w, result); err != nil {
			return err
		}
	} else {
		_, _ = fmt.Fprintf(w, "# Tenants rotated: %d, failed: %d\n", report.TenantsRotated, report.TenantsFailed)
		_, _ = fmt.Fprintf(w, "# Records rewrapped: %d, skipped: %d\n", report.RecordsRewrapped, report.RecordsSkipped)
		_, _ = fmt.Fprintf(w, "# Platform rewrapped: %d, failed: %d\n", report.PlatformRewrapped, report.PlatformFailed)
		for _, id := range report.FailedTenants {
			_, _ = fmt.Fprintf(w, "# Failed tenant: %s\n", id)
		}
		switch {
		case report.Sweep:
			_, _ = fmt.Fprintln(w, "# Records left under the retiring key were moved to the primary. The environment is unchanged.")
		case report.Promoted:
			_, _ = fmt.Fprintln(w, "# New key promoted. Persist these values and restart every instance:")
		default:
			_, _ = fmt.Fprintln(w, "# New key still staged, not promoted. Keep these values and run rotate-keys again:")
		}
		for _, name := range []string{"KEK_PRIMARY", "KEK_SECONDARY", "KEK_SECONDARY_ROLE", "KEK_SECONDARY_EXPIRES_AT"} {
			if value, ok := env[name]; ok {
				_, _ = fmt.Fprintf(w, "%s=\"%s\"\n", name, value)
			}
		}
	}

	logger.Info("key rotation finished",
		slog.Bool("promoted", report.Promoted),
		slog.Bool("sweep", report.Sweep),
		slog.String("new_key_fingerprint", report.NewKeyFingerprint),
		slog.Int("tenants_failed", report.TenantsFailed),
	)

	switch {
	case report.Sweep && (report.TenantsFailed > 0 || report.PlatformFailed > 0):
		return fmt.Errorf("%w: sweep left %d tenant(s) and %d platform record(s) under the retiring key",
			ErrRotationIncomplete, report.TenantsFailed, report.PlatformFailed)
	case !report.Sweep && !report.Promoted:
		return fmt.Errorf("%w: %d tenant(s) and %d platform record(s) failed",
			ErrRotationIncomplete, report.TenantsFailed, report.PlatformFailed)
	}
	return nil
}

// rotationEnv returns the variables to persist after a run, or nil after a sweep.
func rotationEnv(
	ctx context.Context,
	report *rotation.Report,
	kmsService cryptoService.KMSService,
	logger *slog.Logger,
	kmsKeyURI string,
) (map[string]string, error) {
	if report.Sweep {
		return nil, nil
	}

	primary, secondary, role := report.OldKeyHex, report.NewKeyHex, "staged"
	if report.Promoted {
		primary, secondary, role = report.NewKeyHex, report.OldKeyHex, "retiring"
	}
	if kmsKeyURI != "" {
		wrapped, err := wrapWithKMS(ctx, kmsService, logger, kmsKeyURI, primary, secondary)
		if err != nil {
			return nil, err
		}
		primary, secondary = wrapped[0], wrapped[1]
	}

	env := map[string]string{
		"KEK_PRIMARY":        primary,
		"KEK_SECONDARY":      secondary,
		"KEK_SECONDARY_ROLE": role,
	}
	if report.Promoted && !report.RetiringExpiresAt.IsZero() {
		env["KEK_SECONDARY_EXPIRES_AT"] = report.RetiringExpiresAt.UTC().Format(time.RFC3339)
	}
	return env, nil
}
