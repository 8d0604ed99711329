package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// RetiredKeyCleaner prunes the retired key registry. *rotation.Job implements it.
type RetiredKeyCleaner interface {
	CleanupExpiredKeys(ctx context.Context) (int, error)
}

// RunCleanupExpiredKeys drops retired keys whose grace period has elapsed.
func RunCleanupExpiredKeys(
	ctx context.Context,
	cleaner RetiredKeyCleaner,
	logger *slog.Logger,
	w io.Writer,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	removed, err := cleaner.CleanupExpiredKeys(ctx)
	if err != nil {
		return fmt.Errorf("failed to clean up expired keys: %w", err)
	}

	if format == "json" {
		if err := writeJSON(w, map[string]any{"removed": removed}); err != nil {
			return err
		}
	} else {
		_, _ = fmt.Fprintf(w, "Removed %d expired key(s) from the retired key registry\n", removed)
	}

	logger.Info("expired keys cleaned up", slog.Int("removed", removed))
	return nil
}
