package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/allisson/tenantconfig/internal/database"
)

// DatasourceProber probes datasources. *preflight.Pool implements it.
type DatasourceProber interface {
	ProbeAll(ctx context.Context, sources []*database.Datasource) map[string]error
}

// ErrDatasourcesUnavailable is returned when at least one probe failed.
var ErrDatasourcesUnavailable = errors.New("datasources unavailable")

// RunPreflight probes every registered datasource and reports which ones
// answer. It exits with an error when any probe fails so it can gate deploys.
func RunPreflight(
	ctx context.Context,
	prober DatasourceProber,
	sources []*database.Datasource,
	logger *slog.Logger,
	w io.Writer,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	failures := prober.ProbeAll(ctx, sources)

	names := make([]string, 0, len(sources))
	for _, ds := range sources {
		names = append(names, ds.Name)
	}
	slices.Sort(names)

	if format == "json" {
		result := make(map[string]string, len(names))
		for _, name := range names {
			result[name] = "ok"
			if err, failed := failures[name]; failed {
				result[name] = err.Error()
			}
		}
		if err := writeJSON(w, result); err != nil {
			return err
		}
	} else {
		for _, name := range names {
			if err, failed := failures[name]; failed {
				_, _ = fmt.Fprintf(w, "%s: FAIL (%v)\n", name, err)
				continue
			}
			_, _ = fmt.Fprintf(w, "%s: OK\n", name)
		}
	}

	logger.Info("preflight finished", slog.Int("datasources", len(names)), slog.Int("failed", len(failures)))
	if len(failures) > 0 {
		return fmt.Errorf("%w: %d of %d", ErrDatasourcesUnavailable, len(failures), len(names))
	}
	return nil
}
