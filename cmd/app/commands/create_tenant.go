package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	tenantUseCase "github.com/allisson/tenantconfig/internal/tenant/usecase"
)

// RunCreateTenant registers a tenant. An empty datasource places it on the
// shared primary database.
func RunCreateTenant(
	ctx context.Context,
	tenants tenantUseCase.UseCase,
	logger *slog.Logger,
	w io.Writer,
	name, datasource, format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	tenant, err := tenants.CreateTenant(ctx, tenantUseCase.CreateTenantInput{Name: name, Datasource: datasource})
	if err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}

	if format == "json" {
		if err := writeJSON(w, map[string]any{
			"id":         tenant.ID.String(),
			"name":       tenant.Name,
			"datasource": tenant.Datasource,
		}); err != nil {
			return err
		}
	} else {
		_, _ = fmt.Fprintln(w, "Tenant created successfully")
		_, _ = fmt.Fprintf(w, "ID: %s\n", tenant.ID)
		_, _ = fmt.Fprintf(w, "Name: %s\n", tenant.Name)
		_, _ = fmt.Fprintf(w, "Datasource: %s\n", tenant.Datasource)
	}

	logger.Info("tenant created", slog.String("tenant_id", tenant.ID.String()))
	return nil
}
