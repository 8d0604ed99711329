package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/allisson/tenantconfig/internal/app"
	"github.com/allisson/tenantconfig/internal/config"
)

const shutdownTimeout = 30 * time.Second

// starter is implemented by the API and metrics servers.
type starter interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// RunServer starts the admin API, and the metrics server when enabled, and
// blocks until SIGINT/SIGTERM or a server failure. Every datasource is probed
// once at startup so an unreachable tenant database shows up in the logs
// before the first request. A retiring KEK_SECONDARY is scheduled for removal
// at its expiry.
func RunServer(ctx context.Context, version string) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	container := app.NewContainer(cfg)
	logger := container.Logger()
	logger.Info("starting server", slog.String("version", version))
	defer closeContainer(container, logger)

	server, err := container.HTTPServer()
	if err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}
	servers := []starter{server}
	if cfg.MetricsEnabled {
		metricsServer, err := container.MetricsServer()
		if err != nil {
			return fmt.Errorf("failed to initialize metrics server: %w", err)
		}
		servers = append(servers, metricsServer)
	}

	pool, err := container.Preflight()
	if err != nil {
		return err
	}
	registry, err := container.Datasources()
	if err != nil {
		return err
	}
	for name, probeErr := range pool.ProbeAll(ctx, registry.All()) {
		logger.Warn("datasource unavailable at startup", slog.String("datasource", name), slog.Any("error", probeErr))
	}

	job, err := container.RotationJob()
	if err != nil {
		return fmt.Errorf("failed to initialize rotation job: %w", err)
	}
	if err := job.ArmRetirement(ctx); err != nil {
		logger.Warn("failed to schedule retiring key removal", slog.Any("error", err))
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return serve(ctx, logger, servers...)
}

// serve runs every server until ctx is done or one of them fails, then shuts
// all of them down.
func serve(ctx context.Context, logger *slog.Logger, servers ...starter) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range servers {
		g.Go(func() error {
			return s.Start(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down servers")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		var shutdownErrors []error
		for _, s := range servers {
			if err := s.Shutdown(shutdownCtx); err != nil {
				shutdownErrors = append(shutdownErrors, err)
			}
		}
		return errors.Join(shutdownErrors...)
	})
	return g.Wait()
}
