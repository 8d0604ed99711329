package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/tenantconfig/cmd/app/commands"
	"github.com/allisson/tenantconfig/internal/app"
	"github.com/allisson/tenantconfig/internal/config"
	"github.com/allisson/tenantconfig/internal/database"
)

func getSystemCommands(version string) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "server",
			Usage: "Start the HTTP server",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunServer(ctx, version)
			},
		},
		{
			Name:  "migrate",
			Usage: "Run database migrations on the primary and every extra datasource",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				if err := commands.RunMigrations(container.Logger(), cfg.DBDriver, cfg.DBConnectionString); err != nil {
					return err
				}
				extra, err := database.ParseDatasources(cfg.DBExtraDatasources)
				if err != nil {
					return err
				}
				for _, dsn := range extra {
					if err := commands.RunMigrations(container.Logger(), cfg.DBDriver, dsn); err != nil {
						return err
					}
				}
				return nil
			},
		},
		{
			Name:  "preflight",
			Usage: "Probe every datasource through its circuit breaker",
			Flags: []cli.Flag{formatFlag()},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				pool, err := container.Preflight()
				if err != nil {
					return err
				}
				registry, err := container.Datasources()
				if err != nil {
					return err
				}

				return commands.RunPreflight(
					ctx,
					pool,
					registry.All(),
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("format"),
				)
			},
		},
	}
}
