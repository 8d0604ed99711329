package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/tenantconfig/cmd/app/commands"
	"github.com/allisson/tenantconfig/internal/app"
	"github.com/allisson/tenantconfig/internal/config"
	platformUseCase "github.com/allisson/tenantconfig/internal/platformuser/usecase"
)

func getTenantCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "create-tenant",
			Usage: "Register a new tenant",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "name",
					Aliases:  []string{"n"},
					Required: true,
					Usage:    "Tenant name",
				},
				&cli.StringFlag{
					Name:    "datasource",
					Aliases: []string{"d"},
					Usage:   "Datasource holding the tenant's records (default: primary)",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				tenants, err := container.TenantUseCase()
				if err != nil {
					return err
				}

				return commands.RunCreateTenant(
					ctx,
					tenants,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("name"),
					cmd.String("datasource"),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "create-platform-user",
			Usage: "Create a back office operator account",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "name",
					Aliases:  []string{"n"},
					Required: true,
					Usage:    "Full name",
				},
				&cli.StringFlag{
					Name:     "email",
					Aliases:  []string{"e"},
					Required: true,
					Usage:    "Login email",
				},
				&cli.StringFlag{
					Name:  "mfa-secret",
					Usage: "Optional TOTP seed, stored sealed under the KEK",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				users, err := container.UserUseCase()
				if err != nil {
					return err
				}

				return commands.RunCreatePlatformUser(
					ctx,
					users,
					container.Logger(),
					commands.DefaultIO(),
					platformUseCase.CreateUserInput{
						Name:      cmd.String("name"),
						Email:     cmd.String("email"),
						MFASecret: cmd.String("mfa-secret"),
					},
					cmd.String("format"),
				)
			},
		},
	}
}
