package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/tenantconfig/cmd/app/commands"
	"github.com/allisson/tenantconfig/internal/app"
	"github.com/allisson/tenantconfig/internal/config"
)

func getKeyCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "generate-kek",
			Usage: "Generate a new key-encryption key for KEK_PRIMARY",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "kms-provider",
					Usage: "KMS provider (localsecrets, gcpkms, awskms, azurekeyvault, hashivault)",
				},
				&cli.StringFlag{
					Name:  "kms-key-uri",
					Usage: "KMS key URI; when set the printed key is KMS encrypted",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				return commands.RunGenerateKEK(
					ctx,
					container.KMSService(),
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("kms-provider"),
					cmd.String("kms-key-uri"),
				)
			},
		},
		{
			Name:  "stage-kek",
			Usage: "Generate the next KEK for every instance to load as a staged KEK_SECONDARY",
			Flags: []cli.Flag{formatFlag()},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				job, err := container.RotationJob()
				if err != nil {
					return err
				}

				return commands.RunStageKEK(
					ctx,
					job,
					container.KMSService(),
					container.Logger(),
					commands.DefaultIO().Writer,
					cfg.KMSKeyURI,
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "rotate-keys",
			Usage: "Rewrap every tenant and platform secret under the staged KEK and promote it",
			Flags: []cli.Flag{formatFlag()},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				job, err := container.RotationJob()
				if err != nil {
					return err
				}

				return commands.RunRotateKeys(
					ctx,
					job,
					container.KMSService(),
					container.Logger(),
					commands.DefaultIO().Writer,
					cfg.KMSKeyURI,
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "cleanup-expired-keys",
			Usage: "Remove retired keys whose grace period has elapsed",
			Flags: []cli.Flag{formatFlag()},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				job, err := container.RotationJob()
				if err != nil {
					return err
				}

				return commands.RunCleanupExpiredKeys(
					ctx,
					job,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("format"),
				)
			},
		},
	}
}
