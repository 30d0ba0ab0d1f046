// Package main is the dungeon application entrypoint.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"dungeon/internal"
	"dungeon/internal/app/apps"
	"dungeon/internal/app/cfg"
	"dungeon/internal/pkg/log"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// CLI command definitions.
var (
	logger logrus.FieldLogger = logrus.StandardLogger()

	rootCmd = &cobra.Command{
		Use:          "dungeon",
		Short:        "UDP session server for a small multiplayer dungeon.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	clientCmd = &cobra.Command{
		Use:   "client",
		Short: "Runs a demo player against a dungeon server.",
		Args:  cobra.NoArgs,
		RunE:  runCmd,
	}

	serverCmd = &cobra.Command{
		Use:   "server",
		Short: "Starts a dungeon session server.",
		Args:  cobra.NoArgs,
		RunE:  runCmd,
	}
)

func newApp(_ context.Context, cmd *cobra.Command, args []string) (apps.App, []string, error) {
	var err error
	var app apps.App
	switch cmd.Name() {
	case "client":
		app, err = apps.NewClientApp(
			cfg.PortFromEnv(),
			cfg.PlayFromEnv(),
		)
		if err != nil {
			return nil, nil, errors.Wrap(err, "new client app failed")
		}
		return app, args, nil
	case "server":
		file, err := cfg.FileFromEnv()
		if err != nil {
			return nil, nil, errors.Wrap(err, "load policy failed")
		}
		app, err = apps.NewServerApp(
			cfg.PortFromEnv(),
			cfg.HealthPortFromEnv(),
			cfg.BindFromEnv(),
			cfg.SweepFromEnv(),
			file,
		)
		if err != nil {
			return nil, nil, errors.Wrap(err, "new server app failed")
		}
		return app, args, nil
	default:
		return nil, nil, fmt.Errorf("unknown command: %s", cmd.Name())
	}
}

func runCmd(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := chainedCheck(
		ctx,
		envCheck,
	); err != nil {
		return errors.Wrap(err, "chained check failed")
	}
	app, args, err := newApp(ctx, cmd, args)
	if err != nil {
		return errors.Wrapf(err, "new %s app failed", cmd.Name())
	}
	return errors.Wrap(app.Run(ctx, args), "run app failed")
}

func envCheck(_ context.Context) error {
	err := internal.ValidateEnv()
	if err != nil {
		return errors.Wrap(err, "validate env failed")
	}
	log.SetLogger(internal.LogLevel)
	return nil
}

func chainedCheck(ctx context.Context, checks ...func(context.Context) error) error {
	for _, check := range checks {
		err := check(ctx)
		if err != nil {
			return err
		}
	}
	return nil
}

func init() {
	err := internal.RegisterCommandFlags(rootCmd, []*internal.Flag{
		&internal.EnvFlag,
		&internal.LogLevelFlag,

		&internal.PortFlag,
	})
	if err != nil {
		logger.Fatalln(err)
	}

	err = internal.RegisterCommandFlags(clientCmd, []*internal.Flag{
		&internal.ClientTickerMSFlag,
		&internal.ClientMovesFlag,
	})
	if err != nil {
		logger.Fatalln(err)
	}

	err = internal.RegisterCommandFlags(serverCmd, []*internal.Flag{
		&internal.BindFlag,
		&internal.HealthPortFlag,
		&internal.ConfigFlag,
		&internal.ServerSweepMSFlag,
	})
	if err != nil {
		logger.Fatalln(err)
	}

	rootCmd.AddCommand(
		clientCmd,
		serverCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Fatal(errors.Wrap(err, "execute root command failed"))
	}
}
