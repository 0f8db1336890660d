package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/database"
)

func newMigrateCmd(envFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the host database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(cmd.Context(), *envFile, func(a *app) error {
				return a.migrations().Up(a.db.DB.DB, a.cfg.DatabaseName)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations, one step by default",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid steps %q: %w", args[0], err)
				}
				steps = n
			}
			return withDatabase(cmd.Context(), *envFile, func(a *app) error {
				return a.migrations().Down(a.db.DB.DB, a.cfg.DatabaseName, steps)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "latest",
		Short: "Print the newest migration version on disk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*envFile)
			if err != nil {
				return err
			}
			v, err := database.LatestVersion(cfg.DatabaseMigrationFolderPath)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	})

	return cmd
}

// withDatabase starts only the database dependency and runs fn against it
func withDatabase(ctx context.Context, envFile string, fn func(a *app) error) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}

	zapLogger, logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = zapLogger.Sync() }()

	db, err := database.Open(ctx, database.Options{
		Driver: cfg.DatabaseDriver,
		DSN:    cfg.DatabaseURL(),
	}, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(&app{cfg: cfg, logger: logger, zap: zapLogger, db: db})
}
