package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/VenGr0/hr-analytics-bot/internal/database"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the query history schema",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runMigrate(cmd, database.Up)
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back every migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runMigrate(cmd, database.Down)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the applied schema version",
			Args:  cobra.NoArgs,
			RunE:  runMigrateVersion,
		},
	)

	return cmd
}

func migrationConfig(cmd *cobra.Command) (database.MigrationConfig, error) {
	cfg, err := loadConfig(cmd.Context())
	if err != nil {
		return database.MigrationConfig{}, err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Connecting to database: %s@%s:%s/%s\n",
		cfg.Database.Username, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)

	return database.MigrationConfig{
		DatabaseURL:    cfg.Database.URL(),
		MigrationsPath: cfg.History.MigrationDir,
	}, nil
}

func runMigrate(cmd *cobra.Command, direction database.Direction) error {
	mc, err := migrationConfig(cmd)
	if err != nil {
		return err
	}

	if err := database.Migrate(mc, direction); err != nil {
		return err
	}

	color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "✓ Migrations %s completed\n", direction)
	return nil
}

func runMigrateVersion(cmd *cobra.Command, _ []string) error {
	mc, err := migrationConfig(cmd)
	if err != nil {
		return err
	}

	v, dirty, err := database.Version(mc)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Schema version: %d\n", v)
	if dirty {
		color.New(color.FgYellow).Fprintln(out, "The last migration failed halfway; fix it and force the version")
	}
	return nil
}
