package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"taskflow/cmd/internal/app"
	"taskflow/cmd/internal/migrate"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database migration commands",
	Long:  `Commands for managing the Postgres schema. Other store drivers need no migrations.`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := databaseConfig(cmd)
		if err != nil {
			return err
		}
		if err := migrate.Up(cmd.Context(), cfg.DatabaseURL, cfg.DatabaseSchema); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		return printVersion(cmd, cfg)
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the applied schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := databaseConfig(cmd)
		if err != nil {
			return err
		}
		return printVersion(cmd, cfg)
	},
}

func init() {
	migrateCmd.PersistentFlags().String("db-url", "", "Database connection URL (env: TASKFLOW_DATABASE_URL)")
	migrateCmd.PersistentFlags().String("schema", "", "Database schema (env: TASKFLOW_DATABASE_SCHEMA)")
	migrateCmd.AddCommand(migrateUpCmd, migrateStatusCmd)
}

func databaseConfig(cmd *cobra.Command) (app.Config, error) {
	cfg, err := app.ReadConfig()
	if err != nil {
		return app.Config{}, err
	}
	f := cmd.Flags()
	if f.Changed("db-url") {
		cfg.DatabaseURL, _ = f.GetString("db-url")
	}
	if f.Changed("schema") {
		cfg.DatabaseSchema, _ = f.GetString("schema")
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return app.Config{}, errors.New("a database URL is required: set --db-url or TASKFLOW_DATABASE_URL")
	}
	return cfg, nil
}

func printVersion(cmd *cobra.Command, cfg app.Config) error {
	v, err := migrate.Version(cmd.Context(), cfg.DatabaseURL, cfg.DatabaseSchema)
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema %s at version %d\n", cfg.DatabaseSchema, v)
	return nil
}
