package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"taskflow/cmd/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long:  `Opens the configured stores, then serves HTTP until SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := app.ReadConfig()
		if err != nil {
			return err
		}
		applyServeFlags(cmd, &cfg)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("validating config: %w", err)
		}
		return app.Serve(cmd.Context(), cfg)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (env: TASKFLOW_HTTP_ADDR)")
	serveCmd.Flags().String("log-level", "", "debug, info, warn or error (env: TASKFLOW_LOG_LEVEL)")
	serveCmd.Flags().String("log-format", "", "json or pretty (env: TASKFLOW_LOG_FORMAT)")
	serveCmd.Flags().Bool("migrate", false, "Apply migrations before serving (env: TASKFLOW_AUTO_MIGRATE)")
}

// applyServeFlags lets explicitly set flags win over the environment.
func applyServeFlags(cmd *cobra.Command, cfg *app.Config) {
	f := cmd.Flags()
	if f.Changed("addr") {
		cfg.HTTPAddr, _ = f.GetString("addr")
	}
	if f.Changed("log-level") {
		cfg.LogLevel, _ = f.GetString("log-level")
	}
	if f.Changed("log-format") {
		cfg.LogFormat, _ = f.GetString("log-format")
	}
	if f.Changed("migrate") {
		cfg.AutoMigrate, _ = f.GetBool("migrate")
	}
}
