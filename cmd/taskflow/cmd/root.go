package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "taskflow",
	Short: "Task manager API with rotating sessions",
	Long: `taskflow serves the task manager HTTP API: accounts, cookie sessions with
refresh rotation, per-user tasks and a websocket invalidation feed.

Configuration comes from TASKFLOW_* environment variables and an optional .env file.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, keygenCmd)
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
