package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vigilhq/vigil/cmd/vigil/commands"
	"github.com/vigilhq/vigil/logger"
)

var rootCmd = &cobra.Command{
	Use:   "vigil",
	Short: "Vigil - scheduled change detection and notification",
	Long: `Vigil watches external data sources for changes.

Rules describe what to query and which rows matter; triggers group rules
under a cron schedule and an action. On each cycle Vigil diffs the current
query results against the last observed state and notifies about NEW,
CHANGED, and REMOVED rows.

Examples:
  vigil serve              # Run the scheduler and management API
  vigil db migrate         # Apply pending database migrations
  vigil version            # Show build information`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonLogs); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		verbosity, _ := cmd.Flags().GetCount("verbose")
		return logger.SetVerbosity(verbosity)
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit structured JSON logs")
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default: vigil.toml)")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
