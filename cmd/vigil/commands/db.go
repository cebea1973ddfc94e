package commands

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vigilhq/vigil/db"
	"github.com/vigilhq/vigil/errors"
	"github.com/vigilhq/vigil/logger"
)

// DbCmd groups database maintenance operations
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the Vigil database",
	Long: `Manage database operations.

Examples:
  vigil db migrate         # Apply pending schema migrations
  vigil db stats           # Show inventory and state counts`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer database.Close()

		if err := db.Migrate(database, logger.Logger); err != nil {
			return errors.Wrap(err, "migration failed")
		}
		fmt.Println("Database is up to date")
		return nil
	},
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show inventory and state counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer database.Close()

		for _, table := range []string{"customers", "datasources", "rules", "triggers", "rule_states", "executions"} {
			var count int
			if err := database.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
				return errors.Wrapf(err, "failed to count %s", table)
			}
			fmt.Printf("%-12s %d\n", table, count)
		}
		return nil
	},
}

func init() {
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatsCmd)
}

// openDatabase opens and migrates the configured database
func openDatabase(cmd *cobra.Command) (*sql.DB, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load configuration")
	}

	database, err := db.Open(cfg.Database.Path, logger.Logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	return database, nil
}
