package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vigilhq/vigil/config"
	"github.com/vigilhq/vigil/db"
	"github.com/vigilhq/vigil/errors"
	"github.com/vigilhq/vigil/logger"
	"github.com/vigilhq/vigil/notify"
	"github.com/vigilhq/vigil/rules"
	"github.com/vigilhq/vigil/sched"
	"github.com/vigilhq/vigil/server"
	"github.com/vigilhq/vigil/source"
)

// ServeCmd runs the Vigil daemon: job scheduler plus management API
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and management API",
	Long: `Run Vigil in foreground mode.

The daemon:
- scans the trigger inventory and runs one evaluation loop per trigger
- diffs data source query results against the last observed state
- generates and sends notifications for NEW / CHANGED / REMOVED rows
- serves the management HTTP API for inventory CRUD

Runs until interrupted (Ctrl+C); shutdown waits for in-flight cycles.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	database, err := db.Open(cfg.Database.Path, logger.Logger)
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	if err := db.Migrate(database, logger.Logger); err != nil {
		return errors.Wrap(err, "failed to migrate database")
	}

	engine := rules.NewEngine(rules.NewStateStore(database), source.NewFactory(), logger.Logger)
	generator := notify.NewOpenAIGenerator(cfg.OpenAI, logger.Logger)
	sender := notify.NewLogEmailSender(logger.Logger)

	scheduler := sched.NewScheduler(
		sched.NewSQLInventory(database),
		engine,
		generator,
		sender,
		sched.NewExecutionStore(database),
		sched.Config{
			ScanInterval: time.Duration(cfg.Scheduler.ScanIntervalSeconds) * time.Second,
			MaxWorkers:   cfg.Scheduler.MaxWorkers,
		},
		logger.Logger,
	)
	scheduler.Start()

	api := server.NewServer(database, scheduler, cfg.Server.Port, logger.Logger)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- api.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Logger.Infow("Shutting down", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			scheduler.Stop()
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := api.Shutdown(shutdownCtx); err != nil {
		logger.Logger.Warnw("Management API shutdown failed", "error", err)
	}
	scheduler.Stop()

	return nil
}

// loadConfig honors the global --config flag, falling back to the default
// search path.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}
