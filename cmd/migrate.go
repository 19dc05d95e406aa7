package cmd

import (
	"database/sql"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/kestrelsched/kestrel/internal/config"
	"github.com/kestrelsched/kestrel/internal/logging"
	"github.com/kestrelsched/kestrel/internal/store/pg"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending schema migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDB(cmd, func(db *sql.DB) error {
			if err := pg.MigrateUp(db); err != nil {
				return err
			}
			slog.Info("migrations applied")
			return nil
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Revert the most recently applied migration",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDB(cmd, func(db *sql.DB) error {
			if err := pg.MigrateDown(db); err != nil {
				return err
			}
			slog.Info("migration reverted")
			return nil
		})
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
}

func withDB(cmd *cobra.Command, fn func(db *sql.DB) error) error {
	watcher, err := config.Load(configPath, envPath)
	if err != nil {
		return err
	}
	cfg := watcher.Current()
	logging.Init(cfg.LogFormat, cfg.LogLevel)

	db, err := pg.Open(cmd.Context(), cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}
