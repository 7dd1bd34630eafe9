package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/openmined/docsync/internal/db"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			if cfg.DB.Driver == db.DriverSqlite {
				if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
					return fmt.Errorf("create data dir: %w", err)
				}
			}

			database, err := db.Open(cfg.DB.Driver, cfg.DBPath(), cfg.DB.DSN)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer database.Close()

			if err := db.Migrate(cmd.Context(), database); err != nil {
				return err
			}
			slog.Info("migrations applied", "driver", cfg.DB.Driver)
			return nil
		},
	}
}
