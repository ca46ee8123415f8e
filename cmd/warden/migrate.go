package main

import (
	"queue-warden/internal/config"
	"queue-warden/internal/storage"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, err := config.BuildLogger(cfg.LogLevel, cfg.LogFile)
			if err != nil {
				return err
			}
			defer func() {
				_ = logger.Sync()
			}()

			store, err := storage.Open(cfg.Database.Driver, cfg.Database.DSN)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Migrate(); err != nil {
				return err
			}
			logger.Info("migrations applied", zap.String("driver", cfg.Database.Driver))
			return nil
		},
	}
}
