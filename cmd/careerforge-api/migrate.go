package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/careerforge/careerforge/internal/config"
	"github.com/careerforge/careerforge/internal/store"
	"github.com/careerforge/careerforge/pkg/log"
	"github.com/careerforge/careerforge/pkg/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate the db",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			zap.S().Fatalf("reading configuration: %v", err)
		}

		logger := log.InitLog(log.Level(cfg.Service.LogLevel))
		defer func() { _ = logger.Sync() }()
		undo := zap.ReplaceGlobals(logger)
		defer undo()

		zap.S().Info("Initializing data store")
		db, err := store.InitDB(cfg)
		if err != nil {
			zap.S().Fatalf("initializing data store: %v", err)
		}

		s := store.NewStore(db)
		defer s.Close()

		if cfg.Service.MigrationFolder != "" {
			if err := migrations.MigrateStore(db, cfg.Service.MigrationFolder); err != nil {
				zap.S().Fatalf("running database migrations: %v", err)
			}
			zap.S().Info("Db migrated")
			return nil
		}

		if err := s.InitialMigration(); err != nil {
			zap.S().Fatalf("running initial migration: %v", err)
		}

		zap.S().Info("Db migrated")
		return nil
	},
}
