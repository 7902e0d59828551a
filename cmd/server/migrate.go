package main

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"workflowguard/backend/internal/config"
	"workflowguard/backend/internal/logging"
	"workflowguard/backend/internal/repository"
)

func newMigrateCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if cfg.DB.Driver != "postgres" {
				return fmt.Errorf("migrate requires db.driver postgres, got %q", cfg.DB.Driver)
			}
			return migrateDatabase(cfg, logger)
		},
	}
}

// bootstrap loads the configuration and builds the logger it describes.
func bootstrap(configPath string) (*config.Config, *logging.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("configuration loading failed: %w", err)
	}
	logger, err := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, fmt.Errorf("logger initialization failed: %w", err)
	}
	return cfg, logger, nil
}

func migrateDatabase(cfg *config.Config, logger *logging.Logger) error {
	db, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := repository.RunMigrations(db, logger.Named("migrate")); err != nil {
		return err
	}
	return nil
}
