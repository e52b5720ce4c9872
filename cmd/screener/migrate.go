package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"alfredoptarigan/applicant-screener/internal/config"
	"alfredoptarigan/applicant-screener/internal/repositories"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and seed screening settings",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := bootstrap()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		db, err := config.InitDatabase(cfg, log)
		if err != nil {
			return err
		}
		if err := config.Migrate(db, log); err != nil {
			return err
		}
		if err := repositories.NewSettingsRepository(db).EnsureSeeded(cmd.Context(), cfg.Screening.SeedSettings()); err != nil {
			return err
		}
		log.Info("migration finished", zap.String("database", cfg.Database.DBName))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
