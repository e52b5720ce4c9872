package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var warmCmd = &cobra.Command{
	Use:   "warm-embeddings",
	Short: "Sync jobs from the ATS and precompute their embeddings",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := bootstrap()
		if err != nil {
			return err
		}

		a, err := newApplication(cmd.Context(), cfg, log)
		if err != nil {
			log.Error("initializing application", zap.Error(err))
			return err
		}
		defer a.Close()

		jobs, err := a.jobSync.Sync(cmd.Context())
		if err != nil {
			return err
		}
		warmed, err := a.jobSync.Warm(cmd.Context(), jobs)
		if err != nil {
			return err
		}

		log.Info("embeddings warmed", zap.Int("jobs", len(jobs)), zap.Int("warmed", warmed))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(warmCmd)
}
