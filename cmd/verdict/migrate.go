package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/verdict/internal/config"
	"github.com/MikeSquared-Agency/verdict/internal/store"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger := setupLogging(cfg.LogLevel)
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required")
			}
			version, err := store.Migrate(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			logger.Info("migrations complete", "version", version)
			fmt.Fprintf(cmd.OutOrStdout(), "migrations complete (version %d)\n", version)
			return nil
		},
	}
}
