package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmobrien1/mdraft2/internal/database"
)

func newInitDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-db",
		Short: "Create the pgvector extension and the documents table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadRuntime()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := database.Connect(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer pool.Close()
			if err := database.EnsureSchema(ctx, pool, cfg.EmbeddingDims); err != nil {
				return err
			}
			log.Info().Int("dimensions", cfg.EmbeddingDims).Msg("database initialized")
			return nil
		},
	}
}
