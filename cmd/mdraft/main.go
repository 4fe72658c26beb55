// Command mdraft runs the document pipeline: the HTTP API, the asynq delivery
// worker, and database bootstrap.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jmobrien1/mdraft2/internal/config"
	"github.com/jmobrien1/mdraft2/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "mdraft: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mdraft",
		Short: "Document to Markdown conversion and embedding pipeline",
		Long: `mdraft ingests uploaded documents, converts them to Markdown, embeds the
result and tracks every document through QUEUED, PROCESSING, DONE or FAILED.
All settings come from environment variables.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newServeCmd(),
		newWorkerCmd(),
		newInitDBCmd(),
	)
	return cmd
}

func loadRuntime() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	return cfg, log, nil
}
