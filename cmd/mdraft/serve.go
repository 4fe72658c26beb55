package main

import (
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jmobrien1/mdraft2/internal/api"
	"github.com/jmobrien1/mdraft2/internal/metrics"
	"github.com/jmobrien1/mdraft2/internal/pipeline"
	"github.com/jmobrien1/mdraft2/internal/signing"
)

func newServeCmd() *cobra.Command {
	var ensureSchema bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (and the local dispatcher when DISPATCHER=local)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadRuntime()
			if err != nil {
				return err
			}
			g, ctx := errgroup.WithContext(cmd.Context())
			var c closers
			defer c.close(log)

			m := metrics.New()
			signer := signing.NewSigner(cfg.CallbackSecret)

			repo, err := newRepository(ctx, cfg, ensureSchema, &c)
			if err != nil {
				return err
			}
			blobs, err := newBlobStore(ctx, cfg, &c)
			if err != nil {
				return err
			}
			dispatcher, runDispatcher, err := newDispatcher(ctx, cfg, signer, log, m, &c)
			if err != nil {
				return err
			}
			converter, err := newConverter(ctx, cfg, &c)
			if err != nil {
				return err
			}
			embedder, err := newEmbedder(ctx, cfg, &c)
			if err != nil {
				return err
			}
			if err := repo.Ping(ctx); err != nil {
				return err
			}

			p := pipeline.New(pipeline.Deps{
				Blobs:       blobs,
				Repo:        repo,
				Dispatcher:  dispatcher,
				Converter:   converter,
				Embedder:    embedder,
				CallbackURL: cfg.CallbackURL(),
				Logger:      log.With().Str("component", "pipeline").Logger(),
				Metrics:     m,
			})
			srv := api.New(api.Options{
				Address:        cfg.Address,
				MaxUploadBytes: cfg.MaxUploadBytes,
				ProcessTimeout: cfg.ProcessTimeout,
				CORSOrigin:     cfg.CORSOrigin,
			}, p, signer, log.With().Str("component", "api").Logger(), m)

			g.Go(func() error { return srv.Run(ctx) })
			if runDispatcher != nil {
				g.Go(func() error { return runDispatcher(ctx) })
			}
			log.Info().
				Str("repository", cfg.Repository).
				Str("blob_backend", cfg.BlobBackend).
				Str("dispatcher", cfg.Dispatcher).
				Str("ocr_backend", cfg.OCRBackend).
				Str("embedding_provider", cfg.EmbeddingBackend).
				Bool("callback_signing", signer.Enabled()).
				Msg("mdraft started")
			return g.Wait()
		},
	}
	cmd.Flags().BoolVar(&ensureSchema, "ensure-schema", true, "Create the pgvector extension and documents table on startup")
	return cmd
}
