package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jmobrien1/mdraft2/internal/metrics"
	"github.com/jmobrien1/mdraft2/internal/queue"
	"github.com/jmobrien1/mdraft2/internal/worker"
)

func newWorkerCmd() *cobra.Command {
	var metricsAddress string
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Deliver asynq processing tasks to the API callback",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadRuntime()
			if err != nil {
				return err
			}
			m := metrics.New()
			processor := worker.NewProcessor(queue.NewHTTPDeliverer(nil), log.With().Str("component", "worker").Logger(), m)
			server := worker.NewServer(worker.Config{Redis: redisOpt(cfg), Concurrency: cfg.Workers}, log)

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				if err := server.Start(processor.Handler()); err != nil {
					return err
				}
				<-ctx.Done()
				server.Shutdown()
				return nil
			})
			if metricsAddress != "" {
				g.Go(func() error { return serveMetrics(ctx, metricsAddress, m) })
			}
			log.Info().Str("redis", cfg.RedisAddr).Int("concurrency", cfg.Workers).Msg("worker started")
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&metricsAddress, "metrics-address", "", "Serve Prometheus metrics on this address (disabled when empty)")
	return cmd
}

func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics) error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
