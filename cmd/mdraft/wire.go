package main

import (
	"context"
	"errors"
	"fmt"

	cloudtasks "cloud.google.com/go/cloudtasks/apiv2"
	"cloud.google.com/go/storage"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/jmobrien1/mdraft2/internal/blobstore"
	"github.com/jmobrien1/mdraft2/internal/config"
	"github.com/jmobrien1/mdraft2/internal/convert"
	"github.com/jmobrien1/mdraft2/internal/database"
	"github.com/jmobrien1/mdraft2/internal/embed"
	"github.com/jmobrien1/mdraft2/internal/metrics"
	"github.com/jmobrien1/mdraft2/internal/pipeline"
	"github.com/jmobrien1/mdraft2/internal/queue"
	"github.com/jmobrien1/mdraft2/internal/repository"
	"github.com/jmobrien1/mdraft2/internal/signing"
)

// pdfTextProcessor names the local OCR processor when none is configured.
const pdfTextProcessor = "pdftext"

// closers releases clients in reverse order of creation.
type closers []func() error

func (c *closers) add(fn func() error) {
	*c = append(*c, fn)
}

func (c *closers) close(log zerolog.Logger) {
	for i := len(*c) - 1; i >= 0; i-- {
		if err := (*c)[i](); err != nil {
			log.Warn().Err(err).Msg("close client")
		}
	}
}

func redisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

type documentRepository interface {
	pipeline.Repository
	Ping(ctx context.Context) error
}

func newRepository(ctx context.Context, cfg *config.Config, ensureSchema bool, c *closers) (documentRepository, error) {
	if cfg.Repository == config.RepositoryMemory {
		return repository.NewMemory(), nil
	}
	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	c.add(func() error { pool.Close(); return nil })
	if ensureSchema {
		if err := database.EnsureSchema(ctx, pool, cfg.EmbeddingDims); err != nil {
			return nil, err
		}
	}
	return repository.NewDocumentRepository(pool), nil
}

func newBlobStore(ctx context.Context, cfg *config.Config, c *closers) (pipeline.BlobStore, error) {
	switch cfg.BlobBackend {
	case config.BlobS3:
		store, err := blobstore.NewMinIO(blobstore.MinIOConfig{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
			Bucket:    cfg.Bucket,
		})
		if err != nil {
			return nil, err
		}
		if cfg.Bucket != "" {
			if err := store.EnsureBucket(ctx); err != nil {
				return nil, err
			}
		}
		return store, nil
	default:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		c.add(client.Close)
		return blobstore.NewGCS(client, cfg.Bucket), nil
	}
}

// newDispatcher returns the configured dispatcher. run is non-nil for the
// local dispatcher and must be started alongside the API.
func newDispatcher(ctx context.Context, cfg *config.Config, signer *signing.Signer, log zerolog.Logger, m *metrics.Metrics, c *closers) (d queue.Dispatcher, run func(context.Context) error, err error) {
	switch cfg.Dispatcher {
	case config.DispatcherLocal:
		local := queue.NewLocal(queue.NewHTTPDeliverer(nil), signer, cfg.Workers, cfg.DeliveryMaxRetry,
			log.With().Str("component", "dispatcher").Logger(), queue.WithMetrics(m))
		return local, local.Run, nil
	case config.DispatcherAsynq:
		client := asynq.NewClient(redisOpt(cfg))
		c.add(client.Close)
		return queue.NewAsynq(client, signer, cfg.DeliveryMaxRetry), nil, nil
	default:
		if cfg.ProjectID == "" || cfg.TasksQueue == "" {
			return nil, nil, errors.New("cloud tasks needs GCP_PROJECT_ID and CLOUD_TASKS_QUEUE_NAME")
		}
		client, err := cloudtasks.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("cloud tasks client: %w", err)
		}
		c.add(client.Close)
		return queue.NewCloudTasks(client, cfg.QueuePath(), signer), nil, nil
	}
}

// newConverter leaves the OCR backend unset when Document AI has no
// processor, so OCR conversions fail with a configuration error.
func newConverter(ctx context.Context, cfg *config.Config, c *closers) (*convert.Converter, error) {
	direct := convert.NewLocalExtractor()
	if cfg.OCRBackend == config.OCRPDFText {
		processor := cfg.OCRProcessor
		if processor == "" {
			processor = pdfTextProcessor
		}
		return convert.New(direct, convert.NewPDFText(), processor), nil
	}
	if cfg.OCRProcessor == "" {
		return convert.New(direct, nil, ""), nil
	}
	client, err := convert.NewDocumentAIClient(ctx, cfg.OCRProcessor)
	if err != nil {
		return nil, err
	}
	c.add(client.Close)
	return convert.New(direct, convert.NewDocumentAI(client), cfg.OCRProcessor), nil
}

func newEmbedder(ctx context.Context, cfg *config.Config, c *closers) (*embed.Embedder, error) {
	if cfg.EmbeddingBackend == config.EmbeddingOpenAI {
		backend, err := embed.NewOpenAI(cfg.EmbeddingHost, cfg.EmbeddingModel)
		if err != nil {
			return nil, err
		}
		return embed.New(backend, cfg.EmbeddingDims), nil
	}
	client, err := embed.NewPredictionClient(ctx, cfg.Location)
	if err != nil {
		return nil, err
	}
	c.add(client.Close)
	return embed.New(embed.NewVertex(client, cfg.ProjectID, cfg.Location, cfg.EmbeddingModel), cfg.EmbeddingDims), nil
}
