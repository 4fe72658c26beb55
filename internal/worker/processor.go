// Package worker runs the asynq side of the Redis dispatcher: it pulls
// delivery tasks and posts them to the processing callback.
package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/jmobrien1/mdraft2/internal/metrics"
	"github.com/jmobrien1/mdraft2/internal/queue"
)

// Processor is plugged into the asynq worker loop.
type Processor struct {
	deliverer queue.Deliverer
	log       zerolog.Logger
	metrics   *metrics.Metrics
}

// NewProcessor constructs a worker processor.
func NewProcessor(deliverer queue.Deliverer, log zerolog.Logger, m *metrics.Metrics) *Processor {
	return &Processor{deliverer: deliverer, log: log, metrics: m}
}

// Handler registers the delivery handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.DeliverTask, p.handleDeliver)
	return mux
}

func (p *Processor) handleDeliver(ctx context.Context, task *asynq.Task) error {
	d, err := queue.DecodeDelivery(task)
	if err != nil {
		p.metrics.Delivered("dropped")
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	log := p.log.With().Str("url", d.URL).Logger()
	if id, ok := asynq.GetTaskID(ctx); ok {
		log = log.With().Str("task_id", id).Logger()
	}
	if err := p.deliverer.Deliver(ctx, d); err != nil {
		if errors.Is(err, queue.ErrPermanent) {
			p.metrics.Delivered("dropped")
			log.Warn().Err(err).Msg("delivery rejected")
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		p.metrics.Delivered("retry")
		log.Warn().Err(err).Msg("delivery failed")
		return err
	}
	p.metrics.Delivered("ok")
	log.Debug().Msg("delivered")
	return nil
}

// Config holds the asynq server settings.
type Config struct {
	Redis       asynq.RedisClientOpt
	Concurrency int
}

// NewServer builds an asynq server whose logging goes through log.
func NewServer(cfg Config, log zerolog.Logger) *asynq.Server {
	return asynq.NewServer(cfg.Redis, asynq.Config{
		Concurrency: cfg.Concurrency,
		Logger:      asynqLogger{log: log.With().Str("component", "asynq").Logger()},
	})
}

type asynqLogger struct {
	log zerolog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.log.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.log.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.log.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.log.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.log.Fatal().Msg(fmt.Sprint(args...)) }
