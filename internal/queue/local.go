package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jmobrien1/mdraft2/internal/metrics"
	"github.com/jmobrien1/mdraft2/internal/model"
	"github.com/jmobrien1/mdraft2/internal/signing"
)

type job struct {
	id       string
	delivery Delivery
}

// Local is an in-process dispatcher: a buffered channel drained by a fixed
// pool of goroutines. Pending deliveries are lost on restart.
type Local struct {
	deliverer Deliverer
	signer    *signing.Signer
	queue     chan job
	workers   int
	maxRetry  int
	backoff   func(attempt int) time.Duration
	log       zerolog.Logger
	metrics   *metrics.Metrics
	wg        sync.WaitGroup
}

// LocalOption customises a Local dispatcher.
type LocalOption func(*Local)

// WithBackoff overrides the delay before retry attempt n (starting at 1).
func WithBackoff(fn func(attempt int) time.Duration) LocalOption {
	return func(l *Local) { l.backoff = fn }
}

// WithMetrics records delivery results.
func WithMetrics(m *metrics.Metrics) LocalOption {
	return func(l *Local) { l.metrics = m }
}

// NewLocal builds a Local dispatcher with queue capacity tied to the worker
// count.
func NewLocal(deliverer Deliverer, signer *signing.Signer, workers, maxRetry int, log zerolog.Logger, opts ...LocalOption) *Local {
	if workers <= 0 {
		workers = 1
	}
	if maxRetry < 0 {
		maxRetry = 0
	}
	l := &Local{
		deliverer: deliverer,
		signer:    signer,
		queue:     make(chan job, workers*16),
		workers:   workers,
		maxRetry:  maxRetry,
		backoff:   exponentialBackoff,
		log:       log,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run starts the workers and blocks until ctx is cancelled and every
// in-flight delivery has returned.
func (l *Local) Run(ctx context.Context) error {
	for i := 0; i < l.workers; i++ {
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.worker(ctx)
		}()
	}
	<-ctx.Done()
	l.wg.Wait()
	return nil
}

// Enqueue queues a delivery. A full queue is a dispatch error; nothing blocks
// the caller.
func (l *Local) Enqueue(ctx context.Context, targetURL string, payload Payload) (string, error) {
	d, err := NewDelivery(targetURL, payload, l.signer)
	if err != nil {
		return "", err
	}
	j := job{id: uuid.NewString(), delivery: d}
	select {
	case <-ctx.Done():
		return "", model.E(model.ErrDispatch, "enqueue delivery", ctx.Err())
	case l.queue <- j:
		return j.id, nil
	default:
		return "", model.E(model.ErrDispatch, "enqueue delivery", errors.New("local queue is full"))
	}
}

func (l *Local) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-l.queue:
			l.deliver(ctx, j)
		}
	}
}

func (l *Local) deliver(ctx context.Context, j job) {
	log := l.log.With().Str("task_id", j.id).Str("url", j.delivery.URL).Logger()
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				log.Warn().Int("attempt", attempt).Msg("delivery abandoned on shutdown")
				return
			case <-time.After(l.backoff(attempt)):
			}
		}
		err := l.deliverer.Deliver(ctx, j.delivery)
		switch {
		case err == nil:
			l.metrics.Delivered("ok")
			return
		case errors.Is(err, ErrPermanent):
			l.metrics.Delivered("dropped")
			log.Warn().Err(err).Msg("delivery rejected")
			return
		case attempt >= l.maxRetry:
			l.metrics.Delivered("exhausted")
			log.Error().Err(err).Int("attempts", attempt+1).Msg("delivery failed")
			return
		default:
			l.metrics.Delivered("retry")
			log.Debug().Err(err).Int("attempt", attempt+1).Msg("delivery failed, retrying")
		}
	}
}

func exponentialBackoff(attempt int) time.Duration {
	d := time.Second << (attempt - 1)
	if d > time.Minute || d <= 0 {
		return time.Minute
	}
	return d
}
