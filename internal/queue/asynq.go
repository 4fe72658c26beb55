package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/jmobrien1/mdraft2/internal/model"
	"github.com/jmobrien1/mdraft2/internal/signing"
)

// DeliverTask is the asynq task type that carries one callback delivery.
const DeliverTask = "document:deliver"

// Asynq enqueues deliveries into Redis for the delivery worker.
type Asynq struct {
	client   *asynq.Client
	signer   *signing.Signer
	maxRetry int
}

// NewAsynq builds a dispatcher on an existing client.
func NewAsynq(client *asynq.Client, signer *signing.Signer, maxRetry int) *Asynq {
	return &Asynq{client: client, signer: signer, maxRetry: maxRetry}
}

// Enqueue schedules a delivery and returns the asynq task id.
func (a *Asynq) Enqueue(ctx context.Context, targetURL string, payload Payload) (string, error) {
	d, err := NewDelivery(targetURL, payload, a.signer)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(d)
	if err != nil {
		return "", model.E(model.ErrDispatch, "enqueue delivery", fmt.Errorf("marshal delivery: %w", err))
	}
	task := asynq.NewTask(DeliverTask, data)
	info, err := a.client.EnqueueContext(ctx, task, asynq.MaxRetry(a.maxRetry))
	if err != nil {
		return "", model.E(model.ErrDispatch, "enqueue delivery", err)
	}
	return info.ID, nil
}

// DecodeDelivery reads the delivery carried by a DeliverTask.
func DecodeDelivery(task *asynq.Task) (Delivery, error) {
	var d Delivery
	if err := json.Unmarshal(task.Payload(), &d); err != nil {
		return Delivery{}, fmt.Errorf("decode delivery: %w", err)
	}
	if d.URL == "" {
		return Delivery{}, fmt.Errorf("decode delivery: missing url")
	}
	return d, nil
}
