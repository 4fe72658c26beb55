package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmobrien1/mdraft2/internal/model"
	"github.com/jmobrien1/mdraft2/internal/signing"
)

func setupRedis(t *testing.T) asynq.RedisClientOpt {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return asynq.RedisClientOpt{Addr: mr.Addr()}
}

func TestAsynqEnqueue(t *testing.T) {
	opt := setupRedis(t)
	client := asynq.NewClient(opt)
	defer client.Close()
	inspector := asynq.NewInspector(opt)
	defer inspector.Close()

	signer := signing.NewSigner([]byte("k"))
	id, err := NewAsynq(client, signer, 3).Enqueue(context.Background(), "http://api/tasks/process", Payload{DocumentID: "doc-1"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	info, err := inspector.GetTaskInfo("default", id)
	require.NoError(t, err)
	assert.Equal(t, DeliverTask, info.Type)
	assert.Equal(t, 3, info.MaxRetry)

	d, err := DecodeDelivery(asynq.NewTask(info.Type, info.Payload))
	require.NoError(t, err)
	assert.Equal(t, "http://api/tasks/process", d.URL)
	assert.JSONEq(t, `{"document_id":"doc-1"}`, string(d.Body))
	assert.True(t, signer.Validate(d.Body, d.Headers[signing.Header]))
}

func TestAsynqEnqueueFailureIsDispatchError(t *testing.T) {
	opt := setupRedis(t)
	client := asynq.NewClient(opt)
	require.NoError(t, client.Close())

	_, err := NewAsynq(client, nil, 1).Enqueue(context.Background(), "http://api/tasks/process", Payload{DocumentID: "doc-1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrDispatch))
}

func TestDecodeDeliveryRejectsGarbage(t *testing.T) {
	_, err := DecodeDelivery(asynq.NewTask(DeliverTask, []byte("not json")))
	assert.Error(t, err)

	_, err = DecodeDelivery(asynq.NewTask(DeliverTask, []byte(`{"body":"e30="}`)))
	assert.Error(t, err)
}
