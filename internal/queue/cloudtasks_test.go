package queue

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/cloudtasks/apiv2/cloudtaskspb"
	"github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmobrien1/mdraft2/internal/model"
)

type fakeTaskCreator struct {
	req *cloudtaskspb.CreateTaskRequest
	err error
}

func (f *fakeTaskCreator) CreateTask(_ context.Context, req *cloudtaskspb.CreateTaskRequest, _ ...gax.CallOption) (*cloudtaskspb.Task, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &cloudtaskspb.Task{Name: req.GetParent() + "/tasks/123"}, nil
}

func TestCloudTasksEnqueue(t *testing.T) {
	fake := &fakeTaskCreator{}
	queuePath := "projects/p/locations/us-central1/queues/q"
	name, err := NewCloudTasks(fake, queuePath, nil).Enqueue(context.Background(), "https://api.example.com/tasks/process", Payload{DocumentID: "doc-1"})
	require.NoError(t, err)
	assert.Equal(t, queuePath+"/tasks/123", name)

	require.NotNil(t, fake.req)
	assert.Equal(t, queuePath, fake.req.GetParent())
	httpReq := fake.req.GetTask().GetHttpRequest()
	require.NotNil(t, httpReq)
	assert.Equal(t, cloudtaskspb.HttpMethod_POST, httpReq.GetHttpMethod())
	assert.Equal(t, "https://api.example.com/tasks/process", httpReq.GetUrl())
	assert.Equal(t, "application/json", httpReq.GetHeaders()["Content-Type"])
	assert.JSONEq(t, `{"document_id":"doc-1"}`, string(httpReq.GetBody()))
}

func TestCloudTasksEnqueueFailure(t *testing.T) {
	fake := &fakeTaskCreator{err: errors.New("permission denied")}
	_, err := NewCloudTasks(fake, "projects/p/locations/l/queues/q", nil).Enqueue(context.Background(), "https://x/tasks/process", Payload{DocumentID: "doc-1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrDispatch))
	assert.Contains(t, err.Error(), "permission denied")
}
