package queue

import (
	"context"

	"cloud.google.com/go/cloudtasks/apiv2/cloudtaskspb"
	"github.com/googleapis/gax-go/v2"

	"github.com/jmobrien1/mdraft2/internal/model"
	"github.com/jmobrien1/mdraft2/internal/signing"
)

// TaskCreator is the part of the Cloud Tasks client the dispatcher uses.
// *cloudtasks.Client satisfies it.
type TaskCreator interface {
	CreateTask(ctx context.Context, req *cloudtaskspb.CreateTaskRequest, opts ...gax.CallOption) (*cloudtaskspb.Task, error)
}

// CloudTasks creates one HTTP task per delivery on a Cloud Tasks queue. Retry
// policy belongs to the queue configuration.
type CloudTasks struct {
	client    TaskCreator
	queuePath string
	signer    *signing.Signer
}

// NewCloudTasks targets queuePath (projects/{p}/locations/{l}/queues/{q}).
func NewCloudTasks(client TaskCreator, queuePath string, signer *signing.Signer) *CloudTasks {
	return &CloudTasks{client: client, queuePath: queuePath, signer: signer}
}

// Enqueue creates the task and returns its resource name.
func (c *CloudTasks) Enqueue(ctx context.Context, targetURL string, payload Payload) (string, error) {
	d, err := NewDelivery(targetURL, payload, c.signer)
	if err != nil {
		return "", err
	}
	req := &cloudtaskspb.CreateTaskRequest{
		Parent: c.queuePath,
		Task: &cloudtaskspb.Task{
			MessageType: &cloudtaskspb.Task_HttpRequest{
				HttpRequest: &cloudtaskspb.HttpRequest{
					HttpMethod: cloudtaskspb.HttpMethod_POST,
					Url:        d.URL,
					Headers:    d.Headers,
					Body:       d.Body,
				},
			},
		},
	}
	task, err := c.client.CreateTask(ctx, req)
	if err != nil {
		return "", model.E(model.ErrDispatch, "create task", err)
	}
	return task.GetName(), nil
}
