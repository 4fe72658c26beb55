package embed

import (
	"context"
	"errors"
	"fmt"

	aiplatform "cloud.google.com/go/aiplatform/apiv1"
	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/structpb"
)

// Predictor is the part of the Vertex AI prediction client used here.
// *aiplatform.PredictionClient satisfies it.
type Predictor interface {
	Predict(ctx context.Context, req *aiplatformpb.PredictRequest, opts ...gax.CallOption) (*aiplatformpb.PredictResponse, error)
}

// Vertex calls a Vertex AI text embedding model.
type Vertex struct {
	client   Predictor
	endpoint string
}

// NewVertex targets publisher model name in project/location.
func NewVertex(client Predictor, project, location, name string) *Vertex {
	return &Vertex{
		client:   client,
		endpoint: fmt.Sprintf("projects/%s/locations/%s/publishers/google/models/%s", project, location, name),
	}
}

// NewPredictionClient dials the regional Vertex AI endpoint.
func NewPredictionClient(ctx context.Context, location string, opts ...option.ClientOption) (*aiplatform.PredictionClient, error) {
	opts = append([]option.ClientOption{option.WithEndpoint(location + "-aiplatform.googleapis.com:443")}, opts...)
	client, err := aiplatform.NewPredictionClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("vertex prediction client: %w", err)
	}
	return client, nil
}

// Embed requests one embedding. A response without predictions yields an
// empty vector.
func (v *Vertex) Embed(ctx context.Context, text string) ([]float32, error) {
	instance, err := structpb.NewStruct(map[string]any{"content": text})
	if err != nil {
		return nil, fmt.Errorf("build instance: %w", err)
	}
	resp, err := v.client.Predict(ctx, &aiplatformpb.PredictRequest{
		Endpoint:  v.endpoint,
		Instances: []*structpb.Value{structpb.NewStructValue(instance)},
	})
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	if len(resp.GetPredictions()) == 0 {
		return nil, nil
	}
	embeddings := resp.GetPredictions()[0].GetStructValue().GetFields()["embeddings"]
	if embeddings == nil {
		return nil, errors.New("prediction has no embeddings field")
	}
	values := embeddings.GetStructValue().GetFields()["values"].GetListValue().GetValues()
	vec := make([]float32, len(values))
	for i, val := range values {
		vec[i] = float32(val.GetNumberValue())
	}
	return vec, nil
}
