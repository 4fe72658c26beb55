// Package embed computes text embeddings for converted documents.
package embed

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmobrien1/mdraft2/internal/model"
)

// DefaultDimensions matches the embedding column of the documents table.
const DefaultDimensions = 768

// Backend is a text embedding model.
type Backend interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Embedder wraps a Backend with the pipeline's rules: blank text and empty
// backend results produce a nil vector, and every vector must have the
// configured dimension.
type Embedder struct {
	backend Backend
	dims    int
}

// New builds an Embedder. dims <= 0 selects DefaultDimensions.
func New(backend Backend, dims int) *Embedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &Embedder{backend: backend, dims: dims}
}

// Dimensions returns the expected vector length.
func (e *Embedder) Dimensions() int {
	return e.dims
}

// Embed returns the vector for text, or nil when there is nothing to embed.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	vec, err := e.backend.Embed(ctx, text)
	if err != nil {
		return nil, model.E(model.ErrEmbedding, "embed", err)
	}
	if len(vec) == 0 {
		return nil, nil
	}
	if len(vec) != e.dims {
		return nil, model.E(model.ErrEmbedding, "embed",
			fmt.Errorf("got %d dimensions, want %d", len(vec), e.dims))
	}
	return vec, nil
}
