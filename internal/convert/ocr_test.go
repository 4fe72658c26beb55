package convert

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProcessor struct {
	req  *documentaipb.ProcessRequest
	resp *documentaipb.ProcessResponse
	err  error
}

func (f *fakeProcessor) ProcessDocument(_ context.Context, req *documentaipb.ProcessRequest, _ ...gax.CallOption) (*documentaipb.ProcessResponse, error) {
	f.req = req
	return f.resp, f.err
}

func TestDocumentAIProcess(t *testing.T) {
	fake := &fakeProcessor{resp: &documentaipb.ProcessResponse{
		Document: &documentaipb.Document{
			Text:  "hello world",
			Pages: []*documentaipb.Document_Page{{PageNumber: 1}, {PageNumber: 2}},
		},
	}}
	res, err := NewDocumentAI(fake).Process(context.Background(), []byte("img"), "image/png", "projects/p/locations/us/processors/abc")
	require.NoError(t, err)
	assert.Equal(t, OCRResult{Text: "hello world", Pages: 2}, res)

	require.NotNil(t, fake.req)
	assert.Equal(t, "projects/p/locations/us/processors/abc", fake.req.GetName())
	assert.Equal(t, "image/png", fake.req.GetRawDocument().GetMimeType())
	assert.Equal(t, []byte("img"), fake.req.GetRawDocument().GetContent())
}

func TestDocumentAIError(t *testing.T) {
	cause := errors.New("unavailable")
	_, err := NewDocumentAI(&fakeProcessor{err: cause}).Process(context.Background(), nil, "application/pdf", "p")
	require.Error(t, err)
	assert.True(t, errors.Is(err, cause))
}

func TestProcessorLocation(t *testing.T) {
	assert.Equal(t, "eu", ProcessorLocation("projects/p/locations/eu/processors/1"))
	assert.Equal(t, "", ProcessorLocation("processor-1"))
	assert.Equal(t, "", ProcessorLocation("projects/p/locations"))
}

func TestPDFTextRejectsImages(t *testing.T) {
	_, err := NewPDFText().Process(context.Background(), []byte{0x89, 'P', 'N', 'G'}, "image/png", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "image/png")
}

func TestPDFTextRejectsCorruptPDF(t *testing.T) {
	_, err := NewPDFText().Process(context.Background(), []byte("not a pdf"), "application/pdf", "")
	assert.Error(t, err)
}
