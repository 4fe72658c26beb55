package convert

import (
	"context"
	"fmt"
	"strings"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"
)

// DocumentProcessor is the part of the Document AI client used here.
// *documentai.DocumentProcessorClient satisfies it.
type DocumentProcessor interface {
	ProcessDocument(ctx context.Context, req *documentaipb.ProcessRequest, opts ...gax.CallOption) (*documentaipb.ProcessResponse, error)
}

// DocumentAI runs OCR through a Document AI processor.
type DocumentAI struct {
	client DocumentProcessor
}

// NewDocumentAI wraps client.
func NewDocumentAI(client DocumentProcessor) *DocumentAI {
	return &DocumentAI{client: client}
}

// NewDocumentAIClient dials the regional endpoint that serves processor.
func NewDocumentAIClient(ctx context.Context, processor string, opts ...option.ClientOption) (*documentai.DocumentProcessorClient, error) {
	if loc := ProcessorLocation(processor); loc != "" {
		opts = append([]option.ClientOption{option.WithEndpoint(loc + "-documentai.googleapis.com:443")}, opts...)
	}
	client, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("document ai client: %w", err)
	}
	return client, nil
}

// ProcessorLocation extracts the location segment of a processor resource
// name (projects/{p}/locations/{l}/processors/{id}).
func ProcessorLocation(processor string) string {
	parts := strings.Split(processor, "/")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] == "locations" {
			return parts[i+1]
		}
	}
	return ""
}

// Process sends data inline and returns the document text and page count.
func (d *DocumentAI) Process(ctx context.Context, data []byte, mimeType, processor string) (OCRResult, error) {
	req := &documentaipb.ProcessRequest{
		Name: processor,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{Content: data, MimeType: mimeType},
		},
	}
	resp, err := d.client.ProcessDocument(ctx, req)
	if err != nil {
		return OCRResult{}, fmt.Errorf("process document: %w", err)
	}
	doc := resp.GetDocument()
	return OCRResult{Text: doc.GetText(), Pages: len(doc.GetPages())}, nil
}
