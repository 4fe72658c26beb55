package convert

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// PDFText reads the embedded text layer of PDFs. It is the OCR backend for
// local development; scanned images are rejected.
type PDFText struct{}

// NewPDFText returns a PDFText backend.
func NewPDFText() *PDFText {
	return &PDFText{}
}

// Process ignores the processor name.
func (PDFText) Process(_ context.Context, data []byte, mimeType, _ string) (OCRResult, error) {
	if mimeType != "application/pdf" {
		return OCRResult{}, fmt.Errorf("pdf text layer cannot read %s", mimeType)
	}
	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return OCRResult{}, fmt.Errorf("new pdf reader: %w", err)
	}
	var pages []string
	total := doc.NumPage()
	for n := 1; n <= total; n++ {
		p := doc.Page(n)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			return OCRResult{}, fmt.Errorf("page %d: %w", n, err)
		}
		pages = append(pages, strings.TrimSpace(content))
	}
	return OCRResult{Text: strings.Join(pages, "\n"), Pages: total}, nil
}
