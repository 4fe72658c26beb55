// Package convert turns uploaded documents into Markdown-like text. Office,
// HTML and plain text files are extracted directly; everything else goes
// through an OCR backend.
package convert

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmobrien1/mdraft2/internal/model"
)

var mimeTypes = map[string]string{
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"html": "text/html",
	"htm":  "text/html",
	"txt":  "text/plain",
	"pdf":  "application/pdf",
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"tiff": "image/tiff",
	"tif":  "image/tiff",
}

var directExtensions = map[string]bool{
	"docx": true,
	"pptx": true,
	"xlsx": true,
	"html": true,
	"htm":  true,
	"txt":  true,
}

// NormalizeExtension lower-cases ext and strips leading dots.
func NormalizeExtension(ext string) string {
	return strings.ToLower(strings.TrimLeft(ext, "."))
}

// MIMEType maps an extension to its content type, defaulting to
// application/octet-stream.
func MIMEType(ext string) string {
	if mt, ok := mimeTypes[NormalizeExtension(ext)]; ok {
		return mt
	}
	return "application/octet-stream"
}

// IsDirect reports whether ext is converted without OCR.
func IsDirect(ext string) bool {
	return directExtensions[NormalizeExtension(ext)]
}

// DirectExtractor converts a document of a direct-family extension.
type DirectExtractor interface {
	Extract(ctx context.Context, data []byte, ext string) (string, error)
}

// OCRResult is the combined text of a document plus its page count.
type OCRResult struct {
	Text  string
	Pages int
}

// OCRBackend runs optical character recognition with a named processor.
type OCRBackend interface {
	Process(ctx context.Context, data []byte, mimeType, processor string) (OCRResult, error)
}

// Converter routes documents to the direct extractor or the OCR backend.
type Converter struct {
	direct    DirectExtractor
	ocr       OCRBackend
	processor string
}

// New builds a Converter. processor identifies the OCR processor; OCR
// conversions fail with a configuration error while it is empty.
func New(direct DirectExtractor, ocr OCRBackend, processor string) *Converter {
	return &Converter{direct: direct, ocr: ocr, processor: processor}
}

// Convert extracts text from data. Every failure is an ErrConversion that
// keeps the backend cause reachable.
func (c *Converter) Convert(ctx context.Context, data []byte, ext string) (string, error) {
	ext = NormalizeExtension(ext)
	if IsDirect(ext) {
		if c.direct == nil {
			return "", model.E(model.ErrConversion, "convert",
				model.E(model.ErrConfiguration, "direct extractor", errors.New("not configured")))
		}
		text, err := c.direct.Extract(ctx, data, ext)
		if err != nil {
			return "", model.E(model.ErrConversion, "convert", fmt.Errorf("extract %s: %w", ext, err))
		}
		return text, nil
	}

	if c.processor == "" || c.ocr == nil {
		return "", model.E(model.ErrConversion, "convert",
			model.E(model.ErrConfiguration, "ocr", errors.New("processor is not configured")))
	}
	if ext == "" {
		ext = "pdf"
	}
	res, err := c.ocr.Process(ctx, data, MIMEType(ext), c.processor)
	if err != nil {
		return "", model.E(model.ErrConversion, "convert", fmt.Errorf("ocr %s: %w", ext, err))
	}
	return AssembleOCR(res), nil
}

// AssembleOCR renders OCR output as a "# Document" heading, one "## Page N"
// marker per page, then the combined text. The text is not split per page.
func AssembleOCR(res OCRResult) string {
	var b strings.Builder
	b.WriteString("# Document")
	for i := 1; i <= res.Pages; i++ {
		fmt.Fprintf(&b, "\n\n\n## Page %d", i)
	}
	if res.Pages > 0 {
		b.WriteString("\n\n")
	} else {
		b.WriteString("\n")
	}
	b.WriteString(res.Text)
	return b.String()
}
