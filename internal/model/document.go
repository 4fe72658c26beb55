// Package model contains the document record and error kinds shared across
// packages.
package model

import (
	"path/filepath"
	"strings"
	"time"
)

// Status describes the processing lifecycle. Values are stored verbatim in the
// database so they must never change.
type Status string

const (
	// StatusPending is the column default. Records are created QUEUED, so this
	// is only observed for rows inserted outside the pipeline.
	StatusPending    Status = "PENDING"
	StatusQueued     Status = "QUEUED"
	StatusProcessing Status = "PROCESSING"
	StatusDone       Status = "DONE"
	StatusFailed     Status = "FAILED"
)

// Valid reports whether s is one of the known lifecycle values.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusQueued, StatusProcessing, StatusDone, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no automatic transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Document is the single persisted entity. OutputText and Embedding are nil
// until a conversion succeeds; Embedding may stay nil after DONE when the
// embedding backend had nothing to return.
type Document struct {
	ID               string    `json:"id"`
	OriginalFilename string    `json:"original_filename"`
	SourceLocation   string    `json:"source_location"`
	Status           Status    `json:"status"`
	OutputText       *string   `json:"output_text,omitempty"`
	Embedding        []float32 `json:"embedding,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Extension returns the lower-case extension of OriginalFilename without the
// leading dot, or "" when there is none.
func (d *Document) Extension() string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(d.OriginalFilename), "."))
}

// Clone returns a deep copy so stores never share output or vector memory
// with callers.
func (d *Document) Clone() *Document {
	out := *d
	if d.OutputText != nil {
		text := *d.OutputText
		out.OutputText = &text
	}
	if d.Embedding != nil {
		out.Embedding = append([]float32(nil), d.Embedding...)
	}
	return &out
}
