// Package pipeline orchestrates document ingestion and processing: it stores
// uploads, creates their records, dispatches processing tasks, and on task
// delivery converts, embeds and persists the result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jmobrien1/mdraft2/internal/convert"
	"github.com/jmobrien1/mdraft2/internal/metrics"
	"github.com/jmobrien1/mdraft2/internal/model"
	"github.com/jmobrien1/mdraft2/internal/queue"
)

// BlobStore persists uploaded originals.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	Get(ctx context.Context, uri string) ([]byte, error)
}

// Repository persists document records.
type Repository interface {
	Create(ctx context.Context, doc *model.Document) error
	Get(ctx context.Context, id string) (*model.Document, error)
	Save(ctx context.Context, doc *model.Document) error
}

// Converter extracts text from a stored original.
type Converter interface {
	Convert(ctx context.Context, data []byte, ext string) (string, error)
}

// Embedder turns text into a vector; a nil vector means nothing to store.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Upload is an incoming file.
type Upload struct {
	Reader      io.Reader
	Size        int64
	Filename    string
	ContentType string
}

// Deps bundles the collaborators of a Pipeline.
type Deps struct {
	Blobs       BlobStore
	Repo        Repository
	Dispatcher  queue.Dispatcher
	Converter   Converter
	Embedder    Embedder
	CallbackURL string
	Logger      zerolog.Logger
	Metrics     *metrics.Metrics
}

// Pipeline implements Ingest and Process.
type Pipeline struct {
	blobs       BlobStore
	repo        Repository
	dispatcher  queue.Dispatcher
	converter   Converter
	embedder    Embedder
	callbackURL string
	log         zerolog.Logger
	metrics     *metrics.Metrics
}

// New builds a Pipeline.
func New(d Deps) *Pipeline {
	return &Pipeline{
		blobs:       d.Blobs,
		repo:        d.Repo,
		dispatcher:  d.Dispatcher,
		converter:   d.Converter,
		embedder:    d.Embedder,
		callbackURL: d.CallbackURL,
		log:         d.Logger,
		metrics:     d.Metrics,
	}
}

// ObjectKey is where an upload is stored.
func ObjectKey(id, filename string) string {
	return fmt.Sprintf("input/%s/%s", id, filename)
}

// Ingest stores the upload, records it as QUEUED and dispatches processing.
// A dispatch failure is logged and counted but not returned: the record
// exists and stays QUEUED.
func (p *Pipeline) Ingest(ctx context.Context, up Upload) (*model.Document, error) {
	if up.Reader == nil || strings.TrimSpace(up.Filename) == "" {
		return nil, model.E(model.ErrValidation, "ingest", errors.New("a named file is required"))
	}
	id := uuid.NewString()
	name := SanitizeFilename(up.Filename)
	contentType := up.ContentType
	if contentType == "" {
		contentType = convert.MIMEType(filepath.Ext(name))
	}

	uri, err := p.blobs.Put(ctx, ObjectKey(id, name), up.Reader, up.Size, contentType)
	if err != nil {
		return nil, err
	}

	doc := &model.Document{
		ID:               id,
		OriginalFilename: name,
		SourceLocation:   uri,
		Status:           model.StatusQueued,
	}
	if err := p.repo.Create(ctx, doc); err != nil {
		p.log.Error().Err(err).Str("document_id", id).Str("source_location", uri).Msg("create record failed, blob orphaned")
		return nil, err
	}
	p.metrics.Ingested()

	log := p.log.With().Str("document_id", id).Logger()
	handle, err := p.dispatcher.Enqueue(ctx, p.callbackURL, queue.Payload{DocumentID: id})
	if err != nil {
		p.metrics.DispatchFailed()
		log.Error().Err(err).Msg("dispatch failed, document left queued")
		return doc, nil
	}
	log.Info().Str("task", handle).Str("filename", name).Msg("document queued")
	return doc, nil
}

// Process converts and embeds a stored document. Every status change is
// persisted before Process returns. On failure the record ends FAILED with
// its outputs untouched, and the returned document reflects that.
func (p *Pipeline) Process(ctx context.Context, id string) (*model.Document, error) {
	doc, err := p.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	log := p.log.With().Str("document_id", id).Logger()
	prevText, prevEmbedding := doc.OutputText, doc.Embedding
	if doc.Status.Terminal() {
		log.Info().Str("previous_status", string(doc.Status)).Msg("reprocessing finished document")
	}

	fail := func(cause error) (*model.Document, error) {
		doc.Status = model.StatusFailed
		doc.OutputText, doc.Embedding = prevText, prevEmbedding
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := p.repo.Save(saveCtx, doc); err != nil {
			log.Error().Err(err).Msg("persist FAILED status")
		}
		p.metrics.Processed(string(model.StatusFailed), time.Since(start))
		log.Error().Err(cause).Msg("document processing failed")
		return doc, cause
	}

	doc.Status = model.StatusProcessing
	if err := p.repo.Save(ctx, doc); err != nil {
		return fail(err)
	}
	log.Info().Str("source_location", doc.SourceLocation).Msg("processing started")

	data, err := p.blobs.Get(ctx, doc.SourceLocation)
	if err != nil {
		return fail(err)
	}
	ext := doc.Extension()
	text, err := p.converter.Convert(ctx, data, ext)
	if err != nil {
		return fail(err)
	}
	if convert.IsDirect(ext) {
		p.metrics.Converted("direct")
	} else {
		p.metrics.Converted("ocr")
	}
	vec, err := p.embedder.Embed(ctx, text)
	if err != nil {
		return fail(err)
	}

	doc.OutputText = &text
	doc.Embedding = vec
	doc.Status = model.StatusDone
	if err := p.repo.Save(ctx, doc); err != nil {
		return fail(err)
	}
	p.metrics.Processed(string(model.StatusDone), time.Since(start))
	log.Info().Int("chars", len(text)).Bool("embedded", vec != nil).Dur("elapsed", time.Since(start)).Msg("document processed")
	return doc, nil
}

// Get returns the current record for id.
func (p *Pipeline) Get(ctx context.Context, id string) (*model.Document, error) {
	return p.repo.Get(ctx, id)
}
