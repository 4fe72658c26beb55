package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/jmobrien1/mdraft2/internal/model"
)

const uniqueViolation = "23505"

// DocumentRepository wraps all SQL used by the pipeline and the API.
type DocumentRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewDocumentRepository constructs a repository.
func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

// Create inserts a new record and stamps both timestamps.
func (r *DocumentRepository) Create(ctx context.Context, doc *model.Document) error {
	now := r.now()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO documents (id, original_filename, source_location, status, output_text, embedding, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, CAST($6::text AS vector), $7, $8)
	`, doc.ID, doc.OriginalFilename, doc.SourceLocation, string(doc.Status), doc.OutputText, encodeVector(doc.Embedding), now, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return model.E(model.ErrConflict, "create document", fmt.Errorf("id %s already exists", doc.ID))
		}
		return model.E(model.ErrStorage, "create document", err)
	}
	doc.CreatedAt = now
	doc.UpdatedAt = now
	return nil
}

// Get returns a document by id. Ids that are not UUIDs cannot exist and are
// reported as not found.
func (r *DocumentRepository) Get(ctx context.Context, id string) (*model.Document, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.E(model.ErrNotFound, "get document", fmt.Errorf("id %q", id))
	}
	var (
		doc       model.Document
		status    string
		embedding *string
	)
	row := r.pool.QueryRow(ctx, `
		SELECT id::text, original_filename, source_location, status, output_text, embedding::text, created_at, updated_at
		FROM documents WHERE id = $1
	`, id)
	err := row.Scan(&doc.ID, &doc.OriginalFilename, &doc.SourceLocation, &status, &doc.OutputText, &embedding, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.E(model.ErrNotFound, "get document", fmt.Errorf("id %s", id))
		}
		return nil, model.E(model.ErrStorage, "get document", err)
	}
	if doc.Status, err = parseStatus(status); err != nil {
		return nil, model.E(model.ErrStorage, "get document", err)
	}
	if doc.Embedding, err = decodeVector(embedding); err != nil {
		return nil, model.E(model.ErrStorage, "get document", err)
	}
	return &doc, nil
}

// Save writes every mutable field in one statement so concurrent readers see
// either the previous or the new record, never a mix.
func (r *DocumentRepository) Save(ctx context.Context, doc *model.Document) error {
	now := r.now()
	tag, err := r.pool.Exec(ctx, `
		UPDATE documents
		SET status = $1,
			output_text = $2,
			embedding = CAST($3::text AS vector),
			updated_at = $4
		WHERE id = $5
	`, string(doc.Status), doc.OutputText, encodeVector(doc.Embedding), now, doc.ID)
	if err != nil {
		return model.E(model.ErrStorage, "save document", err)
	}
	if tag.RowsAffected() == 0 {
		return model.E(model.ErrNotFound, "save document", fmt.Errorf("id %s", doc.ID))
	}
	doc.UpdatedAt = now
	return nil
}

// Ping checks database connectivity.
func (r *DocumentRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func parseStatus(text string) (model.Status, error) {
	status := model.Status(text)
	if !status.Valid() {
		return "", fmt.Errorf("unknown status %q", text)
	}
	return status, nil
}

// encodeVector renders a vector in pgvector's text form; nil stays NULL.
func encodeVector(v []float32) *string {
	if len(v) == 0 {
		return nil
	}
	text := pgvector.NewVector(v).String()
	return &text
}

func decodeVector(text *string) ([]float32, error) {
	if text == nil {
		return nil, nil
	}
	var v pgvector.Vector
	if err := v.Parse(*text); err != nil {
		return nil, fmt.Errorf("parse embedding: %w", err)
	}
	return v.Slice(), nil
}
