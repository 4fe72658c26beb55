package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	return pgxpool.NewWithConfig(ctx, cfg)
}

// SchemaSQL returns the DDL for the documents table with an embedding column
// of the given dimension.
func SchemaSQL(dims int) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS documents (
	id UUID PRIMARY KEY,
	original_filename VARCHAR(512) NOT NULL,
	source_location VARCHAR(1024) NOT NULL,
	status VARCHAR(32) NOT NULL DEFAULT 'PENDING',
	output_text TEXT,
	embedding vector(%d),
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);`, dims)
}

// EnsureSchema creates the pgvector extension and the documents table if
// needed. The extension is created first because the table depends on it.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, dims int) error {
	if _, err := pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("ensure pgvector extension: %w", err)
	}
	if _, err := pool.Exec(ctx, SchemaSQL(dims)); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
