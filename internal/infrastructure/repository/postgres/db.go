package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// EnsureSchema creates all tables idempotently. The advisory lock serializes
// bootstrap DDL across concurrent api/worker startups.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	status TEXT NOT NULL,
	message TEXT NOT NULL DEFAULT '',
	progress INTEGER NOT NULL DEFAULT 0,
	total_pages INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS document_pages (
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	page INTEGER NOT NULL,
	text TEXT NOT NULL,
	PRIMARY KEY (document_id, page)
);

CREATE TABLE IF NOT EXISTS scopes (
	document_id TEXT PRIMARY KEY REFERENCES documents(id) ON DELETE CASCADE,
	text TEXT NOT NULL,
	source_pages JSONB NOT NULL DEFAULT '[]'::jsonb,
	is_confirmed BOOLEAN NOT NULL DEFAULT FALSE,
	is_complete BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS topics (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	template_name TEXT NOT NULL,
	number TEXT NOT NULL DEFAULT '',
	text TEXT NOT NULL,
	level INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	page INTEGER NOT NULL DEFAULT 0,
	position INTEGER NOT NULL,
	is_confirmed BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_topics_document_template ON topics(document_id, template_name, position);

CREATE TABLE IF NOT EXISTS contents (
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	template_name TEXT NOT NULL,
	topic_key TEXT NOT NULL,
	text TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (document_id, template_name, topic_key)
);

CREATE TABLE IF NOT EXISTS templates (
	project_name TEXT PRIMARY KEY,
	toc TEXT NOT NULL,
	file_path TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
