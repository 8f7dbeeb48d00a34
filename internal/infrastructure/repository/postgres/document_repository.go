package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/proposalforge/sotr-assistant/internal/core/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Save upserts the document record. The id is derived from the filename, so
// re-uploading a document overwrites its previous attempt.
func (r *DocumentRepository) Save(ctx context.Context, doc *domain.Document) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO documents (id, filename, storage_path, status, message, progress, total_pages, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET
	filename = EXCLUDED.filename,
	storage_path = EXCLUDED.storage_path,
	status = EXCLUDED.status,
	message = EXCLUDED.message,
	progress = EXCLUDED.progress,
	total_pages = EXCLUDED.total_pages,
	updated_at = EXCLUDED.updated_at
`,
		doc.ID, doc.Filename, doc.StoragePath, string(doc.Status), doc.Message,
		doc.Progress, doc.TotalPages, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, filename, storage_path, status, message, progress, total_pages, created_at, updated_at
FROM documents
WHERE id = $1
`, id)

	var doc domain.Document
	var status string
	err := row.Scan(
		&doc.ID, &doc.Filename, &doc.StoragePath, &status, &doc.Message,
		&doc.Progress, &doc.TotalPages, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document",
				fmt.Errorf("document not found: %s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	doc.Status = domain.DocumentStatus(status)
	return &doc, nil
}

func (r *DocumentRepository) UpdateState(ctx context.Context, id string, state domain.DocumentState) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, message = $3, progress = $4,
	total_pages = CASE WHEN $5 > 0 THEN $5 ELSE total_pages END,
	updated_at = $6
WHERE id = $1
`, id, string(state.Status), state.Message, state.Progress, state.TotalPages, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update document state: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, "update document state",
			fmt.Errorf("document not found: %s", id))
	}
	return nil
}

// ReplacePages swaps the recognized page set atomically.
func (r *DocumentRepository) ReplacePages(ctx context.Context, documentID string, pages []domain.Page) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin pages tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_pages WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("delete stale pages: %w", err)
	}
	for _, page := range pages {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO document_pages (document_id, page, text) VALUES ($1,$2,$3)
`, documentID, page.Number, page.Text); err != nil {
			return fmt.Errorf("insert page %d: %w", page.Number, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit pages tx: %w", err)
	}
	return nil
}

func (r *DocumentRepository) ListPages(ctx context.Context, documentID string) ([]domain.Page, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT document_id, page, text
FROM document_pages
WHERE document_id = $1
ORDER BY page
`, documentID)
	if err != nil {
		return nil, fmt.Errorf("query pages: %w", err)
	}
	defer rows.Close()

	var pages []domain.Page
	for rows.Next() {
		var page domain.Page
		if err := rows.Scan(&page.DocumentID, &page.Number, &page.Text); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		pages = append(pages, page)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return pages, nil
}
