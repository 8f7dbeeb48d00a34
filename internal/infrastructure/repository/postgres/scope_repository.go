package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/proposalforge/sotr-assistant/internal/core/domain"
)

type ScopeRepository struct {
	db *sql.DB
}

func NewScopeRepository(db *sql.DB) *ScopeRepository {
	return &ScopeRepository{db: db}
}

// Save keeps one scope record per document, replace-on-write.
func (r *ScopeRepository) Save(ctx context.Context, record *domain.ScopeRecord) error {
	pagesJSON, err := json.Marshal(record.SourcePages)
	if err != nil {
		return fmt.Errorf("marshal source pages: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO scopes (document_id, text, source_pages, is_confirmed, is_complete, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (document_id) DO UPDATE SET
	text = EXCLUDED.text,
	source_pages = EXCLUDED.source_pages,
	is_confirmed = EXCLUDED.is_confirmed,
	is_complete = EXCLUDED.is_complete,
	updated_at = EXCLUDED.updated_at
`,
		record.DocumentID, record.Text, pagesJSON, record.IsConfirmed, record.IsComplete,
		record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert scope: %w", err)
	}
	return nil
}

// Get returns nil without error when no scope has been extracted yet.
func (r *ScopeRepository) Get(ctx context.Context, documentID string) (*domain.ScopeRecord, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT document_id, text, source_pages, is_confirmed, is_complete, created_at, updated_at
FROM scopes
WHERE document_id = $1
`, documentID)

	var record domain.ScopeRecord
	var pagesRaw []byte
	err := row.Scan(
		&record.DocumentID, &record.Text, &pagesRaw, &record.IsConfirmed, &record.IsComplete,
		&record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan scope: %w", err)
	}
	if err := json.Unmarshal(pagesRaw, &record.SourcePages); err != nil {
		return nil, fmt.Errorf("unmarshal source pages: %w", err)
	}
	return &record, nil
}
