package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/proposalforge/sotr-assistant/internal/core/domain"
)

type ContentRepository struct {
	db *sql.DB
}

func NewContentRepository(db *sql.DB) *ContentRepository {
	return &ContentRepository{db: db}
}

// Save upserts drafted content keyed by (document, template, topic); the
// latest draft or user edit wins.
func (r *ContentRepository) Save(ctx context.Context, record domain.ContentRecord) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO contents (document_id, template_name, topic_key, text, updated_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (document_id, template_name, topic_key) DO UPDATE SET
	text = EXCLUDED.text,
	updated_at = EXCLUDED.updated_at
`,
		record.DocumentID, record.TemplateName, record.TopicKey, record.Text, record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert content: %w", err)
	}
	return nil
}

func (r *ContentRepository) Get(ctx context.Context, documentID, templateName, topicKey string) (*domain.ContentRecord, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT document_id, template_name, topic_key, text, updated_at
FROM contents
WHERE document_id = $1 AND template_name = $2 AND topic_key = $3
`, documentID, templateName, topicKey)

	var record domain.ContentRecord
	err := row.Scan(&record.DocumentID, &record.TemplateName, &record.TopicKey, &record.Text, &record.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("content for topic %q not found", topicKey)
		}
		return nil, fmt.Errorf("scan content: %w", err)
	}
	return &record, nil
}
