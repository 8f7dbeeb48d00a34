package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/proposalforge/sotr-assistant/internal/core/domain"
)

type TopicRepository struct {
	db *sql.DB
}

func NewTopicRepository(db *sql.DB) *TopicRepository {
	return &TopicRepository{db: db}
}

// ReplaceTopics swaps the whole topic set for a (document, template) pair in
// one transaction.
func (r *TopicRepository) ReplaceTopics(ctx context.Context, documentID, templateName string, topics []domain.Topic) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin topics tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `
DELETE FROM topics WHERE document_id = $1 AND template_name = $2
`, documentID, templateName); err != nil {
		return fmt.Errorf("delete stale topics: %w", err)
	}

	for _, topic := range topics {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO topics (id, document_id, template_name, number, text, level, status, page, position, is_confirmed)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`,
			topic.ID, documentID, templateName, topic.Number, topic.Text, topic.Level,
			string(topic.Status), topic.Page, topic.Position, topic.IsConfirmed,
		); err != nil {
			return fmt.Errorf("insert topic %q: %w", topic.Text, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit topics tx: %w", err)
	}
	return nil
}

func (r *TopicRepository) ListTopics(ctx context.Context, documentID, templateName string) ([]domain.Topic, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, document_id, template_name, number, text, level, status, page, position, is_confirmed
FROM topics
WHERE document_id = $1 AND template_name = $2
ORDER BY position
`, documentID, templateName)
	if err != nil {
		return nil, fmt.Errorf("query topics: %w", err)
	}
	defer rows.Close()

	var topics []domain.Topic
	for rows.Next() {
		var topic domain.Topic
		var status string
		if err := rows.Scan(
			&topic.ID, &topic.DocumentID, &topic.TemplateName, &topic.Number, &topic.Text,
			&topic.Level, &status, &topic.Page, &topic.Position, &topic.IsConfirmed,
		); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		topic.Status = domain.TopicStatus(status)
		topics = append(topics, topic)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate topics: %w", err)
	}
	return topics, nil
}
