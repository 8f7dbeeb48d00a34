package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/proposalforge/sotr-assistant/internal/core/domain"
)

type TemplateRepository struct {
	db *sql.DB
}

func NewTemplateRepository(db *sql.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

func (r *TemplateRepository) Save(ctx context.Context, template *domain.Template) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO templates (project_name, toc, file_path, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (project_name) DO UPDATE SET
	toc = EXCLUDED.toc,
	file_path = EXCLUDED.file_path,
	updated_at = EXCLUDED.updated_at
`,
		template.ProjectName, template.TOC, template.FilePath, template.CreatedAt, template.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert template: %w", err)
	}
	return nil
}

func (r *TemplateRepository) GetByName(ctx context.Context, projectName string) (*domain.Template, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT project_name, toc, file_path, created_at, updated_at
FROM templates
WHERE project_name = $1
`, projectName)

	var template domain.Template
	err := row.Scan(&template.ProjectName, &template.TOC, &template.FilePath, &template.CreatedAt, &template.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrTemplateNotFound, "get template",
				fmt.Errorf("template not found: %s", projectName))
		}
		return nil, fmt.Errorf("scan template: %w", err)
	}
	return &template, nil
}

func (r *TemplateRepository) List(ctx context.Context) ([]domain.Template, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT project_name, toc, file_path, created_at, updated_at
FROM templates
ORDER BY project_name
`)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	var templates []domain.Template
	for rows.Next() {
		var template domain.Template
		if err := rows.Scan(&template.ProjectName, &template.TOC, &template.FilePath,
			&template.CreatedAt, &template.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, template)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return templates, nil
}

func (r *TemplateRepository) Delete(ctx context.Context, projectName string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM templates WHERE project_name = $1`, projectName)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return domain.WrapError(domain.ErrTemplateNotFound, "delete template",
			fmt.Errorf("template not found: %s", projectName))
	}
	return nil
}
