package domain

import "time"

// Template is a project baseline: the example table of contents used for
// reconciliation and an optional two-column key/value reference spreadsheet
// used for fuzzy lookup during content drafting.
type Template struct {
	ProjectName string    `json:"project_name"`
	TOC         string    `json:"project_toc"`
	FilePath    string    `json:"file_path,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
