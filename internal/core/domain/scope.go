package domain

import "time"

// ScopeRecord is the extracted scope narrative for a document. At most one
// live record exists per document; re-extraction replaces it.
type ScopeRecord struct {
	DocumentID  string    `json:"document_id"`
	Text        string    `json:"scope_text"`
	SourcePages []int     `json:"source_pages"`
	IsConfirmed bool      `json:"is_confirmed"`
	IsComplete  bool      `json:"is_complete"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
