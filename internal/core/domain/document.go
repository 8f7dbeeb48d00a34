package domain

import (
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

type DocumentStatus string

const (
	StatusUploading  DocumentStatus = "uploading"
	StatusProcessing DocumentStatus = "processing"
	StatusProcessed  DocumentStatus = "processed"
	StatusError      DocumentStatus = "error"
)

// Terminal reports whether a status ends the current upload attempt.
func (s DocumentStatus) Terminal() bool {
	return s == StatusProcessed || s == StatusError
}

type Document struct {
	ID          string         `json:"id"`
	Filename    string         `json:"filename"`
	StoragePath string         `json:"storage_path"`
	Status      DocumentStatus `json:"status"`
	Message     string         `json:"message,omitempty"`
	Progress    int            `json:"progress"`
	TotalPages  int            `json:"total_pages"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// DocumentState is the lifecycle snapshot polled by callers while indexing is
// in flight. Status, message, progress and page count move as one unit.
type DocumentState struct {
	Status     DocumentStatus `json:"status"`
	Message    string         `json:"message"`
	Progress   int            `json:"progress"`
	TotalPages int            `json:"total_pages"`
}

type Page struct {
	DocumentID string `json:"document_id"`
	Number     int    `json:"page"`
	Text       string `json:"text"`
}

// Passage is one retrievable unit of text in a document's vector collection.
// The unit of indexing is one recognized page.
type Passage struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

type ScoredPassage struct {
	Page  int     `json:"page"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// CollectionName derives the per-document vector collection namespace. The
// extension is stripped and every non-alphanumeric rune is replaced so two
// documents never share an index namespace.
func CollectionName(documentID string) string {
	base := strings.TrimSuffix(documentID, filepath.Ext(documentID))
	sanitized := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '_'
	}, base)
	return "doc_" + sanitized
}
