package domain

import "time"

type TopicStatus string

const (
	TopicStatusKeep   TopicStatus = "keep"
	TopicStatusAdd    TopicStatus = "add"
	TopicStatusRemove TopicStatus = "remove"
)

// Topic is one line item of a reconciled table of contents. Level is derived
// from the dot-separated segments of Number; 0 means unnumbered.
type Topic struct {
	ID           string      `json:"id,omitempty"`
	DocumentID   string      `json:"document_id,omitempty"`
	TemplateName string      `json:"template_name,omitempty"`
	Number       string      `json:"number,omitempty"`
	Text         string      `json:"text"`
	Level        int         `json:"level"`
	Status       TopicStatus `json:"status"`
	Page         int         `json:"page,omitempty"`
	Position     int         `json:"position"`
	IsConfirmed  bool        `json:"is_confirmed"`
}

// TopicGeneration is the reconciliation result: the parsed topic list in
// source order plus the agent's raw answer for auditability.
type TopicGeneration struct {
	Topics      []Topic `json:"topics"`
	RawResponse string  `json:"raw_response"`
}

// ContentRecord holds drafted or user-edited narrative for one topic of a
// (document, template) pair. Later saves overwrite.
type ContentRecord struct {
	DocumentID   string    `json:"document_id"`
	TemplateName string    `json:"template_name"`
	TopicKey     string    `json:"topic"`
	Text         string    `json:"content"`
	UpdatedAt    time.Time `json:"updated_at"`
}
