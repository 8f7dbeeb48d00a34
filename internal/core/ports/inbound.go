package ports

import (
	"context"
	"io"

	"github.com/proposalforge/sotr-assistant/internal/core/domain"
)

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, filename string, body io.Reader) (*domain.Document, error)
}

// DocumentIndexer is the inbound contract for asynchronous page extraction
// and vector indexing.
type DocumentIndexer interface {
	IndexByID(ctx context.Context, documentID string) error
}

// StatusReader exposes the lifecycle polling contract.
type StatusReader interface {
	GetStatus(ctx context.Context, documentID string) (domain.DocumentState, error)
}

// ScopeService extracts and confirms the document scope narrative.
type ScopeService interface {
	Extract(ctx context.Context, documentID string, useCache bool) (*domain.ScopeRecord, error)
	Confirm(ctx context.Context, documentID string, pageNumbers []int) (*domain.ScopeRecord, error)
}

// TopicService reconciles a template table of contents against the document.
type TopicService interface {
	Generate(ctx context.Context, documentID, templateName string) (*domain.TopicGeneration, error)
	SaveTopics(ctx context.Context, documentID, templateName string, topics []domain.Topic) error
	ListTopics(ctx context.Context, documentID, templateName string) ([]domain.Topic, error)
}

// ContentService drafts and stores per-topic narrative content.
type ContentService interface {
	Generate(ctx context.Context, documentID, templateName, topic string) (string, error)
	Save(ctx context.Context, record domain.ContentRecord) error
	Get(ctx context.Context, documentID, templateName, topic string) (*domain.ContentRecord, error)
}

// ChatService answers free-form questions grounded in document retrieval.
type ChatService interface {
	Chat(ctx context.Context, documentID, templateName, message string, history []domain.ChatExchange) (string, error)
}

// PageTextService extracts raw recognized text for a "<start>-<end>" page
// range. Resource-limit refusals come back as explanatory text, not errors.
type PageTextService interface {
	PageText(ctx context.Context, documentID, pageRange string) (string, error)
}

// QueryService runs direct similarity searches outside the agent loop.
type QueryService interface {
	Query(ctx context.Context, documentID, query string, startIdx, endIdx int) (string, error)
}
