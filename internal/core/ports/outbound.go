package ports

import (
	"context"
	"io"

	"github.com/proposalforge/sotr-assistant/internal/core/domain"
)

// DocumentRepository persists document records and their recognized pages.
type DocumentRepository interface {
	Save(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateState(ctx context.Context, id string, state domain.DocumentState) error
	ReplacePages(ctx context.Context, documentID string, pages []domain.Page) error
	ListPages(ctx context.Context, documentID string) ([]domain.Page, error)
}

// ObjectStorage stores uploaded source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes indexing jobs.
type MessageQueue interface {
	PublishDocumentUploaded(ctx context.Context, documentID string) error
	SubscribeDocumentUploaded(ctx context.Context, handler func(context.Context, string) error) error
}

// PageRecognizer renders a stored document into its ordered page texts.
type PageRecognizer interface {
	RecognizePages(ctx context.Context, storagePath string) ([]string, error)
}

// Embedder builds vectors for passages and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorStore manages per-document collections and semantic search.
type VectorStore interface {
	UpsertCollection(ctx context.Context, name string, passages []domain.Passage, vectors [][]float32) error
	HasCollection(ctx context.Context, name string) (bool, error)
	DropCollection(ctx context.Context, name string) error
	Search(ctx context.Context, name string, queryVector []float32, limit int) ([]domain.ScoredPassage, error)
}

// Generator is the language-model capability. Every call site wants a JSON
// step object back, so that is the only shape the port offers.
type Generator interface {
	GenerateJSONFromPrompt(ctx context.Context, prompt string) (string, error)
}

// ScopeStore persists the per-document scope record, replace-on-write.
type ScopeStore interface {
	Save(ctx context.Context, record *domain.ScopeRecord) error
	Get(ctx context.Context, documentID string) (*domain.ScopeRecord, error)
}

// TopicStore persists the topic set of a (document, template) pair wholesale.
type TopicStore interface {
	ReplaceTopics(ctx context.Context, documentID, templateName string, topics []domain.Topic) error
	ListTopics(ctx context.Context, documentID, templateName string) ([]domain.Topic, error)
}

// ContentStore persists per-topic content, last write wins.
type ContentStore interface {
	Save(ctx context.Context, record domain.ContentRecord) error
	Get(ctx context.Context, documentID, templateName, topicKey string) (*domain.ContentRecord, error)
}

// TemplateStore manages project templates.
type TemplateStore interface {
	Save(ctx context.Context, template *domain.Template) error
	GetByName(ctx context.Context, projectName string) (*domain.Template, error)
	List(ctx context.Context) ([]domain.Template, error)
	Delete(ctx context.Context, projectName string) error
}

// TemplateTableLoader reads a two-column key/value reference sheet.
type TemplateTableLoader interface {
	Load(ctx context.Context, path string) (map[string]string, error)
}
