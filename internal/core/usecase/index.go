package usecase

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/proposalforge/sotr-assistant/internal/core/domain"
	"github.com/proposalforge/sotr-assistant/internal/core/ports"
)

// Boilerplate substring stamped on every page of the source documents.
const pageWatermark = "Larsen & Toubro Design Competency Center "

// Extraction is done when progress reaches this milestone; the remainder is
// vector indexing.
const extractionProgress = 60

var whitespaceRun = regexp.MustCompile(`\s+`)

type IndexDocumentUseCase struct {
	repo       ports.DocumentRepository
	storage    ports.ObjectStorage
	recognizer ports.PageRecognizer
	embedder   ports.Embedder
	vectorDB   ports.VectorStore
	registry   *StateRegistry
}

func NewIndexDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	recognizer ports.PageRecognizer,
	embedder ports.Embedder,
	vectorDB ports.VectorStore,
	registry *StateRegistry,
) *IndexDocumentUseCase {
	return &IndexDocumentUseCase{
		repo:       repo,
		storage:    storage,
		recognizer: recognizer,
		embedder:   embedder,
		vectorDB:   vectorDB,
		registry:   registry,
	}
}

// IndexByID turns a stored document into retrievable passages and rebuilds
// its vector collection. Indexing is idempotent: an existing collection is
// dropped and recreated from scratch. Any failure downgrades the document to
// error status with a captured message instead of crashing the background
// runner.
func (uc *IndexDocumentUseCase) IndexByID(ctx context.Context, documentID string) error {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("fetch document by id: %w", err)
	}

	uc.setState(ctx, doc.ID, domain.DocumentState{
		Status:  domain.StatusProcessing,
		Message: "extracting text from document",
	})

	pages, err := uc.extractPages(ctx, doc)
	if err != nil {
		return uc.fail(ctx, doc.ID, err)
	}

	uc.setState(ctx, doc.ID, domain.DocumentState{
		Status:     domain.StatusProcessing,
		Message:    "text extraction complete, building vector index",
		Progress:   extractionProgress,
		TotalPages: len(pages),
	})

	if err := uc.rebuildCollection(ctx, doc.ID, pages); err != nil {
		return uc.fail(ctx, doc.ID, err)
	}

	uc.setState(ctx, doc.ID, domain.DocumentState{
		Status:     domain.StatusProcessed,
		Message:    "document processed successfully",
		Progress:   100,
		TotalPages: len(pages),
	})
	return nil
}

func (uc *IndexDocumentUseCase) extractPages(ctx context.Context, doc *domain.Document) ([]domain.Page, error) {
	texts, err := uc.recognizer.RecognizePages(ctx, doc.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("recognize pages: %w", err)
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("document has no pages")
	}

	pages := make([]domain.Page, 0, len(texts))
	for i, text := range texts {
		pages = append(pages, domain.Page{
			DocumentID: doc.ID,
			Number:     i + 1,
			Text:       cleanPageText(text),
		})
	}

	if err := uc.repo.ReplacePages(ctx, doc.ID, pages); err != nil {
		return nil, fmt.Errorf("store pages: %w", err)
	}
	return pages, nil
}

func (uc *IndexDocumentUseCase) rebuildCollection(ctx context.Context, documentID string, pages []domain.Page) error {
	collection := domain.CollectionName(documentID)

	exists, err := uc.vectorDB.HasCollection(ctx, collection)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if exists {
		if err := uc.vectorDB.DropCollection(ctx, collection); err != nil {
			return fmt.Errorf("drop stale collection: %w", err)
		}
	}

	passages := make([]domain.Passage, 0, len(pages))
	texts := make([]string, 0, len(pages))
	for _, page := range pages {
		passages = append(passages, domain.Passage{Page: page.Number, Text: page.Text})
		texts = append(texts, page.Text)
	}

	vectors, err := uc.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed passages: %w", err)
	}
	if len(vectors) != len(passages) {
		return fmt.Errorf("vectors/passages mismatch: %d/%d", len(vectors), len(passages))
	}

	if err := uc.vectorDB.UpsertCollection(ctx, collection, passages, vectors); err != nil {
		return fmt.Errorf("upsert collection: %w", err)
	}
	return nil
}

// setState applies the snapshot to the in-memory registry and writes it
// through to the repository so state survives a restart.
func (uc *IndexDocumentUseCase) setState(ctx context.Context, documentID string, state domain.DocumentState) {
	if !uc.registry.Put(documentID, state) {
		return
	}
	_ = uc.repo.UpdateState(ctx, documentID, state)
}

func (uc *IndexDocumentUseCase) fail(ctx context.Context, documentID string, cause error) error {
	uc.setState(ctx, documentID, domain.DocumentState{
		Status:   domain.StatusError,
		Message:  fmt.Sprintf("error processing document: %v", cause),
		Progress: 0,
	})
	return cause
}

func cleanPageText(text string) string {
	text = strings.ReplaceAll(text, pageWatermark, "")
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
}
