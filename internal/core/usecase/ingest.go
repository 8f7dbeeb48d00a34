package usecase

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/proposalforge/sotr-assistant/internal/core/domain"
	"github.com/proposalforge/sotr-assistant/internal/core/ports"
)

type IngestDocumentUseCase struct {
	repo     ports.DocumentRepository
	storage  ports.ObjectStorage
	queue    ports.MessageQueue
	registry *StateRegistry
}

func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	registry *StateRegistry,
) *IngestDocumentUseCase {
	return &IngestDocumentUseCase{
		repo:     repo,
		storage:  storage,
		queue:    queue,
		registry: registry,
	}
}

// Upload stores the file, records the document as uploading and queues the
// background indexing job. The document id is derived from the filename, so
// re-uploading the same file replaces the earlier record.
func (uc *IngestDocumentUseCase) Upload(
	ctx context.Context,
	filename string,
	body io.Reader,
) (*domain.Document, error) {
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document",
			fmt.Errorf("only PDF files are supported, got %q", filename))
	}

	id := sanitizeFilename(filename)
	now := time.Now().UTC()

	if err := uc.storage.Save(ctx, id, body); err != nil {
		return nil, fmt.Errorf("save uploaded file: %w", err)
	}

	doc := &domain.Document{
		ID:          id,
		Filename:    filename,
		StoragePath: id,
		Status:      domain.StatusUploading,
		Message:     "document uploaded, indexing queued",
		Progress:    0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := uc.repo.Save(ctx, doc); err != nil {
		return nil, fmt.Errorf("save document record: %w", err)
	}

	uc.registry.Begin(doc.ID, domain.DocumentState{
		Status:  domain.StatusUploading,
		Message: doc.Message,
	})

	if err := uc.queue.PublishDocumentUploaded(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("publish indexing job: %w", err)
	}

	return doc, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "document.pdf"
	}
	return base
}
