package usecase

import (
	"context"
	"fmt"

	"github.com/proposalforge/sotr-assistant/internal/core/domain"
	"github.com/proposalforge/sotr-assistant/internal/core/ports"
)

// StatusUseCase serves the non-blocking polling contract. The in-memory
// registry answers for in-flight documents; the repository answers for
// documents whose state only exists in persistence (e.g. after a restart).
type StatusUseCase struct {
	repo     ports.DocumentRepository
	registry *StateRegistry
}

func NewStatusUseCase(repo ports.DocumentRepository, registry *StateRegistry) *StatusUseCase {
	return &StatusUseCase{repo: repo, registry: registry}
}

func (uc *StatusUseCase) GetStatus(ctx context.Context, documentID string) (domain.DocumentState, error) {
	if state, ok := uc.registry.Get(documentID); ok {
		return state, nil
	}

	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return domain.DocumentState{}, domain.WrapError(domain.ErrDocumentNotFound, "get status",
			fmt.Errorf("document %q: %w", documentID, err))
	}
	return domain.DocumentState{
		Status:     doc.Status,
		Message:    doc.Message,
		Progress:   doc.Progress,
		TotalPages: doc.TotalPages,
	}, nil
}
