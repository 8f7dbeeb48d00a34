package usecase

import (
	"context"
	"fmt"
)

// RetrievalUseCase exposes the retrieval tools outside the agent loop: the
// direct query endpoints and raw page-text extraction. Refusals keep their
// tool-level contract of explanatory text.
type RetrievalUseCase struct {
	factory *ToolsetFactory
}

func NewRetrievalUseCase(factory *ToolsetFactory) *RetrievalUseCase {
	return &RetrievalUseCase{factory: factory}
}

func (uc *RetrievalUseCase) Query(ctx context.Context, documentID, query string, startIdx, endIdx int) (string, error) {
	toolSet, doc, err := uc.factory.ForDocument(ctx, documentID, "")
	if err != nil {
		return "", err
	}
	if err := requireProcessed(doc); err != nil {
		return "", err
	}
	return toolSet.Invoke(ctx, toolRangeSearch, map[string]any{
		"query":     query,
		"start_idx": startIdx,
		"end_idx":   endIdx,
	})
}

func (uc *RetrievalUseCase) PageText(ctx context.Context, documentID, pageRange string) (string, error) {
	toolSet, _, err := uc.factory.ForDocument(ctx, documentID, "")
	if err != nil {
		return "", err
	}
	text, err := toolSet.Invoke(ctx, toolPageExtract, map[string]any{"page_range": pageRange})
	if err != nil {
		return "", fmt.Errorf("page extraction: %w", err)
	}
	return text, nil
}
