package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/proposalforge/sotr-assistant/internal/core/domain"
	"github.com/proposalforge/sotr-assistant/internal/core/ports"
)

const contentInstruction = `You are an advanced AI assistant supporting a skilled engineering team in drafting high-level technical proposal content.
Use the previously generated content from template_lookup as a baseline.
Your task is to update only the key parameters, data points, and specifications based on the current Statement of Technical Requirements (SOTR), while retaining the overall structure and flow.

Workflow:
1. Retrieve the existing content with template_lookup.
2. Identify key parameters needing update (e.g., quantities, technical specifications, metrics).
3. Extract updated details from the current SOTR using similarity_search or page_extract.
4. Revise the content by incorporating the updates, ensuring consistency and clarity.

Guidelines:
- Retain the original content structure, modifying only necessary details.
- For each update, provide a brief explanation.
- Present the updated content as clean, plain text (no HTML styling).
- Generate detailed content that accurately reflects the requirements in the SOTR.`

type ContentUseCase struct {
	factory  *ToolsetFactory
	loop     *AgentLoop
	scopes   ports.ScopeStore
	contents ports.ContentStore
}

func NewContentUseCase(
	factory *ToolsetFactory,
	loop *AgentLoop,
	scopes ports.ScopeStore,
	contents ports.ContentStore,
) *ContentUseCase {
	return &ContentUseCase{
		factory:  factory,
		loop:     loop,
		scopes:   scopes,
		contents: contents,
	}
}

// Generate drafts content for one topic, grounding the template baseline
// against current document evidence. The agent's final answer is stored and
// returned verbatim; no structural parsing is applied.
func (uc *ContentUseCase) Generate(ctx context.Context, documentID, templateName, topic string) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "generate content",
			fmt.Errorf("topic is required"))
	}

	toolSet, doc, err := uc.factory.ForDocument(ctx, documentID, templateName)
	if err != nil {
		return "", err
	}
	if err := requireProcessed(doc); err != nil {
		return "", err
	}

	scope, err := uc.scopes.Get(ctx, doc.ID)
	if err != nil || scope == nil || !scope.IsConfirmed {
		return "", domain.WrapError(domain.ErrScopeUnconfirmed, "generate content",
			fmt.Errorf("document %q needs a confirmed scope before content drafting", doc.ID))
	}

	instruction := fmt.Sprintf("%s\n\nUser Selected Topic: %s", contentInstruction, topic)
	result, err := uc.loop.Run(ctx, instruction, toolSet)
	if err != nil {
		return "", fmt.Errorf("content drafting: %w", err)
	}

	record := domain.ContentRecord{
		DocumentID:   doc.ID,
		TemplateName: templateName,
		TopicKey:     topic,
		Text:         result.Answer,
		UpdatedAt:    time.Now().UTC(),
	}
	if err := uc.contents.Save(ctx, record); err != nil {
		return "", fmt.Errorf("save drafted content: %w", err)
	}
	return result.Answer, nil
}

// Save stores user-edited content for a topic, overwriting any prior draft.
func (uc *ContentUseCase) Save(ctx context.Context, record domain.ContentRecord) error {
	if strings.TrimSpace(record.TopicKey) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "save content",
			fmt.Errorf("topic is required"))
	}
	record.UpdatedAt = time.Now().UTC()
	if err := uc.contents.Save(ctx, record); err != nil {
		return fmt.Errorf("save content: %w", err)
	}
	return nil
}

func (uc *ContentUseCase) Get(ctx context.Context, documentID, templateName, topic string) (*domain.ContentRecord, error) {
	return uc.contents.Get(ctx, documentID, templateName, topic)
}
