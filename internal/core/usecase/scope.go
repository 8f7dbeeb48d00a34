package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/proposalforge/sotr-assistant/internal/core/domain"
	"github.com/proposalforge/sotr-assistant/internal/core/ports"
)

const scopeInstruction = `Extract the project scope from the uploaded Statement of Technical Requirements (SOTR) document.

### Instructions:
1. Use similarity_search to locate the scope section. Search for "project scope", "scope of work", "scope of supply" and related technical phrasings.
2. Summarize the scope narrative and cite the page number of every piece of evidence in the form (page N).
3. If the scope text refers to another section, annex or appendix ("refer to section X"), run another search for that reference and resolve it before concluding.
4. Cover both what the project includes and what it explicitly excludes.

### Output:
Return the consolidated scope narrative as plain text with page citations.`

type ScopeUseCase struct {
	factory *ToolsetFactory
	loop    *AgentLoop
	scopes  ports.ScopeStore
}

func NewScopeUseCase(factory *ToolsetFactory, loop *AgentLoop, scopes ports.ScopeStore) *ScopeUseCase {
	return &ScopeUseCase{factory: factory, loop: loop, scopes: scopes}
}

// Extract runs the scope-extraction task against the document. Source pages
// are recovered from the tool trace on a best-effort basis and may
// undercount the evidence actually used; the completeness flag only asserts
// a non-empty narrative.
func (uc *ScopeUseCase) Extract(ctx context.Context, documentID string, useCache bool) (*domain.ScopeRecord, error) {
	toolSet, doc, err := uc.factory.ForDocument(ctx, documentID, "")
	if err != nil {
		return nil, err
	}
	if err := requireProcessed(doc); err != nil {
		return nil, err
	}

	if useCache {
		if record, err := uc.scopes.Get(ctx, doc.ID); err == nil && record != nil {
			return record, nil
		}
	}

	result, err := uc.loop.Run(ctx, scopeInstruction, toolSet)
	if err != nil {
		return nil, fmt.Errorf("scope extraction: %w", err)
	}

	record := uc.buildRecord(doc.ID, result.Answer, pagesFromTrace(result.Trace), false)
	if err := uc.scopes.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("save scope record: %w", err)
	}
	return record, nil
}

// Confirm marks the scope as user-approved. When page numbers are given the
// narrative is replaced by a re-extraction constrained to those pages; page
// numbers entirely outside the document are rejected rather than producing a
// silently empty scope.
func (uc *ScopeUseCase) Confirm(ctx context.Context, documentID string, pageNumbers []int) (*domain.ScopeRecord, error) {
	toolSet, doc, err := uc.factory.ForDocument(ctx, documentID, "")
	if err != nil {
		return nil, err
	}
	if err := requireProcessed(doc); err != nil {
		return nil, err
	}

	existing, err := uc.scopes.Get(ctx, doc.ID)
	if err != nil || existing == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "confirm scope",
			fmt.Errorf("scope has not been extracted for document %q", doc.ID))
	}

	if len(pageNumbers) == 0 {
		existing.IsConfirmed = true
		existing.UpdatedAt = time.Now().UTC()
		if err := uc.scopes.Save(ctx, existing); err != nil {
			return nil, fmt.Errorf("save confirmed scope: %w", err)
		}
		return existing, nil
	}

	valid := make([]int, 0, len(pageNumbers))
	for _, page := range pageNumbers {
		if page >= 1 && page <= doc.TotalPages {
			valid = append(valid, page)
		}
	}
	if len(valid) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "confirm scope",
			fmt.Errorf("no valid pages selected"))
	}
	sort.Ints(valid)

	result, err := uc.loop.Run(ctx, constrainedScopeInstruction(valid), toolSet)
	if err != nil {
		return nil, fmt.Errorf("scope re-extraction: %w", err)
	}

	record := uc.buildRecord(doc.ID, result.Answer, valid, true)
	if err := uc.scopes.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("save confirmed scope: %w", err)
	}
	return record, nil
}

func (uc *ScopeUseCase) buildRecord(documentID, answer string, sourcePages []int, confirmed bool) *domain.ScopeRecord {
	text := strings.TrimSpace(answer)
	now := time.Now().UTC()
	return &domain.ScopeRecord{
		DocumentID:  documentID,
		Text:        text,
		SourcePages: sourcePages,
		IsConfirmed: confirmed,
		IsComplete:  text != "",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func constrainedScopeInstruction(pages []int) string {
	labels := make([]string, 0, len(pages))
	for _, page := range pages {
		labels = append(labels, fmt.Sprint(page))
	}
	return fmt.Sprintf(`Extract the project scope from the uploaded Statement of Technical Requirements (SOTR) document, using ONLY pages %s.

### Instructions:
1. Use page_extract to read the listed pages (at most 3 pages per call).
2. Summarize the scope narrative found on those pages, citing each page as (page N).
3. Do not draw evidence from any other page.

### Output:
Return the consolidated scope narrative as plain text with page citations.`, strings.Join(labels, ", "))
}

// pagesFromTrace scans tool outputs for "page <N>" mentions. This is a
// best-effort scan and a known source of undercounting evidence pages.
func pagesFromTrace(trace []domain.ToolInvocation) []int {
	seen := make(map[int]struct{})
	for _, invocation := range trace {
		fields := strings.Fields(invocation.Output)
		for i, field := range fields {
			if !strings.EqualFold(strings.Trim(field, "(:,."), "page") || i+1 >= len(fields) {
				continue
			}
			if n := leadingInt(fields[i+1]); n > 0 {
				seen[n] = struct{}{}
			}
		}
	}

	pages := make([]int, 0, len(seen))
	for page := range seen {
		pages = append(pages, page)
	}
	sort.Ints(pages)
	return pages
}

func leadingInt(raw string) int {
	end := 0
	for end < len(raw) && raw[end] >= '0' && raw[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	return atoiSafe(raw[:end])
}

func requireProcessed(doc *domain.Document) error {
	if doc.Status != domain.StatusProcessed {
		return domain.WrapError(domain.ErrDocumentNotReady, "check document",
			fmt.Errorf("document %q has status %q", doc.ID, doc.Status))
	}
	return nil
}
