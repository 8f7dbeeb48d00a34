package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/proposalforge/sotr-assistant/internal/core/domain"
)

func newSearchToolSet(t *testing.T, hits []domain.ScoredPassage) (*ToolSet, *fakeDocumentRepo, *fakeEmbedder, *fakeVectorStore) {
	t.Helper()
	repo := newFakeDocumentRepo(processedDoc("sotr.pdf", 3))
	repo.pages["sotr.pdf"] = []domain.Page{
		{DocumentID: "sotr.pdf", Number: 1, Text: "page one text"},
		{DocumentID: "sotr.pdf", Number: 2, Text: "page two text"},
		{DocumentID: "sotr.pdf", Number: 3, Text: "page three text"},
	}
	embedder := &fakeEmbedder{}
	vectors := newFakeVectorStore()
	vectors.existing[domain.CollectionName("sotr.pdf")] = true
	vectors.hits = hits
	toolSet := NewToolSet(embedder, vectors, repo, ToolConfig{DocumentID: "sotr.pdf"})
	return toolSet, repo, embedder, vectors
}

func TestSimilaritySearchClampsResultWindow(t *testing.T) {
	hits := []domain.ScoredPassage{
		{Page: 1, Text: "alpha", Score: 0.9},
		{Page: 2, Text: "bravo", Score: 0.8},
		{Page: 3, Text: "charlie", Score: 0.7},
		{Page: 4, Text: "delta", Score: 0.6},
		{Page: 5, Text: "echo", Score: 0.5},
	}
	toolSet, _, _, vectors := newSearchToolSet(t, hits)

	out, err := toolSet.Invoke(context.Background(), "range_search", map[string]any{
		"query":     "propulsion",
		"start_idx": 0,
		"end_idx":   10,
	})
	if err != nil {
		t.Fatalf("range_search: %v", err)
	}

	blocks := strings.Split(out, "\n---\n")
	if len(blocks) != 3 {
		t.Fatalf("expected 3 result blocks, got %d: %q", len(blocks), out)
	}
	if vectors.lastLimit != 3 {
		t.Fatalf("expected search limit 3, got %d", vectors.lastLimit)
	}
	if strings.Contains(out, "delta") || strings.Contains(out, "echo") {
		t.Fatalf("results beyond the window leaked into output: %q", out)
	}
	if !strings.Contains(out, "(page 1)") {
		t.Fatalf("expected page citation in output, got %q", out)
	}
}

func TestSimilaritySearchWindowStartsAtOffset(t *testing.T) {
	hits := []domain.ScoredPassage{
		{Page: 1, Text: "alpha", Score: 0.9},
		{Page: 2, Text: "bravo", Score: 0.8},
		{Page: 3, Text: "charlie", Score: 0.7},
	}
	toolSet, _, _, _ := newSearchToolSet(t, hits)

	out, err := toolSet.Invoke(context.Background(), "range_search", map[string]any{
		"query":     "propulsion",
		"start_idx": 1,
		"end_idx":   2,
	})
	if err != nil {
		t.Fatalf("range_search: %v", err)
	}
	if strings.Contains(out, "alpha") || !strings.Contains(out, "bravo") {
		t.Fatalf("expected only offset results, got %q", out)
	}
}

func TestSimilaritySearchMissingCollection(t *testing.T) {
	toolSet, _, embedder, vectors := newSearchToolSet(t, nil)
	delete(vectors.existing, domain.CollectionName("sotr.pdf"))

	out, err := toolSet.Invoke(context.Background(), "similarity_search", map[string]any{"query": "anything"})
	if err != nil {
		t.Fatalf("similarity_search: %v", err)
	}
	if !strings.Contains(out, "not found") || !strings.Contains(out, "processed correctly") {
		t.Fatalf("expected missing-collection explanation, got %q", out)
	}
	if embedder.queryCalls != 0 {
		t.Fatalf("expected no embedding calls, got %d", embedder.queryCalls)
	}
	if vectors.searchCalls != 0 {
		t.Fatalf("expected no search calls, got %d", vectors.searchCalls)
	}
}

func TestSimilaritySearchNoHits(t *testing.T) {
	toolSet, _, _, _ := newSearchToolSet(t, nil)

	out, err := toolSet.Invoke(context.Background(), "similarity_search", map[string]any{"query": "anything"})
	if err != nil {
		t.Fatalf("similarity_search: %v", err)
	}
	if out != "No results found for the given query and filters." {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestPageExtractRefusesWideRange(t *testing.T) {
	toolSet, repo, embedder, vectors := newSearchToolSet(t, nil)

	out, err := toolSet.Invoke(context.Background(), "page_extract", map[string]any{"page_range": "1-5"})
	if err != nil {
		t.Fatalf("page_extract: %v", err)
	}
	if out != "You are asking for too big a page range. Set to a maximum of 3 pages." {
		t.Fatalf("unexpected refusal text: %q", out)
	}
	if repo.listCalls != 0 {
		t.Fatalf("refusal must happen before any page lookup, got %d calls", repo.listCalls)
	}
	if embedder.queryCalls != 0 || vectors.searchCalls != 0 {
		t.Fatalf("refusal must not touch search collaborators")
	}
}

func TestPageExtractOutOfBounds(t *testing.T) {
	toolSet, _, _, _ := newSearchToolSet(t, nil)

	out, err := toolSet.Invoke(context.Background(), "page_extract", map[string]any{"page_range": "8-9"})
	if err != nil {
		t.Fatalf("page_extract: %v", err)
	}
	if out != "The page range provided is out of bounds." {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestPageExtractConcatenatesPages(t *testing.T) {
	toolSet, _, _, _ := newSearchToolSet(t, nil)

	out, err := toolSet.Invoke(context.Background(), "page_extract", map[string]any{"page_range": "1-2"})
	if err != nil {
		t.Fatalf("page_extract: %v", err)
	}
	if !strings.Contains(out, "--- Page 1 ---") || !strings.Contains(out, "--- Page 2 ---") {
		t.Fatalf("expected page markers, got %q", out)
	}
	if !strings.Contains(out, "page one text") || !strings.Contains(out, "page two text") {
		t.Fatalf("expected page text, got %q", out)
	}
	if strings.Contains(out, "page three text") {
		t.Fatalf("page outside range leaked: %q", out)
	}
}

func TestPageExtractInvalidFormat(t *testing.T) {
	toolSet, repo, _, _ := newSearchToolSet(t, nil)

	out, err := toolSet.Invoke(context.Background(), "page_extract", map[string]any{"page_range": "five to six"})
	if err != nil {
		t.Fatalf("page_extract: %v", err)
	}
	if !strings.Contains(out, "Invalid page range") {
		t.Fatalf("unexpected output: %q", out)
	}
	if repo.listCalls != 0 {
		t.Fatalf("invalid input must not trigger page lookup")
	}
}

func TestTemplateLookupFuzzyMatch(t *testing.T) {
	repo := newFakeDocumentRepo(processedDoc("sotr.pdf", 3))
	toolSet := NewToolSet(&fakeEmbedder{}, newFakeVectorStore(), repo, ToolConfig{
		DocumentID: "sotr.pdf",
		TemplateTable: map[string]string{
			"Propulsion Systems": "baseline propulsion content",
			"Cooling Plant":      "baseline cooling content",
		},
	})

	out, err := toolSet.Invoke(context.Background(), "template_lookup", map[string]any{"topic": "Propulsion System"})
	if err != nil {
		t.Fatalf("template_lookup: %v", err)
	}
	if out != "baseline propulsion content" {
		t.Fatalf("expected near-match to resolve, got %q", out)
	}

	out, err = toolSet.Invoke(context.Background(), "template_lookup", map[string]any{"topic": "Weapons Handling"})
	if err != nil {
		t.Fatalf("template_lookup: %v", err)
	}
	if out != "No Template found for this topic." {
		t.Fatalf("expected no-template sentinel, got %q", out)
	}
}

func TestTemplateLookupEmptyTable(t *testing.T) {
	repo := newFakeDocumentRepo(processedDoc("sotr.pdf", 3))
	toolSet := NewToolSet(&fakeEmbedder{}, newFakeVectorStore(), repo, ToolConfig{DocumentID: "sotr.pdf"})

	out, err := toolSet.Invoke(context.Background(), "template_lookup", map[string]any{"topic": "Anything"})
	if err != nil {
		t.Fatalf("template_lookup: %v", err)
	}
	if out != "No Template found for this topic." {
		t.Fatalf("expected no-template sentinel, got %q", out)
	}
}

func TestInvokeUnknownTool(t *testing.T) {
	toolSet, _, _, _ := newSearchToolSet(t, nil)

	_, err := toolSet.Invoke(context.Background(), "telepathy", nil)
	if !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool, got %v", err)
	}
}

func TestCollectionNameSanitization(t *testing.T) {
	cases := map[string]string{
		"My Report v2.pdf": "doc_My_Report_v2",
		"sotr.pdf":         "doc_sotr",
		"plain":            "doc_plain",
	}
	for input, want := range cases {
		if got := domain.CollectionName(input); got != want {
			t.Fatalf("CollectionName(%q) = %q, want %q", input, got, want)
		}
	}
}
