package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/proposalforge/sotr-assistant/internal/core/domain"
	"github.com/proposalforge/sotr-assistant/internal/core/ports"
)

const (
	toolSimilaritySearch = "similarity_search"
	toolRangeSearch      = "range_search"
	toolPageExtract      = "page_extract"
	toolTemplateLookup   = "template_lookup"
)

// Similarity search never returns more than this many passages, no matter
// what window the caller requests.
const maxSearchResults = 3

// Page-range extraction refuses spans larger than this.
const maxPageSpan = 3

const noTemplateSentinel = "No Template found for this topic."

// ErrUnknownTool marks an invocation of a tool name that is not in the
// catalog; the agent loop treats it as recoverable.
var ErrUnknownTool = errors.New("unknown tool")

var pageRangePattern = regexp.MustCompile(`^\s*(\d+)\s*-\s*(\d+)\s*$`)

// PageReader is the slice of the document repository the tool set needs.
type PageReader interface {
	ListPages(ctx context.Context, documentID string) ([]domain.Page, error)
}

// ToolConfig fully determines a tool set's behavior. It is fixed at
// construction; tools never read ambient mutable state.
type ToolConfig struct {
	DocumentID     string
	Collection     string
	TemplateTable  map[string]string
	MatchThreshold float64
}

// ToolSet is the fixed catalog of retrieval operations exposed to the agent
// loop for one document. Every tool returns text the agent can reason over;
// resource-limit refusals and missing-collection conditions come back as
// explanatory strings, never as raised errors.
type ToolSet struct {
	cfg      ToolConfig
	embedder ports.Embedder
	vectorDB ports.VectorStore
	pages    PageReader
}

func NewToolSet(embedder ports.Embedder, vectorDB ports.VectorStore, pages PageReader, cfg ToolConfig) *ToolSet {
	if cfg.MatchThreshold <= 0 || cfg.MatchThreshold > 1 {
		cfg.MatchThreshold = 0.8
	}
	if cfg.Collection == "" {
		cfg.Collection = domain.CollectionName(cfg.DocumentID)
	}
	return &ToolSet{
		cfg:      cfg,
		embedder: embedder,
		vectorDB: vectorDB,
		pages:    pages,
	}
}

// Definitions returns the fixed natural-language tool contracts handed to
// the agent verbatim.
func (t *ToolSet) Definitions() []domain.ToolDefinition {
	return []domain.ToolDefinition{
		{
			Name: toolSimilaritySearch,
			Description: "Performs a fast similarity search within the uploaded document using the provided query text. " +
				"Input: {\"query\": string}. " +
				"Use this tool to find relevant sections from the uploaded document that match the query.",
		},
		{
			Name: toolRangeSearch,
			Description: "Performs a similarity search with a custom result window. " +
				"Input: {\"query\": string, \"start_idx\": int, \"end_idx\": int}. " +
				"Use this for more targeted, paginated results. At most 3 results are returned from start_idx.",
		},
		{
			Name: toolPageExtract,
			Description: "Extracts raw recognized text from specific pages of the document. " +
				"Input: {\"page_range\": string in format 'start-end', e.g. '3-5'}. " +
				"A maximum of 3 pages can be extracted at once. Use when you need to analyze specific pages directly.",
		},
		{
			Name: toolTemplateLookup,
			Description: "Retrieves the best-matching predefined template content for a given topic. " +
				"Input: {\"topic\": string}. " +
				"Use when a topic is selected and baseline content is needed for detailed generation.",
		},
	}
}

// Invoke dispatches one tool call by name. A returned error means the
// invocation itself could not be interpreted; collaborator problems surface
// as explanatory text instead.
func (t *ToolSet) Invoke(ctx context.Context, name string, input map[string]any) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case toolSimilaritySearch:
		return t.similaritySearch(ctx, stringInput(input, "query", ""), 0, maxSearchResults), nil
	case toolRangeSearch:
		start := intInput(input, "start_idx", 0)
		end := intInput(input, "end_idx", start+maxSearchResults)
		return t.similaritySearch(ctx, stringInput(input, "query", ""), start, end), nil
	case toolPageExtract:
		return t.pageExtract(ctx, stringInput(input, "page_range", "")), nil
	case toolTemplateLookup:
		return t.templateLookup(stringInput(input, "topic", "")), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
}

// similaritySearch returns up to 3 ranked passages from the window
// [startIdx, endIdx). The window is clamped server-side to a span of 3
// counted from its start regardless of the requested span.
func (t *ToolSet) similaritySearch(ctx context.Context, query string, startIdx, endIdx int) string {
	if strings.TrimSpace(query) == "" {
		return "No results found for the given query and filters."
	}
	if startIdx < 0 {
		startIdx = 0
	}
	if endIdx > startIdx+maxSearchResults || endIdx <= startIdx {
		endIdx = startIdx + maxSearchResults
	}

	exists, err := t.vectorDB.HasCollection(ctx, t.cfg.Collection)
	if err != nil || !exists {
		return fmt.Sprintf("Error: collection %q not found. Ensure the document has been processed correctly.", t.cfg.Collection)
	}

	queryVector, err := t.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return fmt.Sprintf("Error generating embedding vector: %v", err)
	}

	hits, err := t.vectorDB.Search(ctx, t.cfg.Collection, queryVector, startIdx+maxSearchResults)
	if err != nil {
		return fmt.Sprintf("Error during search: %v", err)
	}

	if startIdx >= len(hits) {
		return "No results found for the given query and filters."
	}
	if endIdx > len(hits) {
		endIdx = len(hits)
	}
	hits = hits[startIdx:endIdx]
	if len(hits) == 0 {
		return "No results found for the given query and filters."
	}

	formatted := make([]string, 0, len(hits))
	for _, hit := range hits {
		formatted = append(formatted, fmt.Sprintf("[score=%.3f] (page %d) %s", hit.Score, hit.Page, hit.Text))
	}
	return strings.Join(formatted, "\n---\n")
}

// pageExtract returns concatenated raw text for an inclusive page range.
// Refusals are returned before any page lookup happens.
func (t *ToolSet) pageExtract(ctx context.Context, pageRange string) string {
	match := pageRangePattern.FindStringSubmatch(pageRange)
	if match == nil {
		return "Invalid page range. Provide it as 'start-end', e.g. '3-5'."
	}
	start := atoiSafe(match[1])
	end := atoiSafe(match[2])
	if end < start {
		return "Invalid page range. The start page must not exceed the end page."
	}
	if end-start+1 > maxPageSpan {
		return "You are asking for too big a page range. Set to a maximum of 3 pages."
	}

	pages, err := t.pages.ListPages(ctx, t.cfg.DocumentID)
	if err != nil {
		return fmt.Sprintf("Error reading document pages: %v", err)
	}

	var builder strings.Builder
	for _, page := range pages {
		if page.Number < start || page.Number > end {
			continue
		}
		fmt.Fprintf(&builder, "\n--- Page %d ---\n%s", page.Number, page.Text)
	}
	if builder.Len() == 0 {
		return "The page range provided is out of bounds."
	}
	return strings.TrimSpace(builder.String())
}

// templateLookup returns the value whose key best matches the topic label,
// provided the similarity meets the acceptance threshold.
func (t *ToolSet) templateLookup(topic string) string {
	topic = strings.ToLower(strings.TrimSpace(topic))
	if topic == "" || len(t.cfg.TemplateTable) == 0 {
		return noTemplateSentinel
	}

	bestScore := 0.0
	bestValue := ""
	for key, value := range t.cfg.TemplateTable {
		score := fuzzyRatio(topic, strings.ToLower(key))
		if score > bestScore {
			bestScore = score
			bestValue = value
		}
	}
	if bestScore >= t.cfg.MatchThreshold {
		return bestValue
	}
	return noTemplateSentinel
}

// fuzzyRatio is a normalized similarity in [0,1] based on edit distance.
func fuzzyRatio(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}

// ToolsetFactory builds immutable per-document tool sets. The template
// reference table is loaded once at construction of each set, so a tool's
// behavior is fully determined by its constructor arguments.
type ToolsetFactory struct {
	repo           ports.DocumentRepository
	embedder       ports.Embedder
	vectorDB       ports.VectorStore
	templates      ports.TemplateStore
	tables         ports.TemplateTableLoader
	matchThreshold float64
}

func NewToolsetFactory(
	repo ports.DocumentRepository,
	embedder ports.Embedder,
	vectorDB ports.VectorStore,
	templates ports.TemplateStore,
	tables ports.TemplateTableLoader,
	matchThreshold float64,
) *ToolsetFactory {
	return &ToolsetFactory{
		repo:           repo,
		embedder:       embedder,
		vectorDB:       vectorDB,
		templates:      templates,
		tables:         tables,
		matchThreshold: matchThreshold,
	}
}

// ForDocument resolves the document and, when a template name is given, its
// reference table, and returns the tool set plus the loaded records.
func (f *ToolsetFactory) ForDocument(ctx context.Context, documentID, templateName string) (*ToolSet, *domain.Document, error) {
	doc, err := f.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, nil, domain.WrapError(domain.ErrDocumentNotFound, "build tool set",
			fmt.Errorf("document %q: %w", documentID, err))
	}

	table := map[string]string{}
	if templateName != "" {
		template, err := f.templates.GetByName(ctx, templateName)
		if err != nil {
			return nil, nil, domain.WrapError(domain.ErrTemplateNotFound, "build tool set",
				fmt.Errorf("template %q: %w", templateName, err))
		}
		if template.FilePath != "" {
			table, err = f.tables.Load(ctx, template.FilePath)
			if err != nil {
				return nil, nil, domain.WrapError(domain.ErrTemplateNotFound, "build tool set",
					fmt.Errorf("template reference sheet %q: %w", template.FilePath, err))
			}
		}
	}

	toolSet := NewToolSet(f.embedder, f.vectorDB, f.repo, ToolConfig{
		DocumentID:     doc.ID,
		Collection:     domain.CollectionName(doc.ID),
		TemplateTable:  table,
		MatchThreshold: f.matchThreshold,
	})
	return toolSet, doc, nil
}
