package usecase

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/proposalforge/sotr-assistant/internal/core/domain"
	"github.com/proposalforge/sotr-assistant/internal/core/ports"
)

type TopicUseCase struct {
	factory   *ToolsetFactory
	loop      *AgentLoop
	scopes    ports.ScopeStore
	templates ports.TemplateStore
	topics    ports.TopicStore
	parser    TopicParser
}

func NewTopicUseCase(
	factory *ToolsetFactory,
	loop *AgentLoop,
	scopes ports.ScopeStore,
	templates ports.TemplateStore,
	topics ports.TopicStore,
	parser TopicParser,
) *TopicUseCase {
	if parser == nil {
		parser = MarkerTopicParser{}
	}
	return &TopicUseCase{
		factory:   factory,
		loop:      loop,
		scopes:    scopes,
		templates: templates,
		topics:    topics,
		parser:    parser,
	}
}

// Generate reconciles the template's example table of contents against the
// document. It requires a processed document and a confirmed, non-empty
// scope record; the agent's free-text answer is parsed into ordered topic
// records without persisting them (SaveTopics finalizes a set).
func (uc *TopicUseCase) Generate(ctx context.Context, documentID, templateName string) (*domain.TopicGeneration, error) {
	template, err := uc.templates.GetByName(ctx, templateName)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemplateNotFound, "generate topics",
			fmt.Errorf("template %q: %w", templateName, err))
	}
	if strings.TrimSpace(template.TOC) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "generate topics",
			fmt.Errorf("template %q has no table of contents", templateName))
	}

	toolSet, doc, err := uc.factory.ForDocument(ctx, documentID, templateName)
	if err != nil {
		return nil, err
	}
	if err := requireProcessed(doc); err != nil {
		return nil, err
	}

	scope, err := uc.scopes.Get(ctx, doc.ID)
	if err != nil || scope == nil || strings.TrimSpace(scope.Text) == "" || !scope.IsConfirmed {
		return nil, domain.WrapError(domain.ErrScopeUnconfirmed, "generate topics",
			fmt.Errorf("document %q needs a confirmed, non-empty scope before topic generation", doc.ID))
	}

	result, err := uc.loop.Run(ctx, buildTopicInstruction(template.TOC, scope), toolSet)
	if err != nil {
		return nil, fmt.Errorf("topic reconciliation: %w", err)
	}

	topics := uc.parser.Parse(result.Answer)
	for i := range topics {
		topics[i].ID = uuid.NewString()
		topics[i].DocumentID = doc.ID
		topics[i].TemplateName = templateName
		topics[i].Position = i
	}

	return &domain.TopicGeneration{
		Topics:      topics,
		RawResponse: result.Answer,
	}, nil
}

// SaveTopics persists a finalized topic set wholesale, replacing any prior
// set for the same (document, template) pair.
func (uc *TopicUseCase) SaveTopics(ctx context.Context, documentID, templateName string, topics []domain.Topic) error {
	for i := range topics {
		if topics[i].ID == "" {
			topics[i].ID = uuid.NewString()
		}
		topics[i].DocumentID = documentID
		topics[i].TemplateName = templateName
		topics[i].Position = i
		if topics[i].Status == "" {
			topics[i].Status = domain.TopicStatusKeep
		}
	}
	if err := uc.topics.ReplaceTopics(ctx, documentID, templateName, topics); err != nil {
		return fmt.Errorf("replace topics: %w", err)
	}
	return nil
}

func (uc *TopicUseCase) ListTopics(ctx context.Context, documentID, templateName string) ([]domain.Topic, error) {
	return uc.topics.ListTopics(ctx, documentID, templateName)
}

func buildTopicInstruction(givenTOC string, scope *domain.ScopeRecord) string {
	pages := make([]string, 0, len(scope.SourcePages))
	for _, page := range scope.SourcePages {
		pages = append(pages, fmt.Sprint(page))
	}

	return fmt.Sprintf(`Develop a hierarchical Table of Contents (ToC) by validating the content of the uploaded Statement of Technical Requirements (SOTR) document against the provided Example ToC.

Table of Contents (ToC):
%s

### Scope Information:
%s
(Found on pages: %s)

### Instructions:
1. For each item in the ToC:
   - Search for the exact term, related technical terms, and component/subsystem terms using similarity_search.
   - Document evidence found or indicate absence.
   - Never assume the presence of a topic unless the tool was used to check it.
2. Decision Criteria:
   - Keep items with clear evidence.
   - Mark items for removal if evidence is missing.
   - Highlight any new additions found in the SOTR.
3. Required Output:
   Provide the updated ToC as plain text (preserving the hierarchy) and annotate items needing removal with [REMOVE] and new additions with [ADD]. Include page numbers where evidence is found.
4. Process:
   - Process every item.
   - Skip common sections (e.g., Preamble, Introduction, Scope, Delivery) without search.
   - Show search attempts for each item.

### Important:
Perform exact word-for-word search over the topics, and evidence must be available on the exact page you cite.
Your output must strictly adhere to the following format:
**Updated TOC**
1. Preamble
2. Introduction
3. IPMS (page 7)
    3.1 Propulsion system (page 8)
    3.2 Alarm system [REMOVE]
**Additional Considerations**
1) Evidence
2) Why some topics were removed
3) Annotations`, givenTOC, scope.Text, strings.Join(pages, ", "))
}

// TopicParser turns the agent's free-text reconciliation answer into topic
// records. The marker grammar is a versioned parsing contract; keep the
// interface so the format can move to structured output without touching
// orchestration.
type TopicParser interface {
	Parse(raw string) []domain.Topic
}

var (
	updatedTOCSection = regexp.MustCompile(`(?s)\*{0,2}Updated TOC\*{0,2}(.*?)(?:\*{0,2}Additional Considerations\*{0,2}|\z)`)
	statusAnnotation  = regexp.MustCompile(`(?i)\[\s*(remove|add)\s*\]`)
	pageAnnotation    = regexp.MustCompile(`(?i)\(page\s+(\d+)\)`)
	numberedLine      = regexp.MustCompile(`^(\d+(?:\.\d+)*)\s+(.*)$`)
)

// MarkerTopicParser implements grammar v1: the updated ToC is the text
// between an "Updated TOC" marker and an "Additional Considerations" marker
// (or end of text), one topic per non-blank line.
type MarkerTopicParser struct{}

func (MarkerTopicParser) Parse(raw string) []domain.Topic {
	section := updatedTOCSection.FindStringSubmatch(raw)
	if section == nil {
		return nil
	}

	var topics []domain.Topic
	for _, line := range strings.Split(section[1], "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		topics = append(topics, parseTopicLine(line))
	}
	return topics
}

// parseTopicLine never fails: a line that does not match the numbering
// pattern becomes an unnumbered level-0 topic instead of being dropped.
func parseTopicLine(line string) domain.Topic {
	topic := domain.Topic{Status: domain.TopicStatusKeep}

	if match := statusAnnotation.FindStringSubmatch(line); match != nil {
		switch strings.ToLower(match[1]) {
		case "remove":
			topic.Status = domain.TopicStatusRemove
		case "add":
			topic.Status = domain.TopicStatusAdd
		}
		line = strings.TrimSpace(statusAnnotation.ReplaceAllString(line, ""))
	}

	if match := pageAnnotation.FindStringSubmatch(line); match != nil {
		topic.Page = atoiSafe(match[1])
		line = strings.TrimSpace(pageAnnotation.ReplaceAllString(line, ""))
	}

	if match := numberedLine.FindStringSubmatch(line); match != nil {
		topic.Number = match[1]
		topic.Text = strings.TrimSpace(match[2])
		topic.Level = len(strings.Split(match[1], "."))
	} else {
		topic.Text = line
		topic.Level = 0
	}
	return topic
}
