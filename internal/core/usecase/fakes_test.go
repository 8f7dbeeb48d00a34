package usecase

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/proposalforge/sotr-assistant/internal/core/domain"
)

type fakeDocumentRepo struct {
	mu          sync.Mutex
	docs        map[string]*domain.Document
	pages       map[string][]domain.Page
	stateWrites []domain.DocumentState
	listCalls   int
	getErr      error
	replaceErr  error
}

func newFakeDocumentRepo(docs ...*domain.Document) *fakeDocumentRepo {
	repo := &fakeDocumentRepo{
		docs:  make(map[string]*domain.Document),
		pages: make(map[string][]domain.Page),
	}
	for _, doc := range docs {
		copied := *doc
		repo.docs[doc.ID] = &copied
	}
	return repo
}

func (r *fakeDocumentRepo) Save(ctx context.Context, doc *domain.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *doc
	r.docs[doc.ID] = &copied
	return nil
}

func (r *fakeDocumentRepo) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	doc, ok := r.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %q not found", id)
	}
	copied := *doc
	return &copied, nil
}

func (r *fakeDocumentRepo) UpdateState(ctx context.Context, id string, state domain.DocumentState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stateWrites = append(r.stateWrites, state)
	if doc, ok := r.docs[id]; ok {
		doc.Status = state.Status
		doc.Message = state.Message
		doc.Progress = state.Progress
		if state.TotalPages > 0 {
			doc.TotalPages = state.TotalPages
		}
	}
	return nil
}

func (r *fakeDocumentRepo) ReplacePages(ctx context.Context, documentID string, pages []domain.Page) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.replaceErr != nil {
		return r.replaceErr
	}
	r.pages[documentID] = append([]domain.Page(nil), pages...)
	return nil
}

func (r *fakeDocumentRepo) ListPages(ctx context.Context, documentID string) ([]domain.Page, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	return append([]domain.Page(nil), r.pages[documentID]...), nil
}

type fakeStorage struct {
	mu    sync.Mutex
	saved map[string]string
	err   error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{saved: make(map[string]string)}
}

func (s *fakeStorage) Save(ctx context.Context, key string, data io.Reader) error {
	if s.err != nil {
		return s.err
	}
	content, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[key] = string(content)
	return nil
}

func (s *fakeStorage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return nil, fmt.Errorf("open not supported in fake")
}

type fakeQueue struct {
	mu        sync.Mutex
	published []string
	err       error
}

func (q *fakeQueue) PublishDocumentUploaded(ctx context.Context, documentID string) error {
	if q.err != nil {
		return q.err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published = append(q.published, documentID)
	return nil
}

func (q *fakeQueue) SubscribeDocumentUploaded(ctx context.Context, handler func(context.Context, string) error) error {
	return nil
}

type fakeRecognizer struct {
	texts []string
	err   error
}

func (r *fakeRecognizer) RecognizePages(ctx context.Context, storagePath string) ([]string, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.texts, nil
}

type fakeEmbedder struct {
	mu         sync.Mutex
	embedCalls int
	queryCalls int
	embedErr   error
	queryErr   error
}

func (e *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.embedCalls++
	if e.embedErr != nil {
		return nil, e.embedErr
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{float32(i), 1}
	}
	return vectors, nil
}

func (e *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queryCalls++
	if e.queryErr != nil {
		return nil, e.queryErr
	}
	return []float32{1, 0}, nil
}

type fakeVectorStore struct {
	mu          sync.Mutex
	existing    map[string]bool
	hits        []domain.ScoredPassage
	dropped     []string
	upserted    map[string][]domain.Passage
	searchCalls int
	lastLimit   int
	searchErr   error
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{
		existing: make(map[string]bool),
		upserted: make(map[string][]domain.Passage),
	}
}

func (v *fakeVectorStore) UpsertCollection(ctx context.Context, name string, passages []domain.Passage, vectors [][]float32) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.existing[name] = true
	v.upserted[name] = append([]domain.Passage(nil), passages...)
	return nil
}

func (v *fakeVectorStore) HasCollection(ctx context.Context, name string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.existing[name], nil
}

func (v *fakeVectorStore) DropCollection(ctx context.Context, name string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.existing, name)
	v.dropped = append(v.dropped, name)
	return nil
}

func (v *fakeVectorStore) Search(ctx context.Context, name string, queryVector []float32, limit int) ([]domain.ScoredPassage, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.searchCalls++
	v.lastLimit = limit
	if v.searchErr != nil {
		return nil, v.searchErr
	}
	hits := v.hits
	if limit < len(hits) {
		hits = hits[:limit]
	}
	return append([]domain.ScoredPassage(nil), hits...), nil
}

// fakeGenerator replays scripted responses; the last one repeats once the
// script runs out.
type fakeGenerator struct {
	mu        sync.Mutex
	responses []string
	prompts   []string
	err       error
}

func (g *fakeGenerator) GenerateJSONFromPrompt(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	g.prompts = append(g.prompts, prompt)
	if len(g.responses) == 0 {
		return "", fmt.Errorf("no scripted response")
	}
	next := g.responses[0]
	if len(g.responses) > 1 {
		g.responses = g.responses[1:]
	}
	return next, nil
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

type fakeScopeStore struct {
	mu      sync.Mutex
	record  *domain.ScopeRecord
	saves   int
	saveErr error
}

func (s *fakeScopeStore) Save(ctx context.Context, record *domain.ScopeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	copied := *record
	s.record = &copied
	return nil
}

func (s *fakeScopeStore) Get(ctx context.Context, documentID string) (*domain.ScopeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record == nil {
		return nil, nil
	}
	copied := *s.record
	return &copied, nil
}

type fakeTopicStore struct {
	mu       sync.Mutex
	replaced []domain.Topic
	replaces int
}

func (s *fakeTopicStore) ReplaceTopics(ctx context.Context, documentID, templateName string, topics []domain.Topic) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaces++
	s.replaced = append([]domain.Topic(nil), topics...)
	return nil
}

func (s *fakeTopicStore) ListTopics(ctx context.Context, documentID, templateName string) ([]domain.Topic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Topic(nil), s.replaced...), nil
}

type fakeContentStore struct {
	mu      sync.Mutex
	records map[string]domain.ContentRecord
}

func newFakeContentStore() *fakeContentStore {
	return &fakeContentStore{records: make(map[string]domain.ContentRecord)}
}

func contentKey(documentID, templateName, topicKey string) string {
	return documentID + "|" + templateName + "|" + topicKey
}

func (s *fakeContentStore) Save(ctx context.Context, record domain.ContentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[contentKey(record.DocumentID, record.TemplateName, record.TopicKey)] = record
	return nil
}

func (s *fakeContentStore) Get(ctx context.Context, documentID, templateName, topicKey string) (*domain.ContentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[contentKey(documentID, templateName, topicKey)]
	if !ok {
		return nil, fmt.Errorf("content for topic %q not found", topicKey)
	}
	return &record, nil
}

type fakeTemplateStore struct {
	mu        sync.Mutex
	templates map[string]*domain.Template
}

func newFakeTemplateStore(templates ...*domain.Template) *fakeTemplateStore {
	store := &fakeTemplateStore{templates: make(map[string]*domain.Template)}
	for _, template := range templates {
		copied := *template
		store.templates[template.ProjectName] = &copied
	}
	return store
}

func (s *fakeTemplateStore) Save(ctx context.Context, template *domain.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *template
	s.templates[template.ProjectName] = &copied
	return nil
}

func (s *fakeTemplateStore) GetByName(ctx context.Context, projectName string) (*domain.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	template, ok := s.templates[projectName]
	if !ok {
		return nil, fmt.Errorf("template %q not found", projectName)
	}
	copied := *template
	return &copied, nil
}

func (s *fakeTemplateStore) List(ctx context.Context) ([]domain.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Template, 0, len(s.templates))
	for _, template := range s.templates {
		out = append(out, *template)
	}
	return out, nil
}

func (s *fakeTemplateStore) Delete(ctx context.Context, projectName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.templates, projectName)
	return nil
}

type fakeTableLoader struct {
	table map[string]string
	loads int
	err   error
}

func (l *fakeTableLoader) Load(ctx context.Context, path string) (map[string]string, error) {
	l.loads++
	if l.err != nil {
		return nil, l.err
	}
	return l.table, nil
}

func processedDoc(id string, totalPages int) *domain.Document {
	return &domain.Document{
		ID:          id,
		Filename:    id,
		StoragePath: id,
		Status:      domain.StatusProcessed,
		Progress:    100,
		TotalPages:  totalPages,
	}
}

func newTestFactory(
	repo *fakeDocumentRepo,
	embedder *fakeEmbedder,
	vectors *fakeVectorStore,
	templates *fakeTemplateStore,
	tables *fakeTableLoader,
) *ToolsetFactory {
	if templates == nil {
		templates = newFakeTemplateStore()
	}
	if tables == nil {
		tables = &fakeTableLoader{}
	}
	return NewToolsetFactory(repo, embedder, vectors, templates, tables, 0.8)
}

func finalStep(answer string) string {
	return fmt.Sprintf(`{"type":"final","answer":%q}`, answer)
}

func toolStep(tool, inputJSON string) string {
	return fmt.Sprintf(`{"type":"tool","tool":%q,"input":%s}`, tool, inputJSON)
}
