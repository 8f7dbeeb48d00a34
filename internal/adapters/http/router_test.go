package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/proposalforge/sotr-assistant/internal/config"
	"github.com/proposalforge/sotr-assistant/internal/core/domain"
)

type ingestFake struct {
	err error
	doc *domain.Document
}

func (f ingestFake) Upload(_ context.Context, filename string, _ io.Reader) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.doc != nil {
		return f.doc, nil
	}
	return &domain.Document{ID: filename, Filename: filename, Status: domain.StatusUploading}, nil
}

type statusFake struct {
	err   error
	state domain.DocumentState
}

func (f statusFake) GetStatus(context.Context, string) (domain.DocumentState, error) {
	if f.err != nil {
		return domain.DocumentState{}, f.err
	}
	return f.state, nil
}

type scopeFake struct {
	extractErr error
	confirmErr error
	record     *domain.ScopeRecord
	lastCache  bool
	lastPages  []int
}

func (f *scopeFake) Extract(_ context.Context, _ string, useCache bool) (*domain.ScopeRecord, error) {
	f.lastCache = useCache
	if f.extractErr != nil {
		return nil, f.extractErr
	}
	return f.record, nil
}

func (f *scopeFake) Confirm(_ context.Context, _ string, pages []int) (*domain.ScopeRecord, error) {
	f.lastPages = pages
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}
	return f.record, nil
}

type topicsFake struct {
	generateErr error
	generation  *domain.TopicGeneration
	saved       []domain.Topic
	listed      []domain.Topic
}

func (f *topicsFake) Generate(context.Context, string, string) (*domain.TopicGeneration, error) {
	if f.generateErr != nil {
		return nil, f.generateErr
	}
	return f.generation, nil
}

func (f *topicsFake) SaveTopics(_ context.Context, _, _ string, topics []domain.Topic) error {
	f.saved = topics
	return nil
}

func (f *topicsFake) ListTopics(context.Context, string, string) ([]domain.Topic, error) {
	return f.listed, nil
}

type contentFake struct {
	err  error
	text string
}

func (f contentFake) Generate(context.Context, string, string, string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

func (f contentFake) Save(context.Context, domain.ContentRecord) error { return f.err }

func (f contentFake) Get(context.Context, string, string, string) (*domain.ContentRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.ContentRecord{Text: f.text}, nil
}

type chatFake struct {
	err    error
	answer string
}

func (f chatFake) Chat(context.Context, string, string, string, []domain.ChatExchange) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type pagesFake struct {
	err  error
	text string
}

func (f pagesFake) PageText(context.Context, string, string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type queryFake struct {
	err    error
	result string
}

func (f queryFake) Query(context.Context, string, string, int, int) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.result, nil
}

type storageFake struct {
	saved map[string][]byte
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	content, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if f.saved == nil {
		f.saved = map[string][]byte{}
	}
	f.saved[key] = content
	return nil
}

func (f *storageFake) Open(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

type templatesFake struct {
	err       error
	saved     *domain.Template
	templates []domain.Template
}

func (f *templatesFake) Save(_ context.Context, template *domain.Template) error {
	if f.err != nil {
		return f.err
	}
	f.saved = template
	return nil
}

func (f *templatesFake) GetByName(context.Context, string) (*domain.Template, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.templates) == 0 {
		return &domain.Template{}, nil
	}
	return &f.templates[0], nil
}

func (f *templatesFake) List(context.Context) ([]domain.Template, error) {
	return f.templates, f.err
}

func (f *templatesFake) Delete(context.Context, string) error { return f.err }

func newTestRouter(cfg config.Config, services Services) http.Handler {
	if services.Ingest == nil {
		services.Ingest = ingestFake{}
	}
	if services.Status == nil {
		services.Status = statusFake{}
	}
	if services.Scope == nil {
		services.Scope = &scopeFake{record: &domain.ScopeRecord{DocumentID: "doc"}}
	}
	if services.Topics == nil {
		services.Topics = &topicsFake{generation: &domain.TopicGeneration{}}
	}
	if services.Content == nil {
		services.Content = contentFake{text: "drafted"}
	}
	if services.Chat == nil {
		services.Chat = chatFake{answer: "answer"}
	}
	if services.Pages == nil {
		services.Pages = pagesFake{text: "page text"}
	}
	if services.Query == nil {
		services.Query = queryFake{result: "hits"}
	}
	if services.Templates == nil {
		services.Templates = &templatesFake{}
	}
	if services.Storage == nil {
		services.Storage = &storageFake{}
	}
	return NewRouter(cfg, services, nil).Handler()
}

func multipartUpload(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func TestUploadDocumentReturns202(t *testing.T) {
	handler := newTestRouter(config.Config{}, Services{})

	body, contentType := multipartUpload(t, "sotr_rev_b.pdf", "%PDF-1.7")
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
	var doc domain.Document
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if doc.Filename != "sotr_rev_b.pdf" {
		t.Fatalf("unexpected document: %+v", doc)
	}
}

func TestUploadDocumentRequiresMultipartFile(t *testing.T) {
	handler := newTestRouter(config.Config{}, Services{})

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", bytes.NewBufferString("{}"))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestDocumentStatusReturnsState(t *testing.T) {
	handler := newTestRouter(config.Config{}, Services{
		Status: statusFake{state: domain.DocumentState{
			Status:     domain.StatusProcessing,
			Message:    "text extraction complete, building vector index",
			Progress:   60,
			TotalPages: 41,
		}},
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/sotr_rev_b.pdf/status", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var state domain.DocumentState
	if err := json.NewDecoder(res.Body).Decode(&state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.Progress != 60 || state.TotalPages != 41 {
		t.Fatalf("unexpected state: %+v", state)
	}
}

func TestExtractScopeParsesUseCacheParam(t *testing.T) {
	scope := &scopeFake{record: &domain.ScopeRecord{DocumentID: "doc", Text: "scope narrative"}}
	handler := newTestRouter(config.Config{}, Services{Scope: scope})

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/doc/scope?use_cache=false", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if scope.lastCache {
		t.Fatal("expected use_cache=false to disable the cache")
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/documents/doc/scope?use_cache=banana", nil)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid use_cache, got %d", res.Code)
	}
}

func TestConfirmScopePassesPages(t *testing.T) {
	scope := &scopeFake{record: &domain.ScopeRecord{DocumentID: "doc", IsConfirmed: true}}
	handler := newTestRouter(config.Config{}, Services{Scope: scope})

	payload, _ := json.Marshal(map[string]any{"pages": []int{2, 3}})
	req := httptest.NewRequest(http.MethodPost, "/v1/documents/doc/scope/confirm", bytes.NewReader(payload))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if len(scope.lastPages) != 2 || scope.lastPages[0] != 2 {
		t.Fatalf("unexpected pages: %v", scope.lastPages)
	}
}

func TestTopicRoutesDispatchByMethod(t *testing.T) {
	topics := &topicsFake{
		generation: &domain.TopicGeneration{
			Topics:      []domain.Topic{{Number: "3.1", Text: "Propulsion system", Level: 2, Status: domain.TopicStatusKeep}},
			RawResponse: "**Updated TOC**\n3.1 Propulsion system",
		},
		listed: []domain.Topic{{Text: "Propulsion system"}},
	}
	handler := newTestRouter(config.Config{}, Services{Topics: topics})

	req := httptest.NewRequest(http.MethodPost, "/v1/analysis/topics/doc/NavyTemplate", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("generate: expected 200, got %d", res.Code)
	}
	var generation domain.TopicGeneration
	if err := json.NewDecoder(res.Body).Decode(&generation); err != nil {
		t.Fatalf("decode generation: %v", err)
	}
	if len(generation.Topics) != 1 || generation.Topics[0].Number != "3.1" {
		t.Fatalf("unexpected generation: %+v", generation)
	}

	payload, _ := json.Marshal([]domain.Topic{{Text: "Propulsion system", Status: domain.TopicStatusKeep}})
	req = httptest.NewRequest(http.MethodPut, "/v1/analysis/topics/doc/NavyTemplate", bytes.NewReader(payload))
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusNoContent {
		t.Fatalf("save: expected 204, got %d", res.Code)
	}
	if len(topics.saved) != 1 {
		t.Fatalf("expected saved topics, got %v", topics.saved)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/analysis/topics/doc/NavyTemplate", nil)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", res.Code)
	}
}

func TestPageTextReturnsRefusalAsBody(t *testing.T) {
	handler := newTestRouter(config.Config{}, Services{
		Pages: pagesFake{text: "You are asking for too big a page range. Set to a maximum of 3 pages."},
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/doc/pages/1-9", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["text"] == "" || !bytes.Contains([]byte(resp["text"]), []byte("too big a page range")) {
		t.Fatalf("expected refusal text in body, got %q", resp["text"])
	}
}

func TestContentRoutesDispatchByMethod(t *testing.T) {
	handler := newTestRouter(config.Config{}, Services{Content: contentFake{text: "drafted narrative"}})

	payload, _ := json.Marshal(map[string]string{"topic": "Propulsion Systems"})
	req := httptest.NewRequest(http.MethodPost, "/v1/analysis/content/doc/NavyTemplate", bytes.NewReader(payload))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("generate: expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var resp map[string]string
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["content"] != "drafted narrative" {
		t.Fatalf("unexpected content: %q", resp["content"])
	}

	payload, _ = json.Marshal(map[string]string{"topic": "Propulsion Systems", "content": "edited"})
	req = httptest.NewRequest(http.MethodPut, "/v1/analysis/content/doc/NavyTemplate", bytes.NewReader(payload))
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusNoContent {
		t.Fatalf("save: expected 204, got %d", res.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/analysis/content/doc/NavyTemplate?topic=Propulsion+Systems", nil)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", res.Code)
	}
}

func TestRangeQueryPassesWindow(t *testing.T) {
	handler := newTestRouter(config.Config{}, Services{Query: queryFake{result: "[score=0.910] (page 2) hit"}})

	payload, _ := json.Marshal(map[string]any{"query": "propulsion", "start_idx": 3, "end_idx": 6})
	req := httptest.NewRequest(http.MethodPost, "/v1/documents/doc/range-query", bytes.NewReader(payload))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}

func TestTemplateSheetUpload(t *testing.T) {
	templates := &templatesFake{templates: []domain.Template{{ProjectName: "NavyTemplate", TOC: "1 Intro"}}}
	storage := &storageFake{}
	handler := newTestRouter(config.Config{UploadsPath: "./data/uploads"}, Services{Templates: templates, Storage: storage})

	body, contentType := multipartUpload(t, "reference.xlsx", "workbook-bytes")
	req := httptest.NewRequest(http.MethodPost, "/v1/templates/NavyTemplate/sheet", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if _, ok := storage.saved["template_NavyTemplate.xlsx"]; !ok {
		t.Fatalf("sheet not stored: %v", storage.saved)
	}
	if templates.saved == nil || templates.saved.FilePath == "" {
		t.Fatalf("template file_path not updated: %+v", templates.saved)
	}

	body, contentType = multipartUpload(t, "reference.csv", "a,b")
	req = httptest.NewRequest(http.MethodPost, "/v1/templates/NavyTemplate/sheet", body)
	req.Header.Set("Content-Type", contentType)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-xlsx sheet, got %d", res.Code)
	}
}

func TestQueryRequiresQueryText(t *testing.T) {
	handler := newTestRouter(config.Config{}, Services{})

	payload, _ := json.Marshal(map[string]any{"query": " ", "start_idx": 0, "end_idx": 3})
	req := httptest.NewRequest(http.MethodPost, "/v1/documents/doc/query", bytes.NewReader(payload))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestChatReturnsAnswer(t *testing.T) {
	handler := newTestRouter(config.Config{}, Services{Chat: chatFake{answer: "diesel-electric (page 8)"}})

	payload, _ := json.Marshal(map[string]any{
		"message": "what propulsion is required?",
		"history": []domain.ChatExchange{{User: "hi", Agent: "hello"}},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/analysis/chat/doc/NavyTemplate", bytes.NewReader(payload))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["answer"] != "diesel-electric (page 8)" {
		t.Fatalf("unexpected answer: %q", resp["answer"])
	}
}

func TestTemplateCollectionSaveAndList(t *testing.T) {
	templates := &templatesFake{}
	handler := newTestRouter(config.Config{}, Services{Templates: templates})

	payload, _ := json.Marshal(map[string]string{
		"project_name": "NavyTemplate",
		"project_toc":  "1 Introduction\n2 Scope",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/templates", bytes.NewReader(payload))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.Code, res.Body.String())
	}
	if templates.saved == nil || templates.saved.ProjectName != "NavyTemplate" {
		t.Fatalf("template not saved: %+v", templates.saved)
	}
	if templates.saved.UpdatedAt.IsZero() {
		t.Fatal("expected updated_at to be stamped")
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/templates", bytes.NewReader([]byte(`{"project_toc":"x"}`)))
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing project_name, got %d", res.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	handler := newTestRouter(config.Config{}, Services{})

	req := httptest.NewRequest(http.MethodDelete, "/v1/analysis/chat/doc/NavyTemplate", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

func TestRequestIDHeaderIsEchoed(t *testing.T) {
	handler := newTestRouter(config.Config{}, Services{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-42")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Header().Get(requestIDHeader) != "req-42" {
		t.Fatalf("expected request id echoed, got %q", res.Header().Get(requestIDHeader))
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatal("expected generated request id")
	}
}
