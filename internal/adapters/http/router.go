package httpadapter

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/proposalforge/sotr-assistant/internal/config"
	"github.com/proposalforge/sotr-assistant/internal/core/domain"
	"github.com/proposalforge/sotr-assistant/internal/core/ports"
	"github.com/proposalforge/sotr-assistant/internal/observability/metrics"
)

const backpressureWait = 5 * time.Second

// Services groups the inbound ports the router dispatches to.
type Services struct {
	Ingest    ports.DocumentIngestor
	Status    ports.StatusReader
	Scope     ports.ScopeService
	Topics    ports.TopicService
	Content   ports.ContentService
	Chat      ports.ChatService
	Pages     ports.PageTextService
	Query     ports.QueryService
	Templates ports.TemplateStore
	Storage   ports.ObjectStorage
}

type Router struct {
	cfg      config.Config
	services Services
	metrics  *metrics.HTTPServerMetrics
}

func NewRouter(cfg config.Config, services Services, m *metrics.HTTPServerMetrics) *Router {
	return &Router{
		cfg:      cfg,
		services: services,
		metrics:  m,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/documents", rt.uploadDocument)
	mux.HandleFunc("/v1/documents/", rt.documentSubroutes)
	mux.HandleFunc("/v1/analysis/topics/", rt.topicRoutes)
	mux.HandleFunc("/v1/analysis/content/", rt.contentRoutes)
	mux.HandleFunc("/v1/analysis/chat/", rt.chat)
	mux.HandleFunc("/v1/templates", rt.templateCollection)
	mux.HandleFunc("/v1/templates/", rt.templateByName)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware("api", handler)
	}
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, backpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	doc, err := rt.services.Ingest.Upload(r.Context(), fileHeader.Filename, file)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

// documentSubroutes dispatches /v1/documents/{id}/... by path segment count.
func (rt *Router) documentSubroutes(w http.ResponseWriter, r *http.Request) {
	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/v1/documents/"), "/", 3)
	if parts[0] == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}
	id := parts[0]

	switch {
	case len(parts) == 2 && parts[1] == "status":
		rt.documentStatus(w, r, id)
	case len(parts) == 2 && parts[1] == "scope":
		rt.extractScope(w, r, id)
	case len(parts) == 3 && parts[1] == "scope" && parts[2] == "confirm":
		rt.confirmScope(w, r, id)
	case len(parts) == 3 && parts[1] == "pages":
		rt.pageText(w, r, id, parts[2])
	case len(parts) == 2 && parts[1] == "query":
		rt.query(w, r, id, false)
	case len(parts) == 2 && parts[1] == "range-query":
		rt.query(w, r, id, true)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown route"})
	}
}

func (rt *Router) documentStatus(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	state, err := rt.services.Status.GetStatus(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (rt *Router) extractScope(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	useCache := true
	if raw := r.URL.Query().Get("use_cache"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "use_cache must be a boolean"})
			return
		}
		useCache = parsed
	}

	record, err := rt.services.Scope.Extract(r.Context(), id, useCache)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (rt *Router) confirmScope(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req struct {
		Pages []int `json:"pages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	record, err := rt.services.Scope.Confirm(r.Context(), id, req.Pages)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (rt *Router) pageText(w http.ResponseWriter, r *http.Request, id, pageRange string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	text, err := rt.services.Pages.PageText(r.Context(), id, pageRange)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

// query runs a direct similarity search outside the agent loop. The ranged
// variant accepts a custom result window; the plain variant always uses the
// default window of 3.
func (rt *Router) query(w http.ResponseWriter, r *http.Request, id string, ranged bool) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req struct {
		Query    string `json:"query"`
		StartIdx int    `json:"start_idx"`
		EndIdx   int    `json:"end_idx"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}
	if !ranged {
		req.StartIdx, req.EndIdx = 0, 3
	}

	result, err := rt.services.Query.Query(r.Context(), id, req.Query, req.StartIdx, req.EndIdx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": result})
}

// topicRoutes serves /v1/analysis/topics/{document_id}/{template_name}:
// POST reconciles, PUT persists the edited set, GET lists the saved set.
func (rt *Router) topicRoutes(w http.ResponseWriter, r *http.Request) {
	documentID, templateName, ok := analysisPathParams(w, r, "/v1/analysis/topics/")
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodPost:
		generation, err := rt.services.Topics.Generate(r.Context(), documentID, templateName)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, generation)
	case http.MethodPut:
		var topics []domain.Topic
		if err := json.NewDecoder(r.Body).Decode(&topics); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
			return
		}
		if err := rt.services.Topics.SaveTopics(r.Context(), documentID, templateName, topics); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodGet:
		topics, err := rt.services.Topics.ListTopics(r.Context(), documentID, templateName)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, topics)
	default:
		methodNotAllowed(w)
	}
}

// contentRoutes serves /v1/analysis/content/{document_id}/{template_name}:
// POST drafts content for a topic, PUT stores an edited draft, GET returns
// the stored draft for ?topic=.
func (rt *Router) contentRoutes(w http.ResponseWriter, r *http.Request) {
	documentID, templateName, ok := analysisPathParams(w, r, "/v1/analysis/content/")
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req struct {
			Topic string `json:"topic"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
			return
		}

		text, err := rt.services.Content.Generate(r.Context(), documentID, templateName, req.Topic)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"content": text})
	case http.MethodPut:
		var req struct {
			Topic   string `json:"topic"`
			Content string `json:"content"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
			return
		}
		record := domain.ContentRecord{
			DocumentID:   documentID,
			TemplateName: templateName,
			TopicKey:     req.Topic,
			Text:         req.Content,
		}
		if err := rt.services.Content.Save(r.Context(), record); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodGet:
		record, err := rt.services.Content.Get(r.Context(), documentID, templateName, r.URL.Query().Get("topic"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, record)
	default:
		methodNotAllowed(w)
	}
}

// chat serves /v1/analysis/chat/{document_id}/{template_name}.
func (rt *Router) chat(w http.ResponseWriter, r *http.Request) {
	documentID, templateName, ok := analysisPathParams(w, r, "/v1/analysis/chat/")
	if !ok {
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req struct {
		Message string                `json:"message"`
		History []domain.ChatExchange `json:"history"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	answer, err := rt.services.Chat.Chat(r.Context(), documentID, templateName, req.Message, req.History)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

func analysisPathParams(w http.ResponseWriter, r *http.Request, prefix string) (documentID, templateName string, ok bool) {
	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, prefix), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id and template name are required"})
		return "", "", false
	}
	return parts[0], parts[1], true
}

func (rt *Router) templateCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost, http.MethodPut:
		var template domain.Template
		if err := json.NewDecoder(r.Body).Decode(&template); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
			return
		}
		if strings.TrimSpace(template.ProjectName) == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "project_name is required"})
			return
		}
		now := time.Now().UTC()
		if template.CreatedAt.IsZero() {
			template.CreatedAt = now
		}
		template.UpdatedAt = now
		if err := rt.services.Templates.Save(r.Context(), &template); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, template)
	case http.MethodGet:
		templates, err := rt.services.Templates.List(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, templates)
	default:
		methodNotAllowed(w)
	}
}

func (rt *Router) templateByName(w http.ResponseWriter, r *http.Request) {
	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/v1/templates/"), "/", 2)
	name := parts[0]
	if name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "template name is required"})
		return
	}
	if len(parts) == 2 {
		if parts[1] != "sheet" {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown route"})
			return
		}
		rt.uploadTemplateSheet(w, r, name)
		return
	}

	switch r.Method {
	case http.MethodGet:
		template, err := rt.services.Templates.GetByName(r.Context(), name)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, template)
	case http.MethodDelete:
		if err := rt.services.Templates.Delete(r.Context(), name); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

// uploadTemplateSheet attaches a two-column reference workbook to an existing
// template. The file lands in the shared uploads directory and the template's
// file_path is repointed at it, so the next tool set build picks it up.
func (rt *Router) uploadTemplateSheet(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if ext != ".xlsx" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "only .xlsx reference sheets are supported"})
		return
	}

	template, err := rt.services.Templates.GetByName(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}

	key := "template_" + sanitizeKey(name) + ext
	if err := rt.services.Storage.Save(r.Context(), key, file); err != nil {
		writeError(w, err)
		return
	}

	template.FilePath = filepath.Join(rt.cfg.UploadsPath, key)
	template.UpdatedAt = time.Now().UTC()
	if err := rt.services.Templates.Save(r.Context(), template); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, template)
}

func sanitizeKey(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '_'
	}, name)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
