package bootstrap

import (
	"context"
	"fmt"

	"github.com/proposalforge/sotr-assistant/internal/config"
	"github.com/proposalforge/sotr-assistant/internal/core/domain"
	"github.com/proposalforge/sotr-assistant/internal/core/ports"
	"github.com/proposalforge/sotr-assistant/internal/core/usecase"
	"github.com/proposalforge/sotr-assistant/internal/infrastructure/extractor/pdf"
	"github.com/proposalforge/sotr-assistant/internal/infrastructure/llm/ollama"
	"github.com/proposalforge/sotr-assistant/internal/infrastructure/queue/nats"
	"github.com/proposalforge/sotr-assistant/internal/infrastructure/repository/postgres"
	"github.com/proposalforge/sotr-assistant/internal/infrastructure/resilience"
	"github.com/proposalforge/sotr-assistant/internal/infrastructure/storage/localfs"
	"github.com/proposalforge/sotr-assistant/internal/infrastructure/template"
	"github.com/proposalforge/sotr-assistant/internal/infrastructure/vector/qdrant"
)

// App holds every wired component. The api and worker binaries pick the
// pieces they need; construction is identical so both see the same semantics.
type App struct {
	Config config.Config

	Queue     ports.MessageQueue
	Repo      ports.DocumentRepository
	Templates ports.TemplateStore
	Storage   ports.ObjectStorage

	IngestUC    ports.DocumentIngestor
	IndexUC     ports.DocumentIndexer
	StatusUC    ports.StatusReader
	ScopeUC     ports.ScopeService
	TopicUC     ports.TopicService
	ContentUC   ports.ContentService
	ChatUC      ports.ChatService
	RetrievalUC *usecase.RetrievalUseCase

	ToolsetFactory *usecase.ToolsetFactory
	AgentLoop      *usecase.AgentLoop

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	repo := postgres.NewDocumentRepository(db)
	scopes := postgres.NewScopeRepository(db)
	topics := postgres.NewTopicRepository(db)
	contents := postgres.NewContentRepository(db)
	templates := postgres.NewTemplateRepository(db)

	storage, err := localfs.New(cfg.UploadsPath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, executor)
	embedder := ollama.NewEmbedder(ollamaClient)
	generator := ollama.NewGenerator(ollamaClient)

	vectorDB := qdrant.New(cfg.QdrantURL, executor)
	recognizer := pdf.New(storage)
	tables := template.NewExcelTableLoader()

	registry := usecase.NewStateRegistry()
	factory := usecase.NewToolsetFactory(repo, embedder, vectorDB, templates, tables, cfg.TemplateMatchThreshold)
	loop := usecase.NewAgentLoop(generator, domain.AgentLimits{
		MaxIterations: cfg.AgentMaxIterations,
		Timeout:       cfg.AgentTimeout(),
		ToolTimeout:   cfg.ToolTimeout(),
	})

	ingestUC := usecase.NewIngestDocumentUseCase(repo, storage, queue, registry)
	indexUC := usecase.NewIndexDocumentUseCase(repo, storage, recognizer, embedder, vectorDB, registry)
	statusUC := usecase.NewStatusUseCase(repo, registry)
	scopeUC := usecase.NewScopeUseCase(factory, loop, scopes)
	topicUC := usecase.NewTopicUseCase(factory, loop, scopes, templates, topics, nil)
	contentUC := usecase.NewContentUseCase(factory, loop, scopes, contents)
	chatUC := usecase.NewChatUseCase(factory, loop)
	retrievalUC := usecase.NewRetrievalUseCase(factory)

	return &App{
		Config: cfg,

		Queue:     queue,
		Repo:      repo,
		Templates: templates,
		Storage:   storage,

		IngestUC:    ingestUC,
		IndexUC:     indexUC,
		StatusUC:    statusUC,
		ScopeUC:     scopeUC,
		TopicUC:     topicUC,
		ContentUC:   contentUC,
		ChatUC:      chatUC,
		RetrievalUC: retrievalUC,

		ToolsetFactory: factory,
		AgentLoop:      loop,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
