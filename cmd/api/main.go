package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	httpadapter "github.com/proposalforge/sotr-assistant/internal/adapters/http"
	"github.com/proposalforge/sotr-assistant/internal/bootstrap"
	"github.com/proposalforge/sotr-assistant/internal/config"
	"github.com/proposalforge/sotr-assistant/internal/observability/logging"
	"github.com/proposalforge/sotr-assistant/internal/observability/metrics"
)

type agentMetricsObserver struct {
	metrics *metrics.HTTPServerMetrics
}

func (o agentMetricsObserver) AgentRunFinished(status string, iterations int) {
	o.metrics.RecordAgentRun("api", status, iterations)
}

func (o agentMetricsObserver) AgentToolCalled(tool, status string) {
	o.metrics.RecordAgentToolCall("api", tool, status)
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.NewJSONLogger("api", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	app.AgentLoop.SetObserver(agentMetricsObserver{metrics: httpMetrics})
	router := httpadapter.NewRouter(cfg, httpadapter.Services{
		Ingest:    app.IngestUC,
		Status:    app.StatusUC,
		Scope:     app.ScopeUC,
		Topics:    app.TopicUC,
		Content:   app.ContentUC,
		Chat:      app.ChatUC,
		Pages:     app.RetrievalUC,
		Query:     app.RetrievalUC,
		Templates: app.Templates,
		Storage:   app.Storage,
	}, httpMetrics)

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("api server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown failed", "error", err)
	}
}
