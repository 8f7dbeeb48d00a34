package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"

	mcpadapter "github.com/proposalforge/sotr-assistant/internal/adapters/mcp"
	"github.com/proposalforge/sotr-assistant/internal/bootstrap"
	"github.com/proposalforge/sotr-assistant/internal/config"
	"github.com/proposalforge/sotr-assistant/internal/observability/logging"
)

// The MCP binary serves the retrieval tool catalog over stdio. Logs go to
// stderr so they do not corrupt the protocol stream.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.NewJSONLoggerTo(os.Stderr, "mcp", cfg.LogLevel)

	app, err := bootstrap.New(context.Background(), cfg)
	if err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	server := mcpadapter.New(app.ToolsetFactory, logger)
	if err := server.ServeStdio(); err != nil {
		logger.Error("mcp server failed", "error", err)
		os.Exit(1)
	}
}
