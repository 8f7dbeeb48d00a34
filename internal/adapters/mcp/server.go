// Package mcpadapter exposes the document retrieval tools over the Model
// Context Protocol so external agent hosts can ground on uploaded documents
// without going through the HTTP API.
package mcpadapter

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/proposalforge/sotr-assistant/internal/core/usecase"
)

type Server struct {
	factory *usecase.ToolsetFactory
	logger  *slog.Logger
}

func New(factory *usecase.ToolsetFactory, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{factory: factory, logger: logger}
}

// MCPServer builds the protocol server with the fixed retrieval tool catalog.
// Tool semantics are identical to the in-process agent loop: refusals and
// missing-collection conditions come back as explanatory text, not errors.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer(
		"sotr-assistant",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	srv.AddTool(mcp.NewTool("similarity_search",
		mcp.WithDescription("Fast similarity search within an uploaded document. Returns up to 3 relevant passages with page numbers and scores."),
		mcp.WithString("document_id", mcp.Required(), mcp.Description("ID of the uploaded document")),
		mcp.WithString("query", mcp.Required(), mcp.Description("Query text to search for")),
	), s.handleSimilaritySearch)

	srv.AddTool(mcp.NewTool("range_search",
		mcp.WithDescription("Similarity search with a custom result window. At most 3 results are returned from start_idx."),
		mcp.WithString("document_id", mcp.Required(), mcp.Description("ID of the uploaded document")),
		mcp.WithString("query", mcp.Required(), mcp.Description("Query text to search for")),
		mcp.WithNumber("start_idx", mcp.Description("First result index of the window")),
		mcp.WithNumber("end_idx", mcp.Description("Last result index of the window, exclusive")),
	), s.handleRangeSearch)

	srv.AddTool(mcp.NewTool("page_extract",
		mcp.WithDescription("Extracts raw recognized text from specific pages. Format 'start-end', at most 3 pages per call."),
		mcp.WithString("document_id", mcp.Required(), mcp.Description("ID of the uploaded document")),
		mcp.WithString("page_range", mcp.Required(), mcp.Description("Page range, e.g. '3-5'")),
	), s.handlePageExtract)

	srv.AddTool(mcp.NewTool("template_lookup",
		mcp.WithDescription("Retrieves the best-matching baseline template content for a topic."),
		mcp.WithString("document_id", mcp.Required(), mcp.Description("ID of the uploaded document")),
		mcp.WithString("template_name", mcp.Required(), mcp.Description("Project template holding the reference sheet")),
		mcp.WithString("topic", mcp.Required(), mcp.Description("Topic to look up")),
	), s.handleTemplateLookup)

	return srv
}

// ServeStdio blocks serving the MCP protocol on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.MCPServer())
}

func (s *Server) handleSimilaritySearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.invoke(ctx, req, "", "similarity_search", map[string]any{"query": query})
}

func (s *Server) handleRangeSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	startIdx := req.GetInt("start_idx", 0)
	return s.invoke(ctx, req, "", "range_search", map[string]any{
		"query":     query,
		"start_idx": startIdx,
		"end_idx":   req.GetInt("end_idx", startIdx+3),
	})
}

func (s *Server) handlePageExtract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pageRange, err := req.RequireString("page_range")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.invoke(ctx, req, "", "page_extract", map[string]any{"page_range": pageRange})
}

func (s *Server) handleTemplateLookup(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	templateName, err := req.RequireString("template_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	topic, err := req.RequireString("topic")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.invoke(ctx, req, templateName, "template_lookup", map[string]any{"topic": topic})
}

func (s *Server) invoke(ctx context.Context, req mcp.CallToolRequest, templateName, tool string, input map[string]any) (*mcp.CallToolResult, error) {
	documentID, err := req.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	toolSet, _, err := s.factory.ForDocument(ctx, documentID, templateName)
	if err != nil {
		s.logger.Warn("mcp tool set build failed", "tool", tool, "document_id", documentID, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}

	output, err := toolSet.Invoke(ctx, tool, input)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(output), nil
}
