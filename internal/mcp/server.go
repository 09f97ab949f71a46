package mcp

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mike-a-ellis/docqa/internal/assistant"
)

// ErrMissingAssistant is returned by NewServer without an assistant.
var ErrMissingAssistant = errors.New("mcp: assistant is required")

// Assistant is the subset of the query operations the tools call.
type Assistant interface {
	Ask(ctx context.Context, req assistant.Request) (*assistant.Response, error)
	Search(ctx context.Context, query, collectionID string, k int) (*assistant.SearchResult, error)
	Status(ctx context.Context) (*assistant.Status, error)
}

// Server wraps the MCP server with dependencies.
type Server struct {
	server    *mcp.Server
	assistant Assistant
	stateless bool
}

// Config holds server dependencies.
type Config struct {
	Assistant Assistant
	Version   string
	// Stateless serves every HTTP request without an MCP session, for
	// deployments behind a load balancer without sticky sessions.
	Stateless bool
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil || cfg.Assistant == nil {
		return nil, ErrMissingAssistant
	}
	version := cfg.Version
	if version == "" {
		version = "v0.1.0"
	}

	server := mcp.NewServer(&mcp.Implementation{Name: "docqa", Version: version}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask_documents",
		Description: "Answer a question from the uploaded documents. Keeps conversation history per session_id. Returns a fallback message when nothing relevant is found.",
	}, makeAskHandler(cfg.Assistant))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_documents",
		Description: "Semantic search over an uploaded document collection. Returns page-tagged passages with similarity scores, without generating an answer.",
	}, makeSearchHandler(cfg.Assistant))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_collections",
		Description: "List the document collections with their source file, page and chunk counts, and which one is active.",
	}, makeListHandler(cfg.Assistant))

	return &Server{server: server, assistant: cfg.Assistant, stateless: cfg.Stateless}, nil
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
// Used by transport handlers that need to wrap the server.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
