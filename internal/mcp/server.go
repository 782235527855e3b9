package mcp

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/texsearch/internal/runtime"
)

const (
	// ServerName is the MCP server name
	ServerName = "texsearch"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp    *server.MCPServer
	svc    *runtime.Services
	logger *slog.Logger
}

// NewServer creates a new MCP server over already opened services.
// The caller owns svc and closes it after Serve returns.
func NewServer(svc *runtime.Services) (*Server, error) {
	if svc == nil || svc.Indexer == nil || svc.Searcher == nil {
		return nil, errors.New("mcp: services are not open")
	}

	logger := svc.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		mcp: server.NewMCPServer(
			ServerName,
			ServerVersion,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
		svc:    svc,
		logger: logger.With("component", "mcp"),
	}

	s.registerTools()
	return s, nil
}

// Serve speaks MCP over the given streams until ctx is done or in closes
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	err := stdio.Listen(ctx, in, out)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(indexCorpusTool(), s.handleIndexCorpus)
	s.mcp.AddTool(searchSectionsTool(), s.handleSearchSections)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
	s.mcp.AddTool(listChaptersTool(), s.handleListChapters)
}
