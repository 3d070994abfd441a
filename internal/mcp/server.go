package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/repoindex/internal/embedder"
	"github.com/dshills/repoindex/internal/indexer"
	"github.com/dshills/repoindex/internal/keypool"
	"github.com/dshills/repoindex/internal/searcher"
	"github.com/dshills/repoindex/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "repoindex"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	registry *storage.Registry
	indexer  *indexer.Indexer
	searcher *searcher.Searcher
	embedder embedder.Embedder
	keys     *keypool.Pool
}

// NewServer creates a new MCP server instance. The indexer and searcher must
// share emb so indexed vectors and query vectors come from the same model.
// keys is the embedder's credential pool, reported by get_status; it may be nil.
func NewServer(registry *storage.Registry, idx *indexer.Indexer, srch *searcher.Searcher, emb embedder.Embedder, keys *keypool.Pool) *Server {
	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
		registry: registry,
		indexer:  idx,
		searcher: srch,
		embedder: emb,
		keys:     keys,
	}
	s.registerTools()
	return s
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(indexRepositoryTool(), s.handleIndexRepository)
	s.mcp.AddTool(indexFilesTool(), s.handleIndexFiles)
	s.mcp.AddTool(deleteFilesTool(), s.handleDeleteFiles)
	s.mcp.AddTool(searchCodeTool(), s.handleSearchCode)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
