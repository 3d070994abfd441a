package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/repoindex/internal/searcher"
	"github.com/dshills/repoindex/internal/source"
	"github.com/dshills/repoindex/internal/storage"
	"github.com/dshills/repoindex/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeRepoNotFound       = -32001 // Repository could not be opened
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeNotIndexed         = -32003 // Repository not indexed
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
	ErrorCodeEmbeddingFailed    = -32005 // Query could not be embedded
)

// handleIndexRepository handles the index_repository tool invocation
func (s *Server) handleIndexRepository(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, repo, err := repoArgs(request)
	if err != nil {
		return nil, err
	}

	if err := s.checkIdle(repo); err != nil {
		return nil, err
	}

	index := s.indexer.IndexFull
	if getBoolDefault(args, "force_reindex", false) {
		index = s.indexer.Rebuild
	}

	start := time.Now()
	stats, err := index(ctx, repo)
	if err != nil {
		return nil, indexingError(err)
	}

	return mcp.NewToolResultText(formatJSON(statsResponse(repo, stats, start))), nil
}

// handleIndexFiles handles the index_files tool invocation
func (s *Server) handleIndexFiles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, repo, err := repoArgs(request)
	if err != nil {
		return nil, err
	}
	paths, err := requirePaths(args)
	if err != nil {
		return nil, err
	}

	if err := s.checkIdle(repo); err != nil {
		return nil, err
	}

	start := time.Now()
	stats, err := s.indexer.IndexFiles(ctx, repo, paths)
	if err != nil {
		return nil, indexingError(err)
	}

	return mcp.NewToolResultText(formatJSON(statsResponse(repo, stats, start))), nil
}

// handleDeleteFiles handles the delete_files tool invocation
func (s *Server) handleDeleteFiles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, repo, err := repoArgs(request)
	if err != nil {
		return nil, err
	}
	paths, err := requirePaths(args)
	if err != nil {
		return nil, err
	}

	if err := s.indexer.DeleteFiles(ctx, repo, paths); err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "delete failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	store, err := s.registry.Open(ctx, repo)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to open index", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"repo":          repo,
		"deleted":       len(paths),
		"indexed_files": store.Stats().IndexedFiles,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchCode handles the search_code tool invocation
func (s *Server) handleSearchCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, repo, err := repoArgs(request)
	if err != nil {
		return nil, err
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", searcher.DefaultLimit)
	if limit < 1 || limit > searcher.MaxLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	exclude, err := getStringSlice(args, "exclude_files")
	if err != nil {
		return nil, err
	}

	var where map[string]string
	if chunkType := getStringDefault(args, "chunk_type", ""); chunkType != "" {
		if !types.ChunkType(chunkType).Valid() {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid chunk_type", map[string]interface{}{
				"param":   "chunk_type",
				"value":   chunkType,
				"allowed": []string{string(types.ChunkFileSummary), string(types.ChunkFullFile), string(types.ChunkCode)},
			})
		}
		where = map[string]string{"chunk_type": chunkType}
	}

	resp, err := s.searcher.Search(ctx, searcher.Request{
		RepoID:       repo,
		Query:        query,
		Limit:        limit,
		ExcludeFiles: exclude,
		Where:        where,
		UseCache:     true,
	})
	switch {
	case errors.Is(err, searcher.ErrEmbeddingFailed):
		return nil, newMCPError(ErrorCodeEmbeddingFailed, "failed to embed query", map[string]interface{}{
			"error": err.Error(),
		})
	case errors.Is(err, storage.ErrNotIndexed):
		return nil, newMCPError(ErrorCodeNotIndexed, "repository not indexed, use index_repository first", map[string]interface{}{
			"repo": repo,
		})
	case errors.Is(err, storage.ErrDimensionMismatch):
		return nil, newMCPError(ErrorCodeNotIndexed, "index was built with a different embedding model, re-index the repository", map[string]interface{}{
			"error": err.Error(),
		})
	case err != nil:
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	results := make([]map[string]interface{}, len(resp.Results))
	for i, r := range resp.Results {
		results[i] = map[string]interface{}{
			"id":          r.ID,
			"file_path":   r.Metadata.FilePath,
			"chunk_index": r.Metadata.ChunkIndex,
			"chunk_type":  r.Metadata.ChunkType,
			"name":        r.Metadata.Name,
			"relevance":   fmt.Sprintf("%.4f", r.Relevance),
			"content":     r.Content,
		}
	}

	response := map[string]interface{}{
		"repo":          repo,
		"query":         query,
		"results":       results,
		"total_results": resp.TotalResults,
		"cache_hit":     resp.CacheHit,
		"duration_ms":   resp.Duration.Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, repo, err := repoArgs(request)
	if err != nil {
		return nil, err
	}

	var stats storage.Stats
	if s.registry.Exists(repo) {
		store, err := s.registry.Open(ctx, repo)
		if err != nil {
			return nil, newMCPError(ErrorCodeInternalError, "failed to get repository status", map[string]interface{}{
				"error": err.Error(),
			})
		}
		stats = store.Stats()
	}
	if stats.IndexedFiles == 0 {
		response := map[string]interface{}{
			"indexed": false,
			"repo":    repo,
			"message": "Repository not indexed. Use index_repository tool to index this repository.",
		}
		return mcp.NewToolResultText(formatJSON(response)), nil
	}

	response := map[string]interface{}{
		"indexed": true,
		"repo":    repo,
		"statistics": map[string]interface{}{
			"indexed_files": stats.IndexedFiles,
			"total_chunks":  stats.TotalChunks,
			"dimension":     stats.Dimension,
		},
		"embedder": map[string]interface{}{
			"provider":  s.embedder.Provider(),
			"model":     s.embedder.Model(),
			"dimension": s.embedder.Dimension(),
		},
		"keys": map[string]interface{}{
			"total":   s.keys.Len(),
			"cooling": s.keys.Cooling(),
		},
		"storage": map[string]interface{}{
			"path":       s.registry.Path(repo),
			"driver":     storage.DriverName,
			"build_mode": storage.BuildMode,
		},
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// checkIdle reports ErrorCodeIndexingInProgress when another operation holds
// the repository. The probe releases the lock right away; the operation
// itself takes it again.
func (s *Server) checkIdle(repo string) error {
	if !s.registry.TryLock(repo) {
		return newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", map[string]interface{}{
			"repo": repo,
		})
	}
	s.registry.Unlock(repo)
	return nil
}

// indexingError maps indexer failures to MCP errors
func indexingError(err error) error {
	if errors.Is(err, source.ErrNotFound) {
		return newMCPError(ErrorCodeRepoNotFound, "repository not found", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
		"error": err.Error(),
	})
}

func statsResponse(repo string, stats types.IndexStats, start time.Time) map[string]interface{} {
	return map[string]interface{}{
		"repo":        repo,
		"indexed":     stats.Indexed,
		"skipped":     stats.Skipped,
		"errors":      stats.Errors,
		"duration_ms": time.Since(start).Milliseconds(),
	}
}

// repoArgs extracts the arguments map and the required repo parameter
func repoArgs(request mcp.CallToolRequest) (map[string]interface{}, string, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, "", newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	repo, ok := args["repo"].(string)
	if !ok || repo == "" {
		return nil, "", newMCPError(ErrorCodeInvalidParams, "repo parameter is required", map[string]interface{}{
			"param":  "repo",
			"reason": "missing or empty",
		})
	}
	return args, repo, nil
}

func requirePaths(args map[string]interface{}) ([]string, error) {
	paths, err := getStringSlice(args, "paths")
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "paths parameter is required", map[string]interface{}{
			"param":  "paths",
			"reason": "missing or empty",
		})
	}
	return paths, nil
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSlice extracts an optional array of strings
func getStringSlice(args map[string]interface{}, key string) ([]string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}

	switch v := raw.(type) {
	case []string:
		return v, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok || s == "" {
				return nil, newMCPError(ErrorCodeInvalidParams, key+" must contain only non-empty strings", map[string]interface{}{
					"param": key,
				})
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, newMCPError(ErrorCodeInvalidParams, key+" must be an array of strings", map[string]interface{}{
			"param": key,
		})
	}
}
