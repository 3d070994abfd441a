package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

var repoProperty = map[string]interface{}{
	"type":        "string",
	"description": "Repository id: a local path or owner/name, depending on the configured source",
}

var pathsProperty = map[string]interface{}{
	"type":        "array",
	"description": "File paths relative to the repository root",
	"items": map[string]interface{}{
		"type": "string",
	},
}

// indexRepositoryTool returns the tool definition for index_repository
func indexRepositoryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_repository",
		Description: "Crawl a repository and index every supported file whose content changed since the last run",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"repo": repoProperty,
				"force_reindex": map[string]interface{}{
					"type":        "boolean",
					"description": "Drop the existing index and embed every file again",
					"default":     false,
				},
			},
			Required: []string{"repo"},
		},
	}
}

// indexFilesTool returns the tool definition for index_files
func indexFilesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_files",
		Description: "Re-index specific files of a repository, e.g. the files changed by a commit",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"repo":  repoProperty,
				"paths": pathsProperty,
			},
			Required: []string{"repo", "paths"},
		},
	}
}

// deleteFilesTool returns the tool definition for delete_files
func deleteFilesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "delete_files",
		Description: "Remove files that were deleted from a repository from its index",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"repo":  repoProperty,
				"paths": pathsProperty,
			},
			Required: []string{"repo", "paths"},
		},
	}
}

// searchCodeTool returns the tool definition for search_code
func searchCodeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_code",
		Description: "Find code related to a natural language query in an indexed repository",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"repo": repoProperty,
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Natural language query or code snippet",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     5,
					"minimum":     1,
					"maximum":     100,
				},
				"exclude_files": map[string]interface{}{
					"type":        "array",
					"description": "Files whose chunks must not be returned, e.g. the files under review",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
				"chunk_type": map[string]interface{}{
					"type":        "string",
					"description": "Only return chunks of this type",
					"enum":        []string{"file_summary", "full_file", "code_chunk"},
				},
			},
			Required: []string{"repo", "query"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Query indexing status and statistics for a repository",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"repo": repoProperty,
			},
			Required: []string{"repo"},
		},
	}
}
