// Package mcp implements the Model Context Protocol (MCP) server for repoindex.
//
// The server exposes the index to AI coding assistants over stdio:
//   - index_repository: Crawl a repository and index every changed file
//   - index_files: Re-index specific files of a repository
//   - delete_files: Remove files from a repository index
//   - search_code: Rank indexed chunks against a natural language query
//   - get_status: Report whether a repository is indexed, its statistics and
//     how many embedding keys are cooling down
//
// # Basic Usage
//
//	repoindex serve
//
// The server reads MCP messages from stdin and writes responses to stdout.
// Logs go to stderr.
//
// # Tool: search_code
//
//	Request:
//	{
//	  "name": "search_code",
//	  "arguments": {
//	    "repo": "acme/payments",
//	    "query": "retry failed card charges",
//	    "limit": 5,
//	    "exclude_files": ["README.md"],
//	    "chunk_type": "code_chunk"
//	  }
//	}
//
//	Response:
//	{
//	  "repo": "acme/payments",
//	  "query": "retry failed card charges",
//	  "results": [
//	    {
//	      "id": "billing/charge.py:3",
//	      "file_path": "billing/charge.py",
//	      "chunk_index": 3,
//	      "chunk_type": "code_chunk",
//	      "name": "billing/charge.py:L101-150",
//	      "relevance": "0.8123",
//	      "content": "..."
//	    }
//	  ],
//	  "total_results": 1,
//	  "cache_hit": false,
//	  "duration_ms": 42
//	}
//
// index_repository takes an optional "force_reindex" that drops the index and
// embeds every file again. index_repository and index_files respond with the
// run counters:
//
//	{"repo": "acme/payments", "indexed": 12, "skipped": 230, "errors": 0, "duration_ms": 5310}
//
// # Error Codes
//
//   - -32602: Invalid params
//   - -32603: Internal error
//   - -32001: Repository not found
//   - -32002: Indexing in progress
//   - -32003: Repository not indexed, or indexed with another embedding dimension
//   - -32004: Empty query
//   - -32005: Query embedding failed
package mcp
