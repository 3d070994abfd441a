// Package types provides shared type definitions for the repoindex server.
//
// This package defines the value types passed between the chunker, the
// indexer, the vector store and the read path.
//
// # Core Types
//
// Chunk is a unit of text produced by the chunker before it is embedded:
//
//	chunk := types.Chunk{
//	    Type:    types.ChunkFullFile,
//	    Name:    "app/main.py",
//	    Content: source,
//	}
//
// ChunkRecord is the persisted form of a chunk inside a repository index. Its ID
// is derived from the file path and the chunk's position within that file:
//
//	types.ChunkID("app/main.py", 0) // "app/main.py:0"
//
// Symbols is the structural summary of a file produced by the parser.
//
// # Results
//
// QueryResult carries the cosine distance (1 - similarity) of a stored chunk to
// a query vector. IndexStats aggregates the per-file outcome of an indexing run
// and is the only batch-level failure signal.
package types
