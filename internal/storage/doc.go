// Package storage provides the persistent vector index of a repository.
//
// Each repository index is an ordered list of chunk records, an embedding
// matrix whose row i belongs to record i, and a map from file path to the
// short content hash of the file as it was indexed. A hash entry exists only
// for files that contribute at least one chunk.
//
// # Database Schema
//
// Every repository gets its own SQLite database at
// <data_dir>/<sanitized repo id>/index.db with the tables:
//   - chunks: chunk metadata, ordered by seq
//   - embeddings: little-endian float32 vectors keyed by the chunk seq
//   - file_hashes: file path to content hash
//   - index_meta: the embedding dimension
//   - schema_version: applied migrations
//
// Each mutation commits all tables in one transaction. On load every table is
// read on its own; a table that cannot be read is treated as empty and the
// index is repaired so the invariants hold again. A database file that cannot
// be opened at all is moved aside and replaced with an empty one.
//
// # Basic Usage
//
//	reg := storage.NewRegistry("~/.repoindex")
//	defer reg.Close()
//
//	store, err := reg.Open(ctx, "owner/repo")
//	if err != nil {
//	    return err
//	}
//
//	if store.NeedsUpdate(path, content) {
//	    err = store.AddChunks(ctx, path, chunks, vectors, storage.ContentHash(content))
//	}
//
//	results, err := store.Query(queryVector, 5, storage.QueryOptions{
//	    ExcludeFiles: []string{path},
//	})
//
// # Search
//
// Query is an exact brute-force cosine scan over every stored vector. Results
// are sorted by descending similarity with ties in insertion order, and carry
// Distance = 1 - similarity.
//
// # Build Modes
//
// The default build uses modernc.org/sqlite (pure Go). Building with
// -tags sqlite_vec switches to github.com/mattn/go-sqlite3 (CGO).
package storage
