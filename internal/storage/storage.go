package storage

import (
	"context"
	"errors"

	"github.com/dshills/repoindex/pkg/types"
)

var (
	// ErrDimensionMismatch is returned when a vector's dimension does not fit the index
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrLengthMismatch is returned when chunks and embeddings are not aligned
	ErrLengthMismatch = errors.New("chunks and embeddings length mismatch")
	// ErrClosed is returned by operations on a closed store
	ErrClosed = errors.New("store is closed")
	// ErrNotIndexed is returned by OpenExisting for a repository without an index
	ErrNotIndexed = errors.New("repository not indexed")
)

// Storage persists the artifacts of one repository index. Every mutating call
// commits all affected artifacts together or not at all.
type Storage interface {
	// Load reads every artifact. Unreadable artifacts come back empty and
	// Snapshot.Dirty is set; only context or connection failures are errors.
	Load(ctx context.Context) (*Snapshot, error)

	// ReplaceFile drops the rows of path and appends records/vectors after
	// every existing row.
	ReplaceFile(ctx context.Context, path string, records []types.ChunkRecord, vectors [][]float32, contentHash string, dimension int) error

	// DeleteFile drops the rows and hash of path.
	DeleteFile(ctx context.Context, path string) error

	// Rewrite replaces the whole index with snap.
	Rewrite(ctx context.Context, snap *Snapshot) error

	Close() error
}

// Snapshot is the full in-memory form of a repository index. Vectors[i] is the
// embedding of Records[i].
type Snapshot struct {
	Records   []types.ChunkRecord
	Vectors   [][]float32
	Hashes    map[string]string
	Dimension int

	// Dirty marks a snapshot that differs from what is on disk.
	Dirty bool
}
