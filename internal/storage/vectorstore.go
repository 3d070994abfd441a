package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/dshills/repoindex/pkg/types"
)

// ContentHash returns the short content hash used for change detection: the
// first 16 hex characters of the SHA-256 of content.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:16]
}

// QueryOptions narrows a Query
type QueryOptions struct {
	// Where keeps only chunks whose metadata fields equal the given values.
	// Unknown field names match nothing.
	Where map[string]string

	// ExcludeFiles drops every chunk of the listed file paths.
	ExcludeFiles []string
}

// Stats describes a repository index
type Stats struct {
	RepoID       string `json:"repo_id"`
	TotalChunks  int    `json:"total_chunks"`
	IndexedFiles int    `json:"indexed_files"`
	Dimension    int    `json:"dimension"`
}

// VectorStore is the persistent, exact-search index of one repository.
//
// Reads may run concurrently with each other; mutations are serialized and
// applied to memory only after they have been committed to storage. Callers
// still hold the registry's per-repository lock around whole indexing runs.
type VectorStore struct {
	repoID  string
	backend Storage

	mu        sync.RWMutex
	records   []types.ChunkRecord
	vectors   [][]float32
	hashes    map[string]string
	dimension int
	closed    bool

	// generation counts committed mutations
	generation uint64
}

// OpenVectorStore loads the index of repoID from backend, repairing any
// inconsistency it finds.
func OpenVectorStore(ctx context.Context, repoID string, backend Storage) (*VectorStore, error) {
	snap, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load index %s: %w", repoID, err)
	}

	if reconcile(snap) || snap.Dirty {
		log.WithField("repo", repoID).Warn("repairing inconsistent index on disk")
		if err := backend.Rewrite(ctx, snap); err != nil {
			return nil, fmt.Errorf("failed to repair index %s: %w", repoID, err)
		}
	}

	log.WithFields(log.Fields{
		"repo":   repoID,
		"chunks": len(snap.Records),
		"files":  len(snap.Hashes),
	}).Debug("index loaded")

	return &VectorStore{
		repoID:    repoID,
		backend:   backend,
		records:   snap.Records,
		vectors:   snap.Vectors,
		hashes:    snap.Hashes,
		dimension: snap.Dimension,
	}, nil
}

// reconcile enforces the index invariants on a loaded snapshot and reports
// whether anything changed.
func reconcile(snap *Snapshot) bool {
	changed := false
	if snap.Hashes == nil {
		snap.Hashes = make(map[string]string)
	}

	if len(snap.Records) != len(snap.Vectors) {
		snap.Records, snap.Vectors = nil, nil
		snap.Hashes = make(map[string]string)
		snap.Dimension = 0
		return true
	}

	// Drop chunks of files without a hash.
	withChunks := make(map[string]bool)
	keep := 0
	for i := range snap.Records {
		path := snap.Records[i].FilePath
		if _, ok := snap.Hashes[path]; !ok {
			changed = true
			continue
		}
		withChunks[path] = true
		snap.Records[keep] = snap.Records[i]
		snap.Vectors[keep] = snap.Vectors[i]
		keep++
	}
	snap.Records = snap.Records[:keep]
	snap.Vectors = snap.Vectors[:keep]

	// Drop hashes of files without chunks.
	for path := range snap.Hashes {
		if !withChunks[path] {
			delete(snap.Hashes, path)
			changed = true
		}
	}

	if len(snap.Records) == 0 {
		snap.Dimension = 0
	}
	return changed
}

// RepoID returns the repository this store indexes
func (s *VectorStore) RepoID() string {
	return s.repoID
}

// NeedsUpdate reports whether content differs from what was indexed for path.
func (s *VectorStore) NeedsUpdate(path, content string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.hashes[path]
	return !ok || stored != ContentHash(content)
}

// AddChunks replaces the chunk set of path. embeddings[i] belongs to chunks[i].
// Empty input is a no-op. If the embedding dimension differs from the index's,
// the whole index is dropped before the file is added.
func (s *VectorStore) AddChunks(ctx context.Context, path string, chunks []types.Chunk, embeddings [][]float32, contentHash string) error {
	if len(chunks) == 0 || len(embeddings) == 0 {
		return nil
	}
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("%w: %d chunks, %d embeddings", ErrLengthMismatch, len(chunks), len(embeddings))
	}
	dim := len(embeddings[0])
	for _, e := range embeddings {
		if len(e) == 0 || len(e) != dim {
			return fmt.Errorf("%w: inconsistent embeddings for %s", ErrDimensionMismatch, path)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	newRecords := make([]types.ChunkRecord, len(chunks))
	newVectors := make([][]float32, len(embeddings))
	for i, c := range chunks {
		newRecords[i] = types.NewChunkRecord(path, i, c)
		newVectors[i] = append([]float32(nil), embeddings[i]...)
	}

	if s.dimension != 0 && dim != s.dimension {
		log.WithFields(log.Fields{
			"repo": s.repoID,
			"old":  s.dimension,
			"new":  dim,
		}).Warn("embedding dimension changed, rebuilding index")

		snap := &Snapshot{
			Records:   newRecords,
			Vectors:   newVectors,
			Hashes:    map[string]string{path: contentHash},
			Dimension: dim,
		}
		if err := s.backend.Rewrite(ctx, snap); err != nil {
			return fmt.Errorf("failed to persist %s: %w", path, err)
		}
		s.records, s.vectors, s.hashes, s.dimension = snap.Records, snap.Vectors, snap.Hashes, dim
		s.generation++
		return nil
	}

	if err := s.backend.ReplaceFile(ctx, path, newRecords, newVectors, contentHash, dim); err != nil {
		return fmt.Errorf("failed to persist %s: %w", path, err)
	}

	s.removeLocked(path)
	s.records = append(s.records, newRecords...)
	s.vectors = append(s.vectors, newVectors...)
	s.hashes[path] = contentHash
	s.dimension = dim
	s.generation++
	return nil
}

// DeleteFile removes every chunk and the hash of path. Unknown paths are a no-op.
func (s *VectorStore) DeleteFile(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if _, ok := s.hashes[path]; !ok && !s.hasChunksLocked(path) {
		return nil
	}

	if err := s.backend.DeleteFile(ctx, path); err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	s.removeLocked(path)
	s.generation++
	return nil
}

func (s *VectorStore) hasChunksLocked(path string) bool {
	for i := range s.records {
		if s.records[i].FilePath == path {
			return true
		}
	}
	return false
}

// removeLocked drops path from memory, keeping the order of the other rows
func (s *VectorStore) removeLocked(path string) {
	keep := 0
	for i := range s.records {
		if s.records[i].FilePath == path {
			continue
		}
		s.records[keep] = s.records[i]
		s.vectors[keep] = s.vectors[i]
		keep++
	}
	clear(s.records[keep:])
	clear(s.vectors[keep:])
	s.records = s.records[:keep]
	s.vectors = s.vectors[:keep]
	delete(s.hashes, path)
	if keep == 0 {
		s.dimension = 0
	}
}

// Query returns the k stored chunks most similar to embedding, best first.
// Ties keep insertion order.
func (s *VectorStore) Query(embedding []float32, k int, opts QueryOptions) ([]types.QueryResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.records) == 0 || len(embedding) == 0 || k <= 0 {
		return []types.QueryResult{}, nil
	}
	if len(embedding) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(embedding), s.dimension)
	}

	excluded := make(map[string]bool, len(opts.ExcludeFiles))
	for _, f := range opts.ExcludeFiles {
		excluded[f] = true
	}

	qNorm := norm(embedding)
	candidates := make([]candidate, 0, len(s.records))
	for i := range s.records {
		rec := &s.records[i]
		if excluded[rec.FilePath] || !matches(rec, opts.Where) {
			continue
		}
		candidates = append(candidates, candidate{row: i, score: cosineSimilarity(embedding, qNorm, s.vectors[i])})
	}

	sortCandidates(candidates)
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	results := make([]types.QueryResult, len(candidates))
	for i, c := range candidates {
		rec := s.records[c.row]
		results[i] = types.QueryResult{
			ID:      rec.ID,
			Content: rec.Content,
			Metadata: types.ResultMetadata{
				FilePath:   rec.FilePath,
				ChunkIndex: rec.ChunkIndex,
				ChunkType:  rec.ChunkType,
				Name:       rec.Name,
			},
			Distance: 1 - c.score,
		}
	}
	return results, nil
}

func matches(rec *types.ChunkRecord, where map[string]string) bool {
	for field, want := range where {
		got, ok := rec.Field(field)
		if !ok || got != want {
			return false
		}
	}
	return true
}

// Stats returns chunk and file counts
func (s *VectorStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		RepoID:       s.repoID,
		TotalChunks:  len(s.records),
		IndexedFiles: len(s.hashes),
		Dimension:    s.dimension,
	}
}

// Generation changes whenever the content of the index changes
func (s *VectorStore) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Files returns the indexed file paths, sorted
func (s *VectorStore) Files() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	files := make([]string, 0, len(s.hashes))
	for path := range s.hashes {
		files = append(files, path)
	}
	sort.Strings(files)
	return files
}

// Chunks returns a copy of the records of path in index order
func (s *VectorStore) Chunks(path string) []types.ChunkRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.ChunkRecord
	for _, r := range s.records {
		if r.FilePath == path {
			out = append(out, r)
		}
	}
	return out
}

// Reset drops every chunk and hash
func (s *VectorStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if err := s.backend.Rewrite(ctx, &Snapshot{Hashes: map[string]string{}}); err != nil {
		return fmt.Errorf("failed to reset index %s: %w", s.repoID, err)
	}
	s.records, s.vectors = nil, nil
	s.hashes = make(map[string]string)
	s.dimension = 0
	s.generation++
	return nil
}

// Close releases the backend. Further mutations return ErrClosed.
func (s *VectorStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.backend.Close()
}
