package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// IndexFileName is the database file inside each repository directory
const IndexFileName = "index.db"

// Registry owns the VectorStore of every repository touched by the process.
// Stores are opened lazily and live until Close.
type Registry struct {
	dataDir string

	mu     sync.Mutex
	stores map[string]*VectorStore
	locks  map[string]*sync.Mutex
}

// NewRegistry creates a registry rooted at dataDir. An empty dataDir keeps
// every index in memory.
func NewRegistry(dataDir string) *Registry {
	return &Registry{
		dataDir: dataDir,
		stores:  make(map[string]*VectorStore),
		locks:   make(map[string]*sync.Mutex),
	}
}

// SanitizeRepoID turns a repository id into a single directory name
func SanitizeRepoID(repoID string) string {
	s := strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(repoID)
	if s == "" || s == "." || s == ".." {
		s = "_" + s
	}
	return s
}

// Path returns the database path used for repoID
func (r *Registry) Path(repoID string) string {
	if r.dataDir == "" {
		return ":memory:"
	}
	return filepath.Join(r.dataDir, SanitizeRepoID(repoID), IndexFileName)
}

// Exists reports whether repoID has an index, either open or on disk
func (r *Registry) Exists(repoID string) bool {
	r.mu.Lock()
	_, ok := r.stores[repoID]
	r.mu.Unlock()
	if ok {
		return true
	}
	if r.dataDir == "" || repoID == "" {
		return false
	}
	_, err := os.Stat(r.Path(repoID))
	return err == nil
}

// OpenExisting is Open for readers: it returns ErrNotIndexed instead of
// creating an empty index.
func (r *Registry) OpenExisting(ctx context.Context, repoID string) (*VectorStore, error) {
	if !r.Exists(repoID) {
		return nil, fmt.Errorf("%w: %s", ErrNotIndexed, repoID)
	}
	return r.Open(ctx, repoID)
}

// Open returns the store for repoID, loading it on first use
func (r *Registry) Open(ctx context.Context, repoID string) (*VectorStore, error) {
	if repoID == "" {
		return nil, errors.New("repository id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.stores[repoID]; ok {
		return s, nil
	}

	dbPath := r.Path(repoID)
	if r.dataDir != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
	}

	backend, err := OpenSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}

	store, err := OpenVectorStore(ctx, repoID, backend)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	r.stores[repoID] = store
	return store, nil
}

// Lock takes the single-writer lock of repoID
func (r *Registry) Lock(repoID string) {
	r.lockFor(repoID).Lock()
}

// TryLock takes the writer lock of repoID if it is free
func (r *Registry) TryLock(repoID string) bool {
	return r.lockFor(repoID).TryLock()
}

// Unlock releases the writer lock of repoID
func (r *Registry) Unlock(repoID string) {
	r.lockFor(repoID).Unlock()
}

func (r *Registry) lockFor(repoID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[repoID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[repoID] = l
	}
	return l
}

// Close closes every open store
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for id, s := range r.stores {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", id, err))
		}
		delete(r.stores, id)
	}
	return errors.Join(errs...)
}
