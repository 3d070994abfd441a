package indexer

import (
	"context"
	"errors"
	"fmt"
	"path"
	"runtime"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/repoindex/internal/chunker"
	"github.com/dshills/repoindex/internal/embedder"
	"github.com/dshills/repoindex/internal/source"
	"github.com/dshills/repoindex/internal/storage"
	"github.com/dshills/repoindex/pkg/types"
)

// MaxFileSize is the largest file a full crawl will index (100 KB)
const MaxFileSize = 100 * 1024

// DefaultSupportedExtensions are the file extensions a full crawl indexes
var DefaultSupportedExtensions = []string{
	".py",
	".js", ".jsx", ".mjs", ".ts", ".tsx",
	".java",
	".c", ".h", ".cpp", ".cc", ".cxx", ".hpp",
	".go",
	".rs",
	".html", ".css", ".scss",
	".json", ".yaml", ".yml", ".toml",
	".md",
}

// DefaultSkipDirs are directory names a full crawl never descends into
var DefaultSkipDirs = []string{
	"node_modules", "venv", ".venv", "__pycache__", ".git",
	"dist", "build", "target", ".idea", ".vscode",
	"vendor", "packages", ".next", ".nuxt",
}

// Indexer keeps repository indexes in sync with repository content:
// source -> chunk -> embed -> store
type Indexer struct {
	registry *storage.Registry
	resolve  source.Resolver
	chunker  *chunker.Chunker
	embedder embedder.Embedder

	config Config
	exts   map[string]bool
	skip   map[string]bool
}

// Config contains configuration for the indexer
type Config struct {
	MaxFileSize         int64    // Largest file indexed by a crawl (default: MaxFileSize)
	SupportedExtensions []string // Extensions indexed by a crawl (default: DefaultSupportedExtensions)
	SkipDirs            []string // Directory names skipped by a crawl (default: DefaultSkipDirs)
	Workers             int      // Repositories indexed concurrently by IndexRepositories (default: runtime.NumCPU())
	Prune               bool     // Delete indexed files a full crawl no longer finds
}

// DefaultConfig returns the crawl defaults
func DefaultConfig() Config {
	return Config{
		MaxFileSize:         MaxFileSize,
		SupportedExtensions: DefaultSupportedExtensions,
		SkipDirs:            DefaultSkipDirs,
		Workers:             runtime.NumCPU(),
	}
}

// New creates a new Indexer instance
func New(registry *storage.Registry, resolve source.Resolver, ch *chunker.Chunker, emb embedder.Embedder, config Config) *Indexer {
	if config.MaxFileSize <= 0 {
		config.MaxFileSize = MaxFileSize
	}
	if config.SupportedExtensions == nil {
		config.SupportedExtensions = DefaultSupportedExtensions
	}
	if config.SkipDirs == nil {
		config.SkipDirs = DefaultSkipDirs
	}
	if config.Workers <= 0 {
		config.Workers = runtime.NumCPU()
	}

	idx := &Indexer{
		registry: registry,
		resolve:  resolve,
		chunker:  ch,
		embedder: emb,
		config:   config,
		exts:     make(map[string]bool, len(config.SupportedExtensions)),
		skip:     make(map[string]bool, len(config.SkipDirs)),
	}
	for _, ext := range config.SupportedExtensions {
		idx.exts[strings.ToLower(ext)] = true
	}
	for _, dir := range config.SkipDirs {
		idx.skip[dir] = true
	}
	return idx
}

// run is the state of one indexing operation on one repository
type run struct {
	store    *storage.VectorStore
	provider source.Provider
	logger   *log.Entry
	stats    types.IndexStats
}

// begin takes the repository lock and opens everything an operation needs.
// The returned release func must be called when the operation ends.
func (idx *Indexer) begin(ctx context.Context, repoID, op string) (*run, func(), error) {
	idx.registry.Lock(repoID)
	release := func() { idx.registry.Unlock(repoID) }

	store, err := idx.registry.Open(ctx, repoID)
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("failed to open index: %w", err)
	}

	r := &run{
		store: store,
		logger: log.WithFields(log.Fields{
			"repo": repoID,
			"op":   op,
			"run":  uuid.NewString(),
		}),
	}
	return r, release, nil
}

func (idx *Indexer) provider(repoID string) (source.Provider, error) {
	p, err := idx.resolve(repoID)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository %s: %w", repoID, err)
	}
	return p, nil
}

// IndexFull crawls the whole repository and indexes every eligible file whose
// content changed since it was last indexed.
func (idx *Indexer) IndexFull(ctx context.Context, repoID string) (types.IndexStats, error) {
	r, release, err := idx.begin(ctx, repoID, "full")
	if err != nil {
		return types.IndexStats{}, err
	}
	defer release()

	return idx.crawl(ctx, r, repoID)
}

// Rebuild drops the repository index and crawls the repository from scratch
func (idx *Indexer) Rebuild(ctx context.Context, repoID string) (types.IndexStats, error) {
	r, release, err := idx.begin(ctx, repoID, "rebuild")
	if err != nil {
		return types.IndexStats{}, err
	}
	defer release()

	// the old index survives a repository that cannot be opened
	r.provider, err = idx.provider(repoID)
	if err != nil {
		return r.stats, err
	}
	if err := r.store.Reset(ctx); err != nil {
		return r.stats, err
	}
	return idx.crawl(ctx, r, repoID)
}

func (idx *Indexer) crawl(ctx context.Context, r *run, repoID string) (types.IndexStats, error) {
	if r.provider == nil {
		var err error
		r.provider, err = idx.provider(repoID)
		if err != nil {
			return r.stats, err
		}
	}

	r.logger.Info("starting full index")

	root, err := r.provider.List(ctx, "")
	if err != nil {
		r.stats.Errors++
		r.logger.WithError(err).Error("failed to list repository root")
		if errors.Is(err, source.ErrNotFound) {
			return r.stats, fmt.Errorf("failed to list repository root: %w", err)
		}
		return r.stats, nil
	}

	queue := root
	visited := make(map[string]bool)
	present := make(map[string]bool)
	// directories whose listing failed; their indexed files are kept by prune
	var unlisted []string

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return r.stats, err
		}

		entry := queue[0]
		queue = queue[1:]
		if visited[entry.Path] {
			continue
		}
		visited[entry.Path] = true

		if entry.Type == source.TypeDir {
			if idx.skip[entry.Name] {
				continue
			}
			children, err := r.provider.List(ctx, entry.Path)
			if err != nil {
				r.stats.Errors++
				r.logger.WithError(err).WithField("dir", entry.Path).Warn("failed to list directory")
				unlisted = append(unlisted, entry.Path+"/")
				continue
			}
			queue = append(queue, children...)
			continue
		}

		if !idx.eligible(entry.Path, entry.Size) {
			r.stats.Skipped++
			continue
		}
		present[entry.Path] = true

		if err := idx.processFile(ctx, r, entry.Path); err != nil {
			return r.stats, err
		}
	}

	if idx.config.Prune {
		idx.prune(ctx, r, present, unlisted)
	}

	r.logger.WithFields(log.Fields{
		"indexed": r.stats.Indexed,
		"skipped": r.stats.Skipped,
		"errors":  r.stats.Errors,
	}).Info("full index complete")
	return r.stats, nil
}

// IndexFiles re-indexes the given files, typically the changed files of a
// commit. A failure on one file never aborts the others.
func (idx *Indexer) IndexFiles(ctx context.Context, repoID string, paths []string) (types.IndexStats, error) {
	r, release, err := idx.begin(ctx, repoID, "incremental")
	if err != nil {
		return types.IndexStats{}, err
	}
	defer release()

	r.provider, err = idx.provider(repoID)
	if err != nil {
		return r.stats, err
	}

	r.logger.WithField("files", len(paths)).Info("starting incremental index")

	for _, p := range paths {
		if err := idx.processFile(ctx, r, p); err != nil {
			return r.stats, err
		}
	}

	r.logger.WithFields(log.Fields{
		"indexed": r.stats.Indexed,
		"skipped": r.stats.Skipped,
		"errors":  r.stats.Errors,
	}).Info("incremental index complete")
	return r.stats, nil
}

// DeleteFiles removes the given files from the index
func (idx *Indexer) DeleteFiles(ctx context.Context, repoID string, paths []string) error {
	r, release, err := idx.begin(ctx, repoID, "delete")
	if err != nil {
		return err
	}
	defer release()

	var errs []error
	for _, p := range paths {
		if err := r.store.DeleteFile(ctx, p); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
			continue
		}
		r.logger.WithField("path", p).Debug("removed from index")
	}
	return errors.Join(errs...)
}

// IndexRepositories runs IndexFull on several repositories, at most
// Config.Workers at a time. Each repository is still crawled sequentially.
func (idx *Indexer) IndexRepositories(ctx context.Context, repoIDs []string) (map[string]types.IndexStats, error) {
	var (
		mu      sync.Mutex
		results = make(map[string]types.IndexStats, len(repoIDs))
		errs    []error
	)

	var g errgroup.Group
	g.SetLimit(idx.config.Workers)

	for _, id := range unique(repoIDs) {
		g.Go(func() error {
			stats, err := idx.IndexFull(ctx, id)

			mu.Lock()
			defer mu.Unlock()
			results[id] = stats
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", id, err))
			}
			return nil
		})
	}
	_ = g.Wait()

	return results, errors.Join(errs...)
}

// eligible reports whether a crawl should consider the file at p
func (idx *Indexer) eligible(p string, size int64) bool {
	if !idx.exts[strings.ToLower(path.Ext(p))] {
		return false
	}
	return size <= idx.config.MaxFileSize
}

// processFile reads one file and indexes it if its content changed.
// Only context cancellation is returned; everything else is counted.
func (idx *Indexer) processFile(ctx context.Context, r *run, p string) error {
	logger := r.logger.WithField("path", p)

	data, err := r.provider.Read(ctx, p)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.WithError(err).Warn("failed to read file")
		r.stats.Errors++
		return nil
	}
	if !utf8.Valid(data) {
		logger.Warn("file is not valid UTF-8")
		r.stats.Errors++
		return nil
	}

	content := string(data)
	if !r.store.NeedsUpdate(p, content) {
		r.stats.Skipped++
		return nil
	}

	return idx.indexFile(ctx, r, p, content)
}

// indexFile chunks, embeds and stores one file
func (idx *Indexer) indexFile(ctx context.Context, r *run, p, content string) error {
	logger := r.logger.WithField("path", p)

	chunks := idx.chunker.Chunk(p, content)
	if len(chunks) == 0 {
		r.stats.Skipped++
		return nil
	}

	kept := make([]types.Chunk, 0, len(chunks))
	vectors := make([][]float32, 0, len(chunks))
	for i, c := range chunks {
		if err := c.Validate(); err != nil {
			logger.WithError(err).WithField("chunk", i).Warn("dropping invalid chunk")
			continue
		}
		v, err := idx.embedder.Embed(ctx, c.Content)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil || len(v) == 0 {
			logger.WithError(err).WithField("chunk", i).Debug("dropping chunk without embedding")
			continue
		}
		kept = append(kept, c)
		vectors = append(vectors, v)
	}

	if len(kept) == 0 {
		logger.Warn("no chunk could be embedded")
		r.stats.Skipped++
		return nil
	}

	if err := r.store.AddChunks(ctx, p, kept, vectors, storage.ContentHash(content)); err != nil {
		logger.WithError(err).Error("failed to store chunks")
		r.stats.Errors++
		return nil
	}

	logger.WithField("chunks", len(kept)).Debug("indexed")
	r.stats.Indexed++
	return nil
}

// prune deletes indexed files that the crawl did not find
func (idx *Indexer) prune(ctx context.Context, r *run, present map[string]bool, unlisted []string) {
	for _, p := range r.store.Files() {
		if present[p] || underAny(p, unlisted) {
			continue
		}
		if err := r.store.DeleteFile(ctx, p); err != nil {
			r.logger.WithError(err).WithField("path", p).Warn("failed to prune file")
			continue
		}
		r.logger.WithField("path", p).Info("pruned missing file")
	}
}

func underAny(p string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

func unique(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
