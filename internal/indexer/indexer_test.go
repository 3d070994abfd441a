package indexer

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/repoindex/internal/chunker"
	"github.com/dshills/repoindex/internal/parser"
	"github.com/dshills/repoindex/internal/source"
	"github.com/dshills/repoindex/internal/storage"
	"github.com/dshills/repoindex/pkg/types"
)

// memSource is an in-memory source.Provider
type memSource struct {
	mu       sync.Mutex
	files    map[string][]byte
	reads    int
	listErrs map[string]error
}

func newMemSource(files map[string]string) *memSource {
	m := &memSource{files: make(map[string][]byte)}
	for p, c := range files {
		m.files[p] = []byte(c)
	}
	return m
}

func (m *memSource) List(ctx context.Context, dir string) ([]source.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.listErrs[dir]; err != nil {
		return nil, err
	}

	prefix := ""
	if dir != "" {
		prefix = dir + "/"
	}
	seen := make(map[string]bool)
	var entries []source.Entry
	for p, data := range m.files {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		name, _, isDir := strings.Cut(rest, "/")
		if seen[name] {
			continue
		}
		seen[name] = true
		if isDir {
			entries = append(entries, source.Entry{Type: source.TypeDir, Path: prefix + name, Name: name})
		} else {
			entries = append(entries, source.Entry{Type: source.TypeFile, Path: p, Name: name, Size: int64(len(data))})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

func (m *memSource) Read(ctx context.Context, p string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	data, ok := m.files[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", source.ErrNotFound, p)
	}
	return data, nil
}

func (m *memSource) set(p, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[p] = []byte(content)
}

func (m *memSource) failList(dir string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErrs == nil {
		m.listErrs = make(map[string]error)
	}
	m.listErrs[dir] = err
}

func (m *memSource) remove(p string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, p)
}

// fakeEmbedder returns a deterministic vector per text
type fakeEmbedder struct {
	mu    sync.Mutex
	fail  func(text string) bool
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail != nil && f.fail(text) {
		return nil, errors.New("embedding unavailable")
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	sum := h.Sum32()
	return []float32{float32(sum%97) + 1, float32(sum%89) + 1, float32(sum%83) + 1, 1}, nil
}

func (f *fakeEmbedder) Dimension() int   { return 4 }
func (f *fakeEmbedder) Provider() string { return "fake" }
func (f *fakeEmbedder) Model() string    { return "fake-v1" }
func (f *fakeEmbedder) Close() error     { return nil }

func lines(n int, format string) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, format+"\n", i)
	}
	return b.String()
}

type fixture struct {
	idx      *Indexer
	registry *storage.Registry
	src      *memSource
	emb      *fakeEmbedder
}

func setupIndexer(t *testing.T, files map[string]string, config Config) *fixture {
	t.Helper()
	registry := storage.NewRegistry(t.TempDir())
	t.Cleanup(func() { _ = registry.Close() })

	src := newMemSource(files)
	emb := &fakeEmbedder{}
	idx := New(registry, source.Static(src), chunker.New(parser.New()), emb, config)
	return &fixture{idx: idx, registry: registry, src: src, emb: emb}
}

func (f *fixture) store(t *testing.T, repoID string) *storage.VectorStore {
	t.Helper()
	s, err := f.registry.Open(context.Background(), repoID)
	require.NoError(t, err)
	return s
}

func TestIndexFullEndToEnd(t *testing.T) {
	f := setupIndexer(t, map[string]string{
		"a.py":     lines(20, "value_%d = 1"),
		"lib/b.py": lines(4200, "x%d = 1"),
	}, DefaultConfig())
	ctx := context.Background()

	stats, err := f.idx.IndexFull(ctx, "acme/widgets")
	require.NoError(t, err)
	assert.Equal(t, types.IndexStats{Indexed: 2}, stats)

	store := f.store(t, "acme/widgets")
	assert.Equal(t, 2, store.Stats().IndexedFiles)

	a := store.Chunks("a.py")
	require.Len(t, a, 2)
	assert.Equal(t, types.ChunkFileSummary, a[0].ChunkType)
	assert.Equal(t, types.ChunkFullFile, a[1].ChunkType)

	b := store.Chunks("lib/b.py")
	require.Len(t, b, 85)
	assert.Equal(t, types.ChunkFileSummary, b[0].ChunkType)
	assert.Equal(t, "lib/b.py:L1-50", b[1].Name)
	assert.Equal(t, "lib/b.py:L4151-4200", b[84].Name)
	assert.Equal(t, 87, store.Stats().TotalChunks)
}

func TestIndexFullSkipsUnchangedFiles(t *testing.T) {
	f := setupIndexer(t, map[string]string{
		"a.py": "print('a')\n",
		"b.go": "package b\n",
	}, DefaultConfig())
	ctx := context.Background()

	_, err := f.idx.IndexFull(ctx, "repo")
	require.NoError(t, err)
	calls := f.emb.calls

	stats, err := f.idx.IndexFull(ctx, "repo")
	require.NoError(t, err)
	assert.Equal(t, types.IndexStats{Skipped: 2}, stats)
	assert.Equal(t, calls, f.emb.calls, "unchanged files are not embedded again")

	f.src.set("a.py", "print('changed')\n")
	stats, err = f.idx.IndexFull(ctx, "repo")
	require.NoError(t, err)
	assert.Equal(t, types.IndexStats{Indexed: 1, Skipped: 1}, stats)
}

func TestIndexFullSkipsIneligibleFiles(t *testing.T) {
	f := setupIndexer(t, map[string]string{
		"main.go":                "package main\n",
		"notes.txt":              "not source",
		"huge.py":                strings.Repeat("#", MaxFileSize+1),
		"node_modules/dep/x.js":  "module.exports = 1",
		"src/vendor/lib/y.go":    "package y",
		"src/ok.js":              "export const ok = 1\n",
		"src/blob.json":          "\xff\xfe\xfd",
		"src/deeper/nested/z.rs": "fn main() {}\n",
	}, DefaultConfig())

	stats, err := f.idx.IndexFull(context.Background(), "repo")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Indexed)
	assert.Equal(t, 2, stats.Skipped, "wrong extension and oversize")
	assert.Equal(t, 1, stats.Errors, "invalid utf-8")

	assert.Equal(t, []string{"main.go", "src/deeper/nested/z.rs", "src/ok.js"}, f.store(t, "repo").Files())
}

func TestIndexFilesIsolatesFailures(t *testing.T) {
	f := setupIndexer(t, map[string]string{
		"a.py": "a = 1\n",
		"b.py": "b = 2\n",
	}, DefaultConfig())

	stats, err := f.idx.IndexFiles(context.Background(), "repo", []string{"a.py", "missing.py", "b.py"})
	require.NoError(t, err)
	assert.Equal(t, types.IndexStats{Indexed: 2, Errors: 1}, stats)
	assert.Equal(t, []string{"a.py", "b.py"}, f.store(t, "repo").Files())
}

func TestFailedEmbeddingsDropChunks(t *testing.T) {
	f := setupIndexer(t, map[string]string{
		"a.py": "a = 1\n",
		"b.py": "b = 2\n",
	}, DefaultConfig())
	f.emb.fail = func(text string) bool {
		return strings.HasPrefix(text, "File: ") || strings.HasPrefix(text, "b =")
	}

	stats, err := f.idx.IndexFiles(context.Background(), "repo", []string{"a.py", "b.py"})
	require.NoError(t, err)
	assert.Equal(t, types.IndexStats{Indexed: 1, Skipped: 1}, stats)

	store := f.store(t, "repo")
	chunks := store.Chunks("a.py")
	require.Len(t, chunks, 1)
	assert.Equal(t, types.ChunkFullFile, chunks[0].ChunkType)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.True(t, store.NeedsUpdate("b.py", "b = 2\n"), "no hash is recorded for a skipped file")
}

func TestDeleteFiles(t *testing.T) {
	f := setupIndexer(t, map[string]string{
		"a.py": "a = 1\n",
		"b.py": "b = 2\n",
	}, DefaultConfig())
	ctx := context.Background()

	_, err := f.idx.IndexFull(ctx, "repo")
	require.NoError(t, err)

	require.NoError(t, f.idx.DeleteFiles(ctx, "repo", []string{"a.py", "never-indexed.py"}))

	store := f.store(t, "repo")
	assert.Equal(t, []string{"b.py"}, store.Files())
	assert.Equal(t, 1, store.Stats().IndexedFiles)
	assert.True(t, store.NeedsUpdate("a.py", "a = 1\n"))
}

func TestIndexFullPrune(t *testing.T) {
	for _, prune := range []bool{false, true} {
		t.Run(fmt.Sprintf("prune=%v", prune), func(t *testing.T) {
			config := DefaultConfig()
			config.Prune = prune
			f := setupIndexer(t, map[string]string{
				"a.py": "a = 1\n",
				"b.py": "b = 2\n",
			}, config)
			ctx := context.Background()

			_, err := f.idx.IndexFull(ctx, "repo")
			require.NoError(t, err)

			f.src.remove("b.py")
			_, err = f.idx.IndexFull(ctx, "repo")
			require.NoError(t, err)

			if prune {
				assert.Equal(t, []string{"a.py"}, f.store(t, "repo").Files())
			} else {
				assert.Equal(t, []string{"a.py", "b.py"}, f.store(t, "repo").Files())
			}
		})
	}
}

func TestIndexFullListFailureKeepsDirectory(t *testing.T) {
	config := DefaultConfig()
	config.Prune = true
	f := setupIndexer(t, map[string]string{
		"a.py":     "a = 1\n",
		"lib/b.py": "b = 2\n",
	}, config)
	ctx := context.Background()

	_, err := f.idx.IndexFull(ctx, "repo")
	require.NoError(t, err)

	f.src.failList("lib", errors.New("listing unavailable"))
	stats, err := f.idx.IndexFull(ctx, "repo")
	require.NoError(t, err)
	assert.Equal(t, types.IndexStats{Skipped: 1, Errors: 1}, stats)

	store := f.store(t, "repo")
	assert.Equal(t, []string{"a.py", "lib/b.py"}, store.Files())
	assert.Equal(t, 2, store.Stats().IndexedFiles)
}

func TestIndexFullRootListFailure(t *testing.T) {
	f := setupIndexer(t, map[string]string{"a.py": "a = 1\n"}, DefaultConfig())
	ctx := context.Background()

	f.src.failList("", errors.New("listing unavailable"))
	stats, err := f.idx.IndexFull(ctx, "repo")
	require.NoError(t, err)
	assert.Equal(t, types.IndexStats{Errors: 1}, stats)

	f.src.failList("", fmt.Errorf("%w: repo", source.ErrNotFound))
	stats, err = f.idx.IndexFull(ctx, "repo")
	assert.ErrorIs(t, err, source.ErrNotFound)
	assert.Equal(t, types.IndexStats{Errors: 1}, stats)
}

func TestRebuild(t *testing.T) {
	f := setupIndexer(t, map[string]string{
		"a.py": "a = 1\n",
		"b.py": "b = 2\n",
	}, DefaultConfig())
	ctx := context.Background()

	_, err := f.idx.IndexFull(ctx, "repo")
	require.NoError(t, err)
	f.src.remove("b.py")

	stats, err := f.idx.Rebuild(ctx, "repo")
	require.NoError(t, err)
	assert.Equal(t, types.IndexStats{Indexed: 1}, stats, "unchanged files are embedded again")
	assert.Equal(t, []string{"a.py"}, f.store(t, "repo").Files())
}

func TestIndexFullCancelled(t *testing.T) {
	f := setupIndexer(t, map[string]string{"a.py": "a = 1\n"}, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.idx.IndexFull(ctx, "repo")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIndexRepositories(t *testing.T) {
	registry := storage.NewRegistry(t.TempDir())
	t.Cleanup(func() { _ = registry.Close() })

	sources := map[string]*memSource{
		"one": newMemSource(map[string]string{"a.py": "a = 1\n"}),
		"two": newMemSource(map[string]string{"b.go": "package b\n", "c.go": "package c\n"}),
	}
	resolve := func(repoID string) (source.Provider, error) {
		s, ok := sources[repoID]
		if !ok {
			return nil, source.ErrNotFound
		}
		return s, nil
	}

	idx := New(registry, resolve, chunker.New(parser.New()), &fakeEmbedder{}, Config{Workers: 2})

	results, err := idx.IndexRepositories(context.Background(), []string{"one", "two", "one", "three"})
	assert.ErrorIs(t, err, source.ErrNotFound)
	assert.Equal(t, 1, results["one"].Indexed)
	assert.Equal(t, 2, results["two"].Indexed)
	assert.Contains(t, results, "three")
}

func TestRepositoryLockSerializesWriters(t *testing.T) {
	f := setupIndexer(t, map[string]string{"a.py": "a = 1\n"}, DefaultConfig())

	f.registry.Lock("repo")
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.idx.IndexFiles(context.Background(), "repo", []string{"a.py"})
	}()

	select {
	case <-done:
		t.Fatal("indexing ran while the repository was locked")
	case <-time.After(50 * time.Millisecond):
	}

	f.registry.Unlock("repo")
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("indexing did not resume after unlock")
	}
	assert.Equal(t, []string{"a.py"}, f.store(t, "repo").Files())
}

func TestWatch(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "keep.py"), []byte("keep = 1\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules"), 0o755))

	registry := storage.NewRegistry(t.TempDir())
	t.Cleanup(func() { _ = registry.Close() })

	resolve, err := source.NewResolver(source.Config{Kind: source.KindLocal})
	require.NoError(t, err)
	idx := New(registry, resolve, chunker.New(parser.New()), &fakeEmbedder{}, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	watchDone := make(chan error, 1)
	go func() {
		watchDone <- idx.Watch(ctx, root, 20*time.Millisecond)
	}()
	defer func() {
		cancel()
		<-watchDone
	}()

	store, err := registry.Open(context.Background(), root)
	require.NoError(t, err)

	// the watch is registered asynchronously; keep touching the file until it is seen
	target := filepath.Join(root, "new.py")
	assert.Eventually(t, func() bool {
		_ = os.WriteFile(target, []byte("created = 1\n"), 0o644)
		_ = os.WriteFile(filepath.Join(root, "node_modules", "dep.js"), []byte("x"), 0o644)
		return !store.NeedsUpdate("new.py", "created = 1\n")
	}, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, os.Remove(target))
	assert.Eventually(t, func() bool {
		return store.NeedsUpdate("new.py", "created = 1\n")
	}, 5*time.Second, 20*time.Millisecond)

	assert.NotContains(t, store.Files(), "node_modules/dep.js")
	assert.NotContains(t, store.Files(), "keep.py", "watch does not crawl existing files")
}

func TestWatchRequiresLocalRepository(t *testing.T) {
	f := setupIndexer(t, nil, DefaultConfig())
	err := f.idx.Watch(context.Background(), "repo", time.Millisecond)
	assert.Error(t, err)
}
