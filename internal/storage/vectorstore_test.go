package storage

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/repoindex/pkg/types"
)

func setupTestStore(t *testing.T) *VectorStore {
	t.Helper()
	backend, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)

	store, err := OpenVectorStore(context.Background(), "owner/repo", backend)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func makeChunks(path string, n int) []types.Chunk {
	chunks := make([]types.Chunk, n)
	for i := range chunks {
		chunks[i] = types.Chunk{
			Type:    types.ChunkCode,
			Name:    fmt.Sprintf("%s:L%d-%d", path, i*50+1, i*50+50),
			Content: fmt.Sprintf("content %d of %s", i, path),
		}
	}
	return chunks
}

// unit returns a basis vector of dimension dim
func unit(dim, axis int) []float32 {
	v := make([]float32, dim)
	v[axis] = 1
	return v
}

func TestNeedsUpdate(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	assert.True(t, store.NeedsUpdate("a.py", "print(1)"))

	err := store.AddChunks(ctx, "a.py", makeChunks("a.py", 1), [][]float32{unit(3, 0)}, ContentHash("print(1)"))
	require.NoError(t, err)

	assert.False(t, store.NeedsUpdate("a.py", "print(1)"))
	assert.True(t, store.NeedsUpdate("a.py", "print(2)"))
	assert.True(t, store.NeedsUpdate("b.py", "print(1)"))
}

func TestContentHash(t *testing.T) {
	h := ContentHash("hello")
	assert.Len(t, h, 16)
	assert.Equal(t, "2cf24dba5fb0a30e", h)
	assert.NotEqual(t, h, ContentHash("hello "))
}

func TestAddChunksReplacesFileChunks(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddChunks(ctx, "a.py", makeChunks("a.py", 3),
		[][]float32{unit(3, 0), unit(3, 1), unit(3, 2)}, "h1"))
	require.NoError(t, store.AddChunks(ctx, "b.py", makeChunks("b.py", 1),
		[][]float32{unit(3, 0)}, "h2"))

	require.NoError(t, store.AddChunks(ctx, "a.py", makeChunks("a.py", 2),
		[][]float32{unit(3, 1), unit(3, 2)}, "h3"))

	stats := store.Stats()
	assert.Equal(t, 3, stats.TotalChunks)
	assert.Equal(t, 2, stats.IndexedFiles)

	recs := store.Chunks("a.py")
	require.Len(t, recs, 2)
	assert.Equal(t, "a.py:0", recs[0].ID)
	assert.Equal(t, "a.py:1", recs[1].ID)
	assert.Equal(t, "h3", store.hashes["a.py"])

	// b.py now precedes a.py's new chunks
	assert.Equal(t, "b.py:0", store.records[0].ID)
}

func TestAddChunksValidation(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	t.Run("empty input is a no-op", func(t *testing.T) {
		require.NoError(t, store.AddChunks(ctx, "a.py", nil, nil, "h"))
		require.NoError(t, store.AddChunks(ctx, "a.py", makeChunks("a.py", 1), nil, "h"))
		assert.Equal(t, 0, store.Stats().TotalChunks)
		assert.True(t, store.NeedsUpdate("a.py", "x"))
	})

	t.Run("length mismatch", func(t *testing.T) {
		err := store.AddChunks(ctx, "a.py", makeChunks("a.py", 2), [][]float32{unit(3, 0)}, "h")
		assert.ErrorIs(t, err, ErrLengthMismatch)
	})

	t.Run("inconsistent dimension", func(t *testing.T) {
		err := store.AddChunks(ctx, "a.py", makeChunks("a.py", 2), [][]float32{unit(3, 0), unit(4, 0)}, "h")
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	assert.Equal(t, 0, store.Stats().TotalChunks)
}

func TestQuerySortedWithSelfMatch(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	vectors := [][]float32{
		{1, 0, 0},
		{0.7, 0.7, 0},
		{0, 1, 0},
		{0, 0, 1},
	}
	require.NoError(t, store.AddChunks(ctx, "a.py", makeChunks("a.py", 4), vectors, "h"))

	results, err := store.Query([]float32{0, 1, 0}, 10, QueryOptions{})
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, "a.py:2", results[0].ID)
	assert.InDelta(t, 0, results[0].Distance, 1e-6)
	assert.Equal(t, "a.py:1", results[1].ID)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i-1].Distance, results[i].Distance)
	}
	assert.InDelta(t, 1, results[3].Distance, 1e-6)
	assert.Equal(t, types.ChunkCode, results[0].Metadata.ChunkType)
	assert.Equal(t, "a.py", results[0].Metadata.FilePath)
}

func TestQueryTiesKeepInsertionOrder(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, path := range []string{"c.py", "a.py", "b.py"} {
		require.NoError(t, store.AddChunks(ctx, path, makeChunks(path, 1), [][]float32{{1, 1}}, "h"))
	}

	results, err := store.Query([]float32{1, 1}, 3, QueryOptions{})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "c.py:0", results[0].ID)
	assert.Equal(t, "a.py:0", results[1].ID)
	assert.Equal(t, "b.py:0", results[2].ID)
}

func TestQueryFilters(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddChunks(ctx, "a.py", []types.Chunk{
		{Type: types.ChunkFileSummary, Name: "a.py", Content: "File: a.py"},
		{Type: types.ChunkFullFile, Name: "a.py", Content: "x = 1"},
	}, [][]float32{{1, 0}, {1, 0.1}}, "h1"))
	require.NoError(t, store.AddChunks(ctx, "b.py", makeChunks("b.py", 1), [][]float32{{1, 0}}, "h2"))

	t.Run("exclude files", func(t *testing.T) {
		results, err := store.Query([]float32{1, 0}, 10, QueryOptions{ExcludeFiles: []string{"a.py"}})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "b.py:0", results[0].ID)
	})

	t.Run("where chunk_type", func(t *testing.T) {
		results, err := store.Query([]float32{1, 0}, 10, QueryOptions{Where: map[string]string{"chunk_type": "full_file"}})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "a.py:1", results[0].ID)
	})

	t.Run("where unknown field", func(t *testing.T) {
		results, err := store.Query([]float32{1, 0}, 10, QueryOptions{Where: map[string]string{"language": "python"}})
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("top k", func(t *testing.T) {
		results, err := store.Query([]float32{1, 0}, 2, QueryOptions{})
		require.NoError(t, err)
		assert.Len(t, results, 2)
	})
}

func TestQueryEdgeCases(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	results, err := store.Query([]float32{1, 0}, 5, QueryOptions{})
	require.NoError(t, err)
	assert.Empty(t, results, "empty store")

	require.NoError(t, store.AddChunks(ctx, "a.py", makeChunks("a.py", 1), [][]float32{{1, 0}}, "h"))

	results, err = store.Query(nil, 5, QueryOptions{})
	require.NoError(t, err)
	assert.Empty(t, results, "empty query")

	results, err = store.Query([]float32{1, 0}, 0, QueryOptions{})
	require.NoError(t, err)
	assert.Empty(t, results, "k = 0")

	results, err = store.Query([]float32{1, 0}, -1, QueryOptions{})
	require.NoError(t, err)
	assert.Empty(t, results, "negative k")

	_, err = store.Query([]float32{1, 0, 0}, 5, QueryOptions{})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	// zero vectors do not divide by zero
	results, err = store.Query([]float32{0, 0}, 5, QueryOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1, results[0].Distance, 1e-6)
}

func TestDeleteFile(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddChunks(ctx, "a.py", makeChunks("a.py", 2), [][]float32{{1, 0}, {0, 1}}, "h1"))
	require.NoError(t, store.AddChunks(ctx, "b.py", makeChunks("b.py", 1), [][]float32{{1, 0}}, "h2"))

	require.NoError(t, store.DeleteFile(ctx, "a.py"))

	stats := store.Stats()
	assert.Equal(t, 1, stats.IndexedFiles)
	assert.Equal(t, 1, stats.TotalChunks)
	assert.True(t, store.NeedsUpdate("a.py", "anything"))

	results, err := store.Query([]float32{1, 0}, 10, QueryOptions{})
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "a.py", r.Metadata.FilePath)
	}

	// unknown path is a no-op
	require.NoError(t, store.DeleteFile(ctx, "missing.py"))
	assert.Equal(t, 1, store.Stats().IndexedFiles)
}

func TestDimensionChangeRebuildsIndex(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddChunks(ctx, "a.py", makeChunks("a.py", 1), [][]float32{unit(3, 0)}, "h1"))
	require.NoError(t, store.AddChunks(ctx, "b.py", makeChunks("b.py", 2), [][]float32{unit(4, 0), unit(4, 1)}, "h2"))

	stats := store.Stats()
	assert.Equal(t, 1, stats.IndexedFiles)
	assert.Equal(t, 2, stats.TotalChunks)
	assert.Equal(t, 4, stats.Dimension)
	assert.True(t, store.NeedsUpdate("a.py", "x"), "a.py must be re-indexed")
	assert.Equal(t, []string{"b.py"}, store.Files())
}

func TestResetAndFiles(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddChunks(ctx, "z.py", makeChunks("z.py", 1), [][]float32{{1}}, "h"))
	require.NoError(t, store.AddChunks(ctx, "a.py", makeChunks("a.py", 1), [][]float32{{1}}, "h"))
	assert.Equal(t, []string{"a.py", "z.py"}, store.Files())

	require.NoError(t, store.Reset(ctx))
	assert.Equal(t, Stats{RepoID: "owner/repo"}, store.Stats())
	assert.Empty(t, store.Files())
}

func TestClosedStoreRejectsMutations(t *testing.T) {
	store := setupTestStore(t)
	require.NoError(t, store.Close())

	err := store.AddChunks(context.Background(), "a.py", makeChunks("a.py", 1), [][]float32{{1}}, "h")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, store.DeleteFile(context.Background(), "a.py"), ErrClosed)
}

func TestReconcile(t *testing.T) {
	rec := func(path string, i int) types.ChunkRecord {
		return types.NewChunkRecord(path, i, types.Chunk{Type: types.ChunkCode, Content: "x"})
	}

	t.Run("length mismatch resets everything", func(t *testing.T) {
		snap := &Snapshot{
			Records:   []types.ChunkRecord{rec("a", 0), rec("a", 1)},
			Vectors:   [][]float32{{1}},
			Hashes:    map[string]string{"a": "h"},
			Dimension: 1,
		}
		assert.True(t, reconcile(snap))
		assert.Empty(t, snap.Records)
		assert.Empty(t, snap.Vectors)
		assert.Empty(t, snap.Hashes)
		assert.Zero(t, snap.Dimension)
	})

	t.Run("chunks without hash and hashes without chunks", func(t *testing.T) {
		snap := &Snapshot{
			Records:   []types.ChunkRecord{rec("a", 0), rec("b", 0), rec("a", 1)},
			Vectors:   [][]float32{{1}, {2}, {3}},
			Hashes:    map[string]string{"a": "h", "ghost": "h"},
			Dimension: 1,
		}
		assert.True(t, reconcile(snap))
		require.Len(t, snap.Records, 2)
		assert.Equal(t, "a:0", snap.Records[0].ID)
		assert.Equal(t, "a:1", snap.Records[1].ID)
		assert.Equal(t, [][]float32{{1}, {3}}, snap.Vectors)
		assert.Equal(t, map[string]string{"a": "h"}, snap.Hashes)
	})

	t.Run("consistent snapshot is untouched", func(t *testing.T) {
		snap := &Snapshot{
			Records: []types.ChunkRecord{rec("a", 0)},
			Vectors: [][]float32{{1}},
			Hashes:  map[string]string{"a": "h"},
		}
		assert.False(t, reconcile(snap))
		assert.Len(t, snap.Records, 1)
	})
}

func makeRecords(path string, n int) []types.ChunkRecord {
	chunks := makeChunks(path, n)
	records := make([]types.ChunkRecord, n)
	for i, c := range chunks {
		records[i] = types.NewChunkRecord(path, i, c)
	}
	return records
}

func TestGenerationTracksMutations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	g0 := store.Generation()
	require.NoError(t, store.AddChunks(ctx, "a.py", makeChunks("a.py", 1), [][]float32{unit(2, 0)}, "h"))
	g1 := store.Generation()
	assert.NotEqual(t, g0, g1)

	require.NoError(t, store.DeleteFile(ctx, "missing.py"))
	assert.Equal(t, g1, store.Generation(), "no-op delete")

	require.NoError(t, store.DeleteFile(ctx, "a.py"))
	assert.NotEqual(t, g1, store.Generation())
}
