package searcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/repoindex/internal/storage"
	"github.com/dshills/repoindex/pkg/types"
)

// mockEmbedder maps known texts to fixed vectors
type mockEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   int
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.vectors[text], nil
}

func (m *mockEmbedder) Dimension() int   { return 3 }
func (m *mockEmbedder) Provider() string { return "mock" }
func (m *mockEmbedder) Model() string    { return "mock-model" }
func (m *mockEmbedder) Close() error     { return nil }

func setupSearcher(t *testing.T) (*Searcher, *mockEmbedder, *storage.VectorStore) {
	t.Helper()
	registry := storage.NewRegistry(t.TempDir())
	t.Cleanup(func() { _ = registry.Close() })

	ctx := context.Background()
	store, err := registry.Open(ctx, "repo")
	require.NoError(t, err)

	add := func(path string, vectors ...[]float32) {
		chunks := make([]types.Chunk, len(vectors))
		for i := range vectors {
			chunks[i] = types.Chunk{Type: types.ChunkFullFile, Name: path, Content: "content of " + path}
		}
		require.NoError(t, store.AddChunks(ctx, path, chunks, vectors, storage.ContentHash(path)))
	}
	add("auth.go", []float32{1, 0, 0})
	add("db.go", []float32{0, 1, 0})
	add("auth_test.go", []float32{0.9, 0.1, 0})

	emb := &mockEmbedder{vectors: map[string][]float32{
		"login":    {1, 0, 0},
		"database": {0, 1, 0},
		"nothing":  {},
	}}
	return New(registry, emb), emb, store
}

func TestSearchRanksBySimilarity(t *testing.T) {
	s, _, _ := setupSearcher(t)

	resp, err := s.Search(context.Background(), Request{RepoID: "repo", Query: "login"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 3)

	assert.Equal(t, "auth.go", resp.Results[0].Metadata.FilePath)
	assert.InDelta(t, 1.0, resp.Results[0].Relevance, 1e-6)
	assert.InDelta(t, 0.0, resp.Results[0].Distance, 1e-6)
	assert.Equal(t, "auth_test.go", resp.Results[1].Metadata.FilePath)
	assert.Equal(t, "db.go", resp.Results[2].Metadata.FilePath)
	assert.Equal(t, 3, resp.TotalResults)

	for i := 1; i < len(resp.Results); i++ {
		assert.GreaterOrEqual(t, resp.Results[i-1].Relevance, resp.Results[i].Relevance)
	}
}

func TestSearchOptions(t *testing.T) {
	s, _, _ := setupSearcher(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		req   Request
		files []string
	}{
		{
			name:  "limit",
			req:   Request{RepoID: "repo", Query: "login", Limit: 1},
			files: []string{"auth.go"},
		},
		{
			name:  "exclude files",
			req:   Request{RepoID: "repo", Query: "login", ExcludeFiles: []string{"auth.go", "auth_test.go"}},
			files: []string{"db.go"},
		},
		{
			name:  "where",
			req:   Request{RepoID: "repo", Query: "database", Where: map[string]string{"file_path": "auth.go"}},
			files: []string{"auth.go"},
		},
		{
			name:  "limit is capped",
			req:   Request{RepoID: "repo", Query: "database", Limit: 10 * MaxLimit},
			files: []string{"db.go", "auth_test.go", "auth.go"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := s.Search(ctx, tt.req)
			require.NoError(t, err)

			var files []string
			for _, r := range resp.Results {
				files = append(files, r.Metadata.FilePath)
			}
			assert.Equal(t, tt.files, files)
		})
	}
}

func TestSearchValidation(t *testing.T) {
	s, _, _ := setupSearcher(t)
	ctx := context.Background()

	_, err := s.Search(ctx, Request{Query: "login"})
	assert.Error(t, err)

	_, err = s.Search(ctx, Request{RepoID: "repo", Query: "   "})
	assert.Error(t, err)

	_, err = s.Search(ctx, Request{RepoID: "repo", Query: "login", Limit: -1})
	assert.Error(t, err)
}

func TestSearchUnknownRepository(t *testing.T) {
	s, emb, _ := setupSearcher(t)

	_, err := s.Search(context.Background(), Request{RepoID: "other", Query: "login"})
	assert.ErrorIs(t, err, storage.ErrNotIndexed)
	assert.Zero(t, emb.calls)
}

func TestSearchEmbeddingFailure(t *testing.T) {
	s, emb, _ := setupSearcher(t)
	ctx := context.Background()

	_, err := s.Search(ctx, Request{RepoID: "repo", Query: "nothing"})
	assert.ErrorIs(t, err, ErrEmbeddingFailed)

	emb.err = errors.New("quota exceeded")
	_, err = s.Search(ctx, Request{RepoID: "repo", Query: "login"})
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestSearchDimensionMismatch(t *testing.T) {
	s, emb, _ := setupSearcher(t)
	emb.vectors["wide"] = []float32{1, 0, 0, 0}

	_, err := s.Search(context.Background(), Request{RepoID: "repo", Query: "wide"})
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)
}

func TestSearchCache(t *testing.T) {
	s, emb, store := setupSearcher(t)
	ctx := context.Background()

	now := time.Now()
	s.now = func() time.Time { return now }

	req := Request{RepoID: "repo", Query: "login", UseCache: true}
	first, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Results, second.Results)
	assert.Equal(t, 1, emb.calls)

	// index changes make cached entries unreachable
	require.NoError(t, store.DeleteFile(ctx, "auth.go"))
	third, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, third.CacheHit)
	assert.Len(t, third.Results, 2)

	// entries expire
	now = now.Add(DefaultCacheTTL + time.Second)
	fourth, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, fourth.CacheHit)
}
