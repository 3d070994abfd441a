package searcher

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/repoindex/internal/embedder"
	"github.com/dshills/repoindex/internal/storage"
	"github.com/dshills/repoindex/pkg/types"
)

const (
	DefaultLimit    = 5
	MaxLimit        = 100
	DefaultCacheTTL = 5 * time.Minute
	cacheSize       = 1000
)

// ErrEmbeddingFailed is returned when the query text could not be embedded
var ErrEmbeddingFailed = errors.New("failed to embed query")

// Request contains parameters for a search operation
type Request struct {
	RepoID       string
	Query        string
	Limit        int               // default DefaultLimit, capped at MaxLimit
	ExcludeFiles []string          // files whose chunks are never returned
	Where        map[string]string // exact metadata matches
	UseCache     bool
}

// Result is one ranked chunk
type Result struct {
	types.QueryResult
	Relevance float64 `json:"relevance"`
}

// Response contains search results and metadata
type Response struct {
	Results      []Result      `json:"results"`
	TotalResults int           `json:"total_results"`
	Duration     time.Duration `json:"duration"`
	CacheHit     bool          `json:"cache_hit"`
}

// cacheEntry represents a cached search response with expiration time
type cacheEntry struct {
	response  *Response
	expiresAt time.Time
}

// Searcher answers text queries against repository indexes
type Searcher struct {
	registry *storage.Registry
	embedder embedder.Embedder
	cache    *lru.Cache[[32]byte, *cacheEntry]
	ttl      time.Duration
	now      func() time.Time
}

// New creates a new Searcher instance
func New(registry *storage.Registry, emb embedder.Embedder) *Searcher {
	cache, err := lru.New[[32]byte, *cacheEntry](cacheSize)
	if err != nil {
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}

	return &Searcher{
		registry: registry,
		embedder: emb,
		cache:    cache,
		ttl:      DefaultCacheTTL,
		now:      time.Now,
	}
}

// Search embeds the query and returns the most similar chunks of the repository
func (s *Searcher) Search(ctx context.Context, req Request) (*Response, error) {
	start := s.now()

	if s.embedder == nil {
		return nil, fmt.Errorf("embedder not initialized")
	}
	if err := validateRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid search request: %w", err)
	}

	store, err := s.registry.OpenExisting(ctx, req.RepoID)
	if err != nil {
		return nil, err
	}

	key := cacheKey(req, store.Generation())
	if req.UseCache {
		if cached, ok := s.checkCache(key); ok {
			resp := *cached
			resp.CacheHit = true
			resp.Duration = s.now().Sub(start)
			return &resp, nil
		}
	}

	vector, err := s.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(vector) == 0 {
		return nil, ErrEmbeddingFailed
	}

	hits, err := store.Query(vector, req.Limit, storage.QueryOptions{
		Where:        req.Where,
		ExcludeFiles: req.ExcludeFiles,
	})
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = Result{QueryResult: h, Relevance: h.Relevance()}
	}

	resp := &Response{
		Results:      results,
		TotalResults: len(results),
		Duration:     s.now().Sub(start),
	}
	if req.UseCache && len(results) > 0 {
		s.cache.Add(key, &cacheEntry{response: resp, expiresAt: s.now().Add(s.ttl)})
	}
	return resp, nil
}

func (s *Searcher) checkCache(key [32]byte) (*Response, bool) {
	entry, ok := s.cache.Get(key)
	if !ok {
		return nil, false
	}
	if s.now().After(entry.expiresAt) {
		s.cache.Remove(key)
		return nil, false
	}
	return entry.response, true
}

func validateRequest(req *Request) error {
	if req.RepoID == "" {
		return errors.New("repository is required")
	}
	if strings.TrimSpace(req.Query) == "" {
		return errors.New("query cannot be empty")
	}
	if req.Limit < 0 {
		return fmt.Errorf("limit must be positive, got %d", req.Limit)
	}
	if req.Limit == 0 {
		req.Limit = DefaultLimit
	}
	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}
	return nil
}

// cacheKey hashes every request field that affects the result, plus the
// index generation so a changed index never serves stale hits
func cacheKey(req Request, generation uint64) [32]byte {
	h := sha256.New()
	write := func(s string) {
		_ = binary.Write(h, binary.LittleEndian, uint32(len(s)))
		h.Write([]byte(s))
	}

	write(req.RepoID)
	write(req.Query)
	_ = binary.Write(h, binary.LittleEndian, uint64(req.Limit))
	_ = binary.Write(h, binary.LittleEndian, generation)

	excluded := append([]string(nil), req.ExcludeFiles...)
	sort.Strings(excluded)
	_ = binary.Write(h, binary.LittleEndian, uint32(len(excluded)))
	for _, f := range excluded {
		write(f)
	}

	fields := make([]string, 0, len(req.Where))
	for k := range req.Where {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	_ = binary.Write(h, binary.LittleEndian, uint32(len(fields)))
	for _, k := range fields {
		write(k)
		write(req.Where[k])
	}

	var key [32]byte
	copy(key[:], h.Sum(nil))
	return key
}
