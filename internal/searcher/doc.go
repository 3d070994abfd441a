// Package searcher answers natural-language queries against a repository index.
//
// # Basic Usage
//
//	s := searcher.New(registry, emb)
//
//	resp, err := s.Search(ctx, searcher.Request{
//	    RepoID:       "acme/widgets",
//	    Query:        "where are webhook signatures verified",
//	    Limit:        5,
//	    ExcludeFiles: []string{"internal/webhook/handler.go"},
//	})
//
//	for _, r := range resp.Results {
//	    fmt.Printf("%s (relevance %.2f)\n", r.Metadata.Name, r.Relevance)
//	}
//
// The query is embedded with the same embedder used for indexing and ranked
// by exact cosine similarity over every chunk of the repository. ExcludeFiles
// is typically the set of files already being looked at, so the results are
// related code rather than the code itself.
//
// # Caching
//
// With Request.UseCache, responses are kept in an LRU cache for
// DefaultCacheTTL. The cache key includes the index generation, so any
// change to the index makes earlier entries unreachable.
package searcher
