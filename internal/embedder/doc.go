// Package embedder generates vector embeddings for code chunks.
//
// Providers: Gemini (text-embedding-004, the default), OpenAI, Jina AI, and a
// local hashing embedder that needs no network access.
//
// # Basic Usage
//
//	pool := keypool.New(strings.Split(os.Getenv("GEMINI_API_KEYS"), ","))
//	emb, err := embedder.New(embedder.Config{Provider: "gemini"}, pool)
//	if err != nil {
//	    return err
//	}
//	defer emb.Close()
//
//	vector, err := emb.Embed(ctx, "func ParseFile(path string) error { ... }")
//
// # Rate Limiting
//
// Remote providers take a key from the shared keypool.Pool for every request.
// An HTTP 429 puts that key into cooldown and the request is repeated with
// the next key, at most MaxRateLimitRetries times. Transport errors and 5xx
// responses are retried against the same key with exponential backoff. Other
// responses fail the request.
//
// An optional client-side limit (Config.RequestsPerSecond) throttles
// requests before they are sent.
//
// # Caching
//
// Vectors are cached in an LRU keyed by the SHA-256 of the input text, so
// re-indexing unchanged chunks does not hit the API.
package embedder
