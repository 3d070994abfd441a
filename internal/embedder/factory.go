package embedder

import (
	"fmt"
	"strings"
	"time"

	"github.com/dshills/repoindex/internal/keypool"
)

// Config holds embedder configuration
type Config struct {
	Provider          string
	Model             string
	BaseURL           string
	Dimension         int
	Timeout           time.Duration
	RequestsPerSecond float64
	CacheSize         int
}

// New creates the embedder named by cfg.Provider. Remote providers draw their
// API keys from pool.
func New(cfg Config, pool *keypool.Pool) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	remote := RemoteConfig{
		Model:             cfg.Model,
		BaseURL:           cfg.BaseURL,
		Dimension:         cfg.Dimension,
		Timeout:           cfg.Timeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}

	switch strings.ToLower(cfg.Provider) {
	case "", ProviderGemini:
		return NewGeminiProvider(remote, pool, cache)
	case ProviderOpenAI:
		return NewOpenAIProvider(remote, pool, cache)
	case ProviderJina:
		return NewJinaProvider(remote, pool, cache)
	case ProviderLocal:
		return NewLocalProvider(cache)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// RequiresKeys reports whether provider calls a remote API
func RequiresKeys(provider string) bool {
	return strings.ToLower(provider) != ProviderLocal
}
