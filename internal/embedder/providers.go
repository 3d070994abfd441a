package embedder

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/dshills/repoindex/internal/keypool"
)

// Provider configuration
const (
	ProviderGemini = "gemini"
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"

	// Default models
	DefaultGeminiModel = "text-embedding-004"
	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-small"

	// Default endpoints
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultJinaBaseURL   = "https://api.jina.ai/v1"
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"

	// Dimensions
	GeminiDimension = 768
	JinaDimension   = 1024
	OpenAIDimension = 1536
	LocalDimension  = 384

	// DefaultTimeout bounds every upstream call
	DefaultTimeout = 30 * time.Second

	// MaxRateLimitRetries bounds how many times a rate-limited request is
	// retried with another key
	MaxRateLimitRetries = 3

	// Retry configuration for transient failures
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0
)

// RemoteConfig configures an HTTP embedding provider
type RemoteConfig struct {
	Model     string
	BaseURL   string
	Dimension int
	Timeout   time.Duration

	// RequestsPerSecond throttles outgoing calls; zero disables throttling
	RequestsPerSecond float64

	Retry RetryConfig
}

// endpoint is the wire format of one embedding API
type endpoint interface {
	newRequest(ctx context.Context, baseURL, model, key, text string) (*http.Request, error)
	decode(body io.Reader) ([]float32, error)
}

// RemoteProvider implements Embedder over an HTTP API. Each request takes a
// key from the pool; a 429 puts that key into cooldown and the request is
// retried with the next key.
type RemoteProvider struct {
	name       string
	model      string
	baseURL    string
	dimension  int
	api        endpoint
	pool       *keypool.Pool
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      RetryConfig
	cache      *Cache
}

func newRemoteProvider(name string, api endpoint, defaults RemoteConfig, cfg RemoteConfig, pool *keypool.Pool, cache *Cache) (*RemoteProvider, error) {
	if pool == nil || pool.Len() == 0 {
		return nil, fmt.Errorf("%w: %s requires at least one API key", ErrNoProviderEnabled, name)
	}

	p := &RemoteProvider{
		name:      name,
		model:     firstNonEmpty(cfg.Model, defaults.Model),
		baseURL:   strings.TrimRight(firstNonEmpty(cfg.BaseURL, defaults.BaseURL), "/"),
		dimension: defaults.Dimension,
		api:       api,
		pool:      pool,
		retry:     cfg.Retry,
		cache:     cache,
	}
	if cfg.Dimension > 0 {
		p.dimension = cfg.Dimension
	}
	if p.retry.MaxRetries <= 0 {
		p.retry = DefaultRetryConfig()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	p.httpClient = &http.Client{Timeout: timeout}

	if cfg.RequestsPerSecond > 0 {
		burst := max(1, int(cfg.RequestsPerSecond))
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return p, nil
}

// NewGeminiProvider creates an embedder for the Gemini embedContent API
func NewGeminiProvider(cfg RemoteConfig, pool *keypool.Pool, cache *Cache) (*RemoteProvider, error) {
	return newRemoteProvider(ProviderGemini, geminiAPI{}, RemoteConfig{
		Model:     DefaultGeminiModel,
		BaseURL:   DefaultGeminiBaseURL,
		Dimension: GeminiDimension,
	}, cfg, pool, cache)
}

// NewOpenAIProvider creates an embedder for the OpenAI embeddings API
func NewOpenAIProvider(cfg RemoteConfig, pool *keypool.Pool, cache *Cache) (*RemoteProvider, error) {
	return newRemoteProvider(ProviderOpenAI, openAIAPI{}, RemoteConfig{
		Model:     DefaultOpenAIModel,
		BaseURL:   DefaultOpenAIBaseURL,
		Dimension: OpenAIDimension,
	}, cfg, pool, cache)
}

// NewJinaProvider creates an embedder for the Jina AI embeddings API, which
// speaks the OpenAI wire format
func NewJinaProvider(cfg RemoteConfig, pool *keypool.Pool, cache *Cache) (*RemoteProvider, error) {
	return newRemoteProvider(ProviderJina, openAIAPI{}, RemoteConfig{
		Model:     DefaultJinaModel,
		BaseURL:   DefaultJinaBaseURL,
		Dimension: JinaDimension,
	}, cfg, pool, cache)
}

// Embed returns the embedding of text
func (p *RemoteProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	hash := ComputeHash(text)
	if p.cache != nil {
		if v, ok := p.cache.Get(hash); ok {
			return v, nil
		}
	}

	var lastErr error
	for attempt := 0; attempt <= MaxRateLimitRetries; attempt++ {
		key, ok := p.pool.Next()
		if !ok {
			return nil, ErrNoKeys
		}

		vector, err := retryWithBackoff(ctx, p.retry, isTransient, func() ([]float32, error) {
			return p.call(ctx, key, text)
		})
		if err == nil {
			if p.cache != nil {
				p.cache.Set(hash, vector)
			}
			return vector, nil
		}

		if !errors.Is(err, ErrRateLimited) {
			return nil, fmt.Errorf("%w: %s: %v", ErrProviderFailed, p.name, err)
		}

		lastErr = err
		p.pool.ReportRateLimit(key)
		log.WithFields(log.Fields{
			"provider": p.name,
			"key":      keypool.Mask(key),
			"attempt":  attempt + 1,
		}).Debug("embedding request rate limited, rotating key")
	}

	return nil, fmt.Errorf("%w: %s: %v after %d retries", ErrProviderFailed, p.name, lastErr, MaxRateLimitRetries)
}

// call performs one HTTP request
func (p *RemoteProvider) call(ctx context.Context, key, text string) ([]float32, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := p.api.newRequest(ctx, p.baseURL, p.model, key, text)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &statusError{code: resp.StatusCode, body: string(bodyBytes)}
	}

	vector, err := p.api.decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(vector) == 0 {
		return nil, errors.New("empty embedding in response")
	}
	return vector, nil
}

func (p *RemoteProvider) Dimension() int {
	return p.dimension
}

func (p *RemoteProvider) Provider() string {
	return p.name
}

func (p *RemoteProvider) Model() string {
	return p.model
}

func (p *RemoteProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// geminiAPI speaks models/{model}:embedContent with the key in the query string
type geminiAPI struct{}

func (geminiAPI) newRequest(ctx context.Context, baseURL, model, key, text string) (*http.Request, error) {
	reqBody := map[string]interface{}{
		"content": map[string]interface{}{
			"parts": []map[string]string{{"text": text}},
		},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:embedContent?key=%s", baseURL, url.PathEscape(model), url.QueryEscape(key))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (geminiAPI) decode(body io.Reader) ([]float32, error) {
	var apiResp struct {
		Embedding struct {
			Values []float32 `json:"values"`
		} `json:"embedding"`
	}
	if err := json.NewDecoder(body).Decode(&apiResp); err != nil {
		return nil, err
	}
	return apiResp.Embedding.Values, nil
}

// openAIAPI speaks POST /embeddings with bearer auth
type openAIAPI struct{}

func (openAIAPI) newRequest(ctx context.Context, baseURL, model, key, text string) (*http.Request, error) {
	body, err := json.Marshal(map[string]interface{}{
		"input": []string{text},
		"model": model,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)
	return req, nil
}

func (openAIAPI) decode(body io.Reader) ([]float32, error) {
	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.NewDecoder(body).Decode(&apiResp); err != nil {
		return nil, err
	}
	if len(apiResp.Data) == 0 {
		return nil, nil
	}
	return apiResp.Data[0].Embedding, nil
}

// LocalProvider produces deterministic hashed bag-of-words embeddings. It needs
// no network access and is meant for offline use and tests: texts sharing
// tokens get similar vectors.
type LocalProvider struct {
	model     string
	dimension int
	cache     *Cache
}

// NewLocalProvider creates a new local embedder
func NewLocalProvider(cache *Cache) (*LocalProvider, error) {
	return &LocalProvider{
		model:     "local-hashing",
		dimension: LocalDimension,
		cache:     cache,
	}, nil
}

func (l *LocalProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hash := ComputeHash(text)
	if l.cache != nil {
		if v, ok := l.cache.Get(hash); ok {
			return v, nil
		}
	}

	vector := make([]float32, l.dimension)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	for _, tok := range tokens {
		sum := sha256.Sum256([]byte(tok))
		bucket := binary.LittleEndian.Uint32(sum[:4]) % uint32(l.dimension)
		sign := float32(1)
		if sum[4]&1 == 1 {
			sign = -1
		}
		vector[bucket] += sign
	}
	if len(tokens) == 0 {
		// Punctuation-only text still gets a stable non-zero vector.
		sum := sha256.Sum256([]byte(text))
		vector[binary.LittleEndian.Uint32(sum[:4])%uint32(l.dimension)] = 1
	}
	vector = NormalizeVector(vector)

	if l.cache != nil {
		l.cache.Set(hash, vector)
	}
	return vector, nil
}

func (l *LocalProvider) Dimension() int {
	return l.dimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return l.model
}

func (l *LocalProvider) Close() error {
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
