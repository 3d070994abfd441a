// Package config loads runtime configuration from an optional YAML file, an
// optional .env file and the environment, in increasing order of precedence.
// It is imported by cmd/repoindex only; other packages receive plain values.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/dshills/repoindex/internal/embedder"
	"github.com/dshills/repoindex/internal/keypool"
	"github.com/dshills/repoindex/internal/source"
)

// DefaultDataDir holds one directory per repository index
const DefaultDataDir = "~/.repoindex/indices"

// Config holds every runtime option
type Config struct {
	DataDir  string `yaml:"data_dir"`
	LogLevel string `yaml:"log_level"`

	Embedding EmbeddingConfig `yaml:"embedding"`
	Source    SourceConfig    `yaml:"source"`
	Indexer   IndexerConfig   `yaml:"indexer"`
}

// EmbeddingConfig selects the embedding provider and its credentials
type EmbeddingConfig struct {
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url"`
	Dimension         int           `yaml:"dimension"`
	Keys              []string      `yaml:"keys"`
	Cooldown          time.Duration `yaml:"cooldown"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	CacheSize         int           `yaml:"cache_size"`
}

// SourceConfig selects where repository content is read from
type SourceConfig struct {
	Kind          string        `yaml:"kind"`
	LocalRoot     string        `yaml:"local_root"`
	GitHubBaseURL string        `yaml:"github_base_url"`
	GitHubTokens  []string      `yaml:"github_tokens"`
	Ref           string        `yaml:"ref"`
	Timeout       time.Duration `yaml:"timeout"`
}

// IndexerConfig tunes crawling
type IndexerConfig struct {
	MaxFileSize int64         `yaml:"max_file_size"`
	Workers     int           `yaml:"workers"`
	Prune       bool          `yaml:"prune"`
	SkipDirs    []string      `yaml:"skip_dirs"`
	Extensions  []string      `yaml:"extensions"`
	Debounce    time.Duration `yaml:"debounce"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		DataDir:  DefaultDataDir,
		LogLevel: "info",
		Embedding: EmbeddingConfig{
			Provider:  embedder.ProviderGemini,
			Cooldown:  keypool.DefaultCooldown,
			Timeout:   embedder.DefaultTimeout,
			CacheSize: 1000,
		},
		Source: SourceConfig{
			Kind:    source.KindLocal,
			Timeout: source.DefaultTimeout,
		},
	}
}

// Load builds the configuration. path may be empty, in which case
// REPOINDEX_CONFIG is consulted. A .env file in the working directory is
// loaded first so both the YAML file and the overrides can refer to it.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read is Load without validation, for callers that apply overrides of their
// own before calling Validate.
func Read(path string) (*Config, error) {
	// no-op if .env doesn't exist
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = os.Getenv("REPOINDEX_CONFIG")
	}
	if path != "" {
		if err := cfg.parseFile(path); err != nil {
			return nil, fmt.Errorf("failed to load config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// SetProvider switches the embedding provider. The keys are read again from
// the new provider's environment variables.
func (c *Config) SetProvider(provider string) {
	if strings.EqualFold(provider, c.Embedding.Provider) {
		return
	}
	c.Embedding.Provider = provider
	c.Embedding.Keys = splitList(envKeys(provider))
}

func (c *Config) parseFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	data = []byte(os.ExpandEnv(string(data)))

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv() {
	c.DataDir = getEnv("REPOINDEX_DATA_DIR", c.DataDir)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogLevel = getEnv("REPOINDEX_LOG_LEVEL", c.LogLevel)

	e := &c.Embedding
	e.Provider = getEnv("REPOINDEX_PROVIDER", e.Provider)
	e.Model = getEnv("REPOINDEX_MODEL", e.Model)
	e.BaseURL = getEnv("REPOINDEX_BASE_URL", e.BaseURL)
	e.Cooldown = getDuration("REPOINDEX_COOLDOWN_SEC", e.Cooldown)
	e.Timeout = getDuration("REPOINDEX_HTTP_TIMEOUT_SEC", e.Timeout)
	e.RequestsPerSecond = getFloat("REPOINDEX_RATE_LIMIT", e.RequestsPerSecond)
	e.CacheSize = getInt("REPOINDEX_CACHE_SIZE", e.CacheSize)
	if keys := splitList(envKeys(e.Provider)); len(keys) > 0 {
		e.Keys = keys
	}

	s := &c.Source
	s.Kind = getEnv("REPOINDEX_SOURCE", s.Kind)
	s.LocalRoot = getEnv("REPOINDEX_LOCAL_ROOT", s.LocalRoot)
	s.GitHubBaseURL = getEnv("GITHUB_API_URL", s.GitHubBaseURL)
	s.Ref = getEnv("REPOINDEX_REF", s.Ref)
	if tokens := splitList(getEnv("GITHUB_TOKENS", os.Getenv("GITHUB_TOKEN"))); len(tokens) > 0 {
		s.GitHubTokens = tokens
	}

	ix := &c.Indexer
	ix.Workers = getInt("REPOINDEX_WORKERS", ix.Workers)
	ix.Prune = getBool("REPOINDEX_PRUNE", ix.Prune)
}

// keysEnv names the environment variable holding the API keys of provider
func keysEnv(provider string) string {
	switch strings.ToLower(provider) {
	case embedder.ProviderOpenAI:
		return "OPENAI_API_KEYS"
	case embedder.ProviderJina:
		return "JINA_API_KEYS"
	case embedder.ProviderLocal:
		return ""
	default:
		return "GEMINI_API_KEYS"
	}
}

// envKeys reads the keys of provider, accepting the singular variable too
func envKeys(provider string) string {
	name := keysEnv(provider)
	if name == "" {
		return ""
	}
	return getEnv(name, os.Getenv(strings.TrimSuffix(name, "S")))
}

// Validate checks the configuration and expands DataDir
func (c *Config) Validate() error {
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	switch strings.ToLower(c.Embedding.Provider) {
	case embedder.ProviderGemini, embedder.ProviderOpenAI, embedder.ProviderJina, embedder.ProviderLocal:
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	if embedder.RequiresKeys(c.Embedding.Provider) && len(c.Embedding.Keys) == 0 {
		return fmt.Errorf("%w: set %s", embedder.ErrNoKeys, keysEnv(c.Embedding.Provider))
	}
	if c.Embedding.Cooldown < 0 || c.Embedding.Timeout < 0 {
		return errors.New("durations cannot be negative")
	}

	switch strings.ToLower(c.Source.Kind) {
	case source.KindLocal, source.KindGitHub:
	default:
		return fmt.Errorf("unknown source kind %q", c.Source.Kind)
	}

	if c.Indexer.Workers < 0 || c.Indexer.MaxFileSize < 0 {
		return errors.New("indexer limits cannot be negative")
	}

	dir, err := expandHome(c.DataDir)
	if err != nil {
		return err
	}
	c.DataDir = dir
	return nil
}

// EmbeddingKeys returns the pool guarding the embedding API keys
func (c *Config) EmbeddingKeys() *keypool.Pool {
	return keypool.New(c.Embedding.Keys, keypool.WithCooldown(c.Embedding.Cooldown))
}

// Embedder returns the embedder configuration
func (c *Config) Embedder() embedder.Config {
	return embedder.Config{
		Provider:          c.Embedding.Provider,
		Model:             c.Embedding.Model,
		BaseURL:           c.Embedding.BaseURL,
		Dimension:         c.Embedding.Dimension,
		Timeout:           c.Embedding.Timeout,
		RequestsPerSecond: c.Embedding.RequestsPerSecond,
		CacheSize:         c.Embedding.CacheSize,
	}
}

// SourceResolver returns the resolver for the configured source kind
func (c *Config) SourceResolver() (source.Resolver, error) {
	var tokens *keypool.Pool
	if len(c.Source.GitHubTokens) > 0 {
		tokens = keypool.New(c.Source.GitHubTokens, keypool.WithCooldown(c.Embedding.Cooldown))
	}
	return source.NewResolver(source.Config{
		Kind:          c.Source.Kind,
		LocalRoot:     c.Source.LocalRoot,
		GitHubBaseURL: c.Source.GitHubBaseURL,
		Ref:           c.Source.Ref,
		Timeout:       c.Source.Timeout,
		Tokens:        tokens,
	})
}

// ConfigureLogging sets the logrus level and sends output to stderr, leaving
// stdout to the MCP protocol
func (c *Config) ConfigureLogging() {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetOutput(os.Stderr)
	log.SetLevel(level)
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}

// getEnv returns env[key] if set, otherwise defaultVal.
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getDuration reads an integer (seconds) from env, falling back to defaultVal.
func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if sec, err := strconv.Atoi(v); err == nil {
			return time.Duration(sec) * time.Second
		}
		log.Warnf("invalid %s=%q; using default %s", key, v, defaultVal)
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Warnf("invalid %s=%q; using default %d", key, v, defaultVal)
	}
	return defaultVal
}

func getFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		log.Warnf("invalid %s=%q; using default %g", key, v, defaultVal)
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		log.Warnf("invalid %s=%q; using default %v", key, v, defaultVal)
	}
	return defaultVal
}

// splitList splits a comma-separated list, dropping blanks
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
