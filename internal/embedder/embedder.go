package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Common errors
var (
	ErrProviderFailed    = errors.New("embedding provider failed")
	ErrUnsupportedModel  = errors.New("unsupported model")
	ErrEmptyText         = errors.New("text cannot be empty")
	ErrNoProviderEnabled = errors.New("no embedding provider configured")
	ErrNoKeys            = errors.New("no API keys available")
	ErrRateLimited       = errors.New("rate limited")
)

// Embedder turns text into a vector
type Embedder interface {
	// Embed returns the embedding of text. Any error, or an empty vector,
	// means the text could not be embedded.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the embedding dimension for this provider
	Dimension() int

	// Provider returns the provider name
	Provider() string

	// Model returns the model name
	Model() string

	// Close releases any resources held by the embedder
	Close() error
}

// Cache provides in-memory LRU caching of embeddings by content hash
type Cache struct {
	cache *lru.Cache[string, []float32]
}

// NewCache creates a new embedding cache with LRU eviction
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = 10000
	}
	cache, err := lru.New[string, []float32](maxLen)
	if err != nil {
		cache, _ = lru.New[string, []float32](10000)
	}
	return &Cache{cache: cache}
}

// Get returns a copy of the cached vector so callers cannot mutate the cache
func (c *Cache) Get(hash string) ([]float32, bool) {
	v, ok := c.cache.Get(hash)
	if !ok {
		return nil, false
	}
	return append([]float32(nil), v...), true
}

// Set stores a copy of vector
func (c *Cache) Set(hash string, vector []float32) {
	c.cache.Add(hash, append([]float32(nil), vector...))
}

// Size returns the current cache size
func (c *Cache) Size() int {
	return c.cache.Len()
}

// Clear empties the cache
func (c *Cache) Clear() {
	c.cache.Purge()
}

// ComputeHash computes SHA-256 hash of text for caching
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// NormalizeVector normalizes a vector to unit length
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}

	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}
	return result
}
