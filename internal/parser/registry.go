package parser

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dshills/repoindex/pkg/types"
)

// Strategy extracts symbols for one language
type Strategy interface {
	Language() string
	Extensions() []string // with leading dot
	Extract(src []byte) (types.Symbols, error)
}

// Registry maps file extensions to strategies
type Registry struct {
	mu    sync.RWMutex
	byExt map[string]Strategy
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{byExt: make(map[string]Strategy)}
}

// Register adds s under each of its extensions, replacing earlier entries
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range s.Extensions() {
		r.byExt[strings.ToLower(ext)] = s
	}
}

// Lookup returns the strategy for path based on its extension
func (r *Registry) Lookup(path string) (Strategy, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byExt[ext]
	return s, ok
}

// Extensions returns every registered extension, sorted
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// DefaultRegistry returns a registry with every built-in language
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&goStrategy{})
	for _, s := range treeSitterStrategies() {
		r.Register(s)
	}
	return r
}
