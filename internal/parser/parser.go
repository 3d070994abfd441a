package parser

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/dshills/repoindex/pkg/types"
)

// Summary limits
const (
	maxSummaryImports   = 10
	maxSummaryTypes     = 10
	maxSummaryFunctions = 15
	maxSummaryCalls     = 15
)

// Parser extracts structural symbols from source files of any registered language
type Parser struct {
	registry *Registry
}

// New creates a Parser over the built-in languages
func New() *Parser {
	return NewWithRegistry(DefaultRegistry())
}

// NewWithRegistry creates a Parser over a custom registry
func NewWithRegistry(r *Registry) *Parser {
	return &Parser{registry: r}
}

// Supports reports whether path has a registered language
func (p *Parser) Supports(path string) bool {
	_, ok := p.registry.Lookup(path)
	return ok
}

// Language returns the language of path, or types.LanguageUnknown
func (p *Parser) Language(path string) string {
	s, ok := p.registry.Lookup(path)
	if !ok {
		return types.LanguageUnknown
	}
	return s.Language()
}

// Extract returns the symbols of text. Parse errors are non-fatal: whatever
// could be extracted is returned.
func (p *Parser) Extract(text, path string) types.Symbols {
	s, ok := p.registry.Lookup(path)
	if !ok {
		return types.Symbols{Language: types.LanguageUnknown}
	}

	syms, err := s.Extract([]byte(text))
	if err != nil {
		log.WithError(err).WithField("path", path).Debug("symbol extraction incomplete")
	}
	syms.Language = s.Language()
	return syms
}

// Summarize renders a compact multi-line description of the file's structure
func (p *Parser) Summarize(text, path string) string {
	return Summary(p.Extract(text, path))
}

// Summary renders syms the way Summarize does
func Summary(syms types.Symbols) string {
	lines := []string{"Language: " + syms.Language}

	if len(syms.Imports) > 0 {
		lines = append(lines, "Imports: "+joinFirst(syms.Imports, maxSummaryImports))
	}
	if len(syms.FromImports) > 0 {
		lines = append(lines, "From Imports: "+joinFirst(syms.FromImports, maxSummaryImports))
	}
	if len(syms.Types) > 0 {
		lines = append(lines, "Classes/Types: "+joinFirst(syms.Types, maxSummaryTypes))
	}
	if len(syms.Functions) > 0 {
		lines = append(lines, "Functions: "+joinFirst(syms.Functions, maxSummaryFunctions))
	}
	if len(syms.Calls) > 0 {
		lines = append(lines, "Calls: "+joinFirst(unique(syms.Calls), maxSummaryCalls))
	}

	return strings.Join(lines, "\n")
}

func joinFirst(items []string, n int) string {
	if len(items) > n {
		items = items[:n]
	}
	return strings.Join(items, ", ")
}

// unique keeps the first occurrence of each item
func unique(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if !seen[it] {
			seen[it] = true
			out = append(out, it)
		}
	}
	return out
}
