package parser

import (
	"context"
	"fmt"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/dshills/repoindex/pkg/types"
)

// Capture names understood by treeSitterStrategy queries.
const (
	captureImport     = "import"
	captureFromModule = "from_module"
	captureFromName   = "from_name"
	captureFunction   = "function"
	captureType       = "type"
	captureCall       = "call"
)

// treeSitterStrategy extracts symbols by running a capture query over a
// tree-sitter parse tree.
type treeSitterStrategy struct {
	language   string
	extensions []string
	grammar    *sitter.Language
	query      string

	once sync.Once
	q    *sitter.Query
	qErr error
}

func (s *treeSitterStrategy) Language() string     { return s.language }
func (s *treeSitterStrategy) Extensions() []string { return s.extensions }

func (s *treeSitterStrategy) compiled() (*sitter.Query, error) {
	s.once.Do(func() {
		s.q, s.qErr = sitter.NewQuery([]byte(s.query), s.grammar)
		if s.qErr != nil {
			s.qErr = fmt.Errorf("compile %s query: %w", s.language, s.qErr)
		}
	})
	return s.q, s.qErr
}

// Extract parses src and collects captures in document order
func (s *treeSitterStrategy) Extract(src []byte) (types.Symbols, error) {
	var syms types.Symbols

	q, err := s.compiled()
	if err != nil {
		return syms, err
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(s.grammar)

	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return syms, fmt.Errorf("parse %s: %w", s.language, err)
	}
	defer tree.Close()

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(q, tree.RootNode())

	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}

		var fromModule, fromName string
		for _, c := range m.Captures {
			text := c.Node.Content(src)
			switch q.CaptureNameForId(c.Index) {
			case captureImport:
				syms.Imports = append(syms.Imports, trimQuotes(text))
			case captureFromModule:
				fromModule = text
			case captureFromName:
				fromName = text
			case captureFunction:
				syms.Functions = append(syms.Functions, text)
			case captureType:
				syms.Types = append(syms.Types, text)
			case captureCall:
				syms.Calls = append(syms.Calls, text)
			}
		}
		if fromModule != "" && fromName != "" {
			syms.FromImports = append(syms.FromImports, fromModule+"."+fromName)
		}
	}

	return syms, nil
}

func trimQuotes(s string) string {
	return strings.Trim(s, "'\"`<>")
}
