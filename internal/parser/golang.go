package parser

import (
	"go/ast"
	goparser "go/parser"
	"go/token"
	gotypes "go/types"
	"strconv"

	"github.com/dshills/repoindex/pkg/types"
)

// goStrategy extracts Go symbols with the standard library parser
type goStrategy struct{}

func (goStrategy) Language() string     { return "go" }
func (goStrategy) Extensions() []string { return []string{".go"} }

// Extract parses src and walks whatever AST the parser produced, even on
// syntax errors.
func (goStrategy) Extract(src []byte) (types.Symbols, error) {
	fset := token.NewFileSet()
	file, err := goparser.ParseFile(fset, "", src, goparser.SkipObjectResolution)

	var syms types.Symbols
	if file == nil {
		return syms, err
	}

	for _, imp := range file.Imports {
		if path, uerr := strconv.Unquote(imp.Path.Value); uerr == nil {
			syms.Imports = append(syms.Imports, path)
		}
	}

	ast.Inspect(file, func(node ast.Node) bool {
		switch n := node.(type) {
		case *ast.FuncDecl:
			syms.Functions = append(syms.Functions, n.Name.Name)
		case *ast.TypeSpec:
			syms.Types = append(syms.Types, n.Name.Name)
		case *ast.CallExpr:
			syms.Calls = append(syms.Calls, gotypes.ExprString(n.Fun))
		}
		return true
	})

	return syms, err
}
