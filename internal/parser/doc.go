// Package parser extracts structural symbols (imports, functions, types and
// calls) from source files.
//
// Languages are pluggable: a Strategy handles one language and is registered
// under its file extensions. Go files are parsed with go/parser; Python,
// JavaScript, TypeScript (including TSX), Java, C, C++ and Rust use
// tree-sitter grammars with a capture query per language.
//
// # Basic Usage
//
//	p := parser.New()
//	if p.Supports(path) {
//	    summary := p.Summarize(content, path)
//	}
//
// A summary looks like:
//
//	Language: python
//	Imports: os, sys
//	Classes/Types: Handler
//	Functions: main, handle
//	Calls: print, Handler
//
// Extraction never fails hard. Syntax errors yield whatever symbols could be
// recovered, and unsupported files report the language "unknown".
package parser
