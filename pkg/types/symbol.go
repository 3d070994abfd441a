package types

// LanguageUnknown is reported for files no extraction strategy supports.
const LanguageUnknown = "unknown"

// Symbols is the structural summary of a single source file.
type Symbols struct {
	Language    string
	Imports     []string
	FromImports []string // "module.name", for languages that import names from a module
	Functions   []string
	Types       []string
	Calls       []string
}

// Supported returns true if a strategy produced these symbols
func (s *Symbols) Supported() bool {
	return s.Language != "" && s.Language != LanguageUnknown
}
