package parser

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

const pythonQuery = `
(import_statement name: (dotted_name) @import)
(import_statement name: (aliased_import name: (dotted_name) @import))
(import_from_statement module_name: (dotted_name) @from_module name: (dotted_name) @from_name)
(function_definition name: (identifier) @function)
(class_definition name: (identifier) @type)
(call function: (_) @call)
`

const javascriptQuery = `
(import_statement source: (string) @import)
(function_declaration name: (identifier) @function)
(method_definition name: (property_identifier) @function)
(variable_declarator name: (identifier) @function value: (arrow_function))
(class_declaration name: (identifier) @type)
(call_expression function: (_) @call)
`

const typescriptQuery = `
(import_statement source: (string) @import)
(function_declaration name: (identifier) @function)
(method_definition name: (property_identifier) @function)
(variable_declarator name: (identifier) @function value: (arrow_function))
(class_declaration name: (type_identifier) @type)
(interface_declaration name: (type_identifier) @type)
(type_alias_declaration name: (type_identifier) @type)
(call_expression function: (_) @call)
`

const javaQuery = `
(import_declaration (scoped_identifier) @import)
(class_declaration name: (identifier) @type)
(interface_declaration name: (identifier) @type)
(enum_declaration name: (identifier) @type)
(method_declaration name: (identifier) @function)
(constructor_declaration name: (identifier) @function)
(method_invocation name: (identifier) @call)
`

const cQuery = `
(preproc_include path: (_) @import)
(function_definition declarator: (function_declarator declarator: (identifier) @function))
(struct_specifier name: (type_identifier) @type)
(call_expression function: (_) @call)
`

const cppQuery = `
(preproc_include path: (_) @import)
(function_definition declarator: (function_declarator declarator: (_) @function))
(class_specifier name: (type_identifier) @type)
(struct_specifier name: (type_identifier) @type)
(call_expression function: (_) @call)
`

const rustQuery = `
(use_declaration argument: (_) @import)
(function_item name: (identifier) @function)
(struct_item name: (type_identifier) @type)
(enum_item name: (type_identifier) @type)
(trait_item name: (type_identifier) @type)
(impl_item type: (type_identifier) @type)
(call_expression function: (_) @call)
`

func treeSitterStrategies() []Strategy {
	ts := func(lang string, grammar *sitter.Language, query string, exts ...string) Strategy {
		return &treeSitterStrategy{language: lang, extensions: exts, grammar: grammar, query: query}
	}
	return []Strategy{
		ts("python", python.GetLanguage(), pythonQuery, ".py"),
		ts("javascript", javascript.GetLanguage(), javascriptQuery, ".js", ".jsx", ".mjs"),
		ts("typescript", typescript.GetLanguage(), typescriptQuery, ".ts"),
		ts("typescript", tsx.GetLanguage(), typescriptQuery, ".tsx"),
		ts("java", java.GetLanguage(), javaQuery, ".java"),
		ts("c", c.GetLanguage(), cQuery, ".c", ".h"),
		ts("cpp", cpp.GetLanguage(), cppQuery, ".cpp", ".cc", ".cxx", ".hpp"),
		ts("rust", rust.GetLanguage(), rustQuery, ".rs"),
	}
}
