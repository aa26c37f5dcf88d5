package parser

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_json "github.com/tree-sitter/tree-sitter-json/bindings/go"
	tree_sitter_markdown "github.com/tree-sitter/tree-sitter-markdown/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"

	tree_sitter_lua "github.com/tree-sitter-grammars/tree-sitter-lua/bindings/go"
	tree_sitter_yaml "github.com/tree-sitter-grammars/tree-sitter-yaml/bindings/go"
)

// init registers the grammars compiled directly into this binary. These
// cover the languages the bridge's bundled query sets target out of the
// box; anything else falls back to the dynamic loader's search paths.
func init() {
	Register("lua", func() *tree_sitter.Language {
		return tree_sitter.NewLanguage(tree_sitter_lua.Language())
	})
	Register("yaml", func() *tree_sitter.Language {
		return tree_sitter.NewLanguage(tree_sitter_yaml.Language())
	})
	Register("go", func() *tree_sitter.Language {
		return tree_sitter.NewLanguage(tree_sitter_go.Language())
	})
	Register("json", func() *tree_sitter.Language {
		return tree_sitter.NewLanguage(tree_sitter_json.Language())
	})
	Register("markdown", func() *tree_sitter.Language {
		return tree_sitter.NewLanguage(tree_sitter_markdown.Language())
	})
	Register("rust", func() *tree_sitter.Language {
		return tree_sitter.NewLanguage(tree_sitter_rust.Language())
	})
}
