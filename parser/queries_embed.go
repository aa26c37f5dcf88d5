package parser

import (
	"embed"
	"fmt"
)

// builtinQueries embeds the highlight/locals/injections query files
// shipped for the bundled grammars, following the one-directory-per-
// language convention the tree-sitter query ecosystem (nvim-treesitter,
// helix) uses for its own queries/<lang>/*.scm trees.
//
//go:embed queries
var builtinQueries embed.FS

var builtinLanguages = []string{"json", "yaml", "lua", "go", "markdown", "rust"}

// LoadBuiltins compiles every embedded query file into store, resolving
// each language's grammar through loader first. A language whose
// grammar fails to load is skipped with its error returned alongside
// the others; one language's failure never blocks the rest.
func LoadBuiltins(store *Store, loader *Loader) []error {
	var errs []error
	for _, lang := range builtinLanguages {
		grammar, err := loader.Load(lang)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for family, filename := range map[QueryFamily]string{
			Highlights: "highlights.scm",
			Locals:     "locals.scm",
			Injections: "injections.scm",
		} {
			data, err := builtinQueries.ReadFile(fmt.Sprintf("queries/%s/%s", lang, filename))
			if err != nil {
				continue // not every language defines every family
			}
			if err := store.Compile(grammar, lang, family, string(data)); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errs
}
