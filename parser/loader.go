// Package parser resolves language identifiers to tree-sitter grammar
// handles and holds the compiled query programs (highlights, locals,
// injections) associated with each language.
//
// Grounded on the bundled-grammar-import style of the pack's tree-sitter
// integration (one Go binding package per language, imported directly) plus
// a dynamic-library fallback for languages without a bundled binding.
package parser

import (
	"fmt"
	"path/filepath"
	"plugin"
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// LoadError is a typed error for a single language's grammar load failure.
// Load failures are per-language: they never poison other languages.
type LoadError struct {
	Language string
	Reason   string
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load grammar %q: %s: %v", e.Language, e.Reason, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Registration is a bundled grammar constructor, registered at init time by
// languages compiled directly into the binary (no dynamic loading needed).
type Registration func() *tree_sitter.Language

var (
	registryMu sync.RWMutex
	registry   = map[string]Registration{}
)

// Register adds a bundled language registration. Call from an init()
// function in a file that imports the language's Go tree-sitter binding.
func Register(name string, reg Registration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = reg
}

// SearchPath describes where to look for a dynamic grammar library for a
// given language, and which symbol to resolve within it.
type SearchPath struct {
	// Dir is a directory to search for "<LibraryName>.so" (or platform
	// equivalent), where LibraryName defaults to "libtree-sitter-<lang>".
	Dir string
}

// entrypointSymbol returns the well-known C entry point tree-sitter
// grammars export, e.g. "tree_sitter_lua".
func entrypointSymbol(language string) string {
	return "tree_sitter_" + sanitizeSymbol(language)
}

func sanitizeSymbol(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '-' {
			r = '_'
		}
		out = append(out, r)
	}
	return string(out)
}

// Loader resolves language names to grammar handles and caches the
// result. A single Loader is shared process-wide; it is safe for
// concurrent use.
type Loader struct {
	searchPaths []SearchPath

	mu      sync.RWMutex
	cache   map[string]*tree_sitter.Language
	failed  map[string]*LoadError
	dynOpen map[string]*plugin.Plugin // keeps dlopen'd libraries alive
}

// NewLoader creates a Loader that additionally searches the given
// directories for dynamic grammar libraries when a language has no
// bundled registration.
func NewLoader(searchPaths []SearchPath) *Loader {
	return &Loader{
		searchPaths: searchPaths,
		cache:       make(map[string]*tree_sitter.Language),
		failed:      make(map[string]*LoadError),
		dynOpen:     make(map[string]*plugin.Plugin),
	}
}

// Load resolves language to a grammar handle, consulting the cache first,
// then bundled registrations, then the configured dynamic search paths.
// A failure for one language is cached and reported on every subsequent
// call without retrying disk or the dynamic loader again; it never
// affects any other language.
func (l *Loader) Load(language string) (*tree_sitter.Language, error) {
	l.mu.RLock()
	if lang, ok := l.cache[language]; ok {
		l.mu.RUnlock()
		return lang, nil
	}
	if failErr, ok := l.failed[language]; ok {
		l.mu.RUnlock()
		return nil, failErr
	}
	l.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()

	// Re-check after acquiring the write lock in case another goroutine
	// raced us to load the same language.
	if lang, ok := l.cache[language]; ok {
		return lang, nil
	}
	if failErr, ok := l.failed[language]; ok {
		return nil, failErr
	}

	lang, err := l.load(language)
	if err != nil {
		loadErr, ok := err.(*LoadError)
		if !ok {
			loadErr = &LoadError{Language: language, Reason: "load", Err: err}
		}
		l.failed[language] = loadErr
		return nil, loadErr
	}
	l.cache[language] = lang
	return lang, nil
}

func (l *Loader) load(language string) (*tree_sitter.Language, error) {
	registryMu.RLock()
	reg, ok := registry[language]
	registryMu.RUnlock()
	if ok {
		return reg(), nil
	}
	return l.loadDynamic(language)
}

func (l *Loader) loadDynamic(language string) (*tree_sitter.Language, error) {
	if len(l.searchPaths) == 0 {
		return nil, &LoadError{Language: language, Reason: "no bundled registration and no search paths configured",
			Err: fmt.Errorf("unknown language %q", language)}
	}

	symbol := entrypointSymbol(language)
	var lastErr error
	for _, sp := range l.searchPaths {
		libPath := filepath.Join(sp.Dir, "libtree-sitter-"+language+".so")
		p, err := plugin.Open(libPath)
		if err != nil {
			lastErr = err
			continue
		}
		sym, err := p.Lookup(symbol)
		if err != nil {
			lastErr = &LoadError{Language: language, Reason: "missing symbol " + symbol, Err: err}
			continue
		}
		ctor, ok := sym.(func() *tree_sitter.Language)
		if !ok {
			lastErr = &LoadError{Language: language, Reason: "symbol has unexpected type", Err: fmt.Errorf("%s", symbol)}
			continue
		}
		l.dynOpen[language] = p
		return ctor(), nil
	}
	return nil, &LoadError{Language: language, Reason: "dynamic library lookup failed", Err: lastErr}
}

// Evict drops a cached grammar handle (and any remembered failure) for
// language, forcing the next Load to retry from scratch. Used on
// configuration reload.
func (l *Loader) Evict(language string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.cache, language)
	delete(l.failed, language)
}

// Available reports whether language currently has a usable grammar
// handle (either cached already or resolvable via Load).
func (l *Loader) Available(language string) bool {
	_, err := l.Load(language)
	return err == nil
}
