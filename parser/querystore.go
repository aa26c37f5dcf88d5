package parser

import (
	"fmt"
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// QueryFamily names one of the three query kinds a language may define.
type QueryFamily int

const (
	Highlights QueryFamily = iota
	Locals
	Injections
)

func (f QueryFamily) String() string {
	switch f {
	case Highlights:
		return "highlights"
	case Locals:
		return "locals"
	case Injections:
		return "injections"
	default:
		return "unknown"
	}
}

// QuerySet holds the compiled query programs for one language.
type QuerySet struct {
	Highlights *tree_sitter.Query
	Locals     *tree_sitter.Query
	Injections *tree_sitter.Query

	// InjectionPredicates holds the #eq?/#match?/#offset! directives
	// parsed from the injections query source, since tree-sitter's
	// compiled Query does not expose predicate text back to callers.
	InjectionPredicates *PatternPredicates
}

func (qs *QuerySet) get(f QueryFamily) *tree_sitter.Query {
	if qs == nil {
		return nil
	}
	switch f {
	case Highlights:
		return qs.Highlights
	case Locals:
		return qs.Locals
	case Injections:
		return qs.Injections
	default:
		return nil
	}
}

// Store holds per-language compiled query programs behind a read-mostly
// lock: lookups (the hot path, one per request) take the read lock;
// configuration reload and eviction take the write lock.
type Store struct {
	mu   sync.RWMutex
	sets map[string]*QuerySet
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{sets: make(map[string]*QuerySet)}
}

// Compile compiles source into a tree-sitter Query bound to lang and
// stores it under the given family, replacing any existing query for
// that (language, family) pair atomically.
func (s *Store) Compile(lang *tree_sitter.Language, language string, family QueryFamily, source string) error {
	if source == "" {
		s.clear(language, family)
		return nil
	}
	q, qerr := tree_sitter.NewQuery(lang, source)
	if qerr != nil {
		return fmt.Errorf("compile %s query for %q: %w", family, language, qerr)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[language]
	if !ok {
		set = &QuerySet{}
		s.sets[language] = set
	}
	switch family {
	case Highlights:
		set.Highlights = q
	case Locals:
		set.Locals = q
	case Injections:
		set.Injections = q
		set.InjectionPredicates = ExtractPredicates(source)
	}
	return nil
}

func (s *Store) clear(language string, family QueryFamily) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[language]
	if !ok {
		return
	}
	switch family {
	case Highlights:
		set.Highlights = nil
	case Locals:
		set.Locals = nil
	case Injections:
		set.Injections = nil
		set.InjectionPredicates = nil
	}
}

// Predicates returns the injection-query predicate directives compiled
// for language, or nil if no injections query is set.
func (s *Store) Predicates(language string) *PatternPredicates {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.sets[language]
	if !ok {
		return nil
	}
	return set.InjectionPredicates
}

// Get returns the query for (language, family), or nil if none is
// compiled.
func (s *Store) Get(language string, family QueryFamily) *tree_sitter.Query {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sets[language].get(family)
}

// Set returns the full QuerySet for language, or nil.
func (s *Store) Set(language string) *QuerySet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sets[language]
}

// Evict removes every compiled query for language. Used when a
// language's grammar or query files are reloaded or become unavailable.
func (s *Store) Evict(language string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sets, language)
}

// Languages returns the set of languages with at least one compiled
// query, for diagnostics and capability-refresh bookkeeping.
func (s *Store) Languages() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.sets))
	for lang := range s.sets {
		out = append(out, lang)
	}
	return out
}
