// Package parserpool provides two pooling strategies tree-sitter parsing
// needs: a per-document pool of reusable parsers bound to a language
// (not shared across goroutines), and a shared, bounded concurrent pool
// that caps how many injection regions may be parsed/queried at once.
//
// Grounded on the channel-backed pool in the pack's tree-sitter
// integration (other_examples' crush treesitter parser), generalized
// from a single global pool into the spec's two-tier design.
package parserpool

import (
	"context"
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/tendril-lsp/tendril/parser"
)

// DocumentPool caches one *tree_sitter.Parser per language for a single
// document. It is not safe for concurrent use: callers acquire and
// release within the single goroutine handling that document's
// analyses.
type DocumentPool struct {
	loader *parser.Loader
	idle   map[string][]*tree_sitter.Parser
}

// NewDocumentPool creates an empty per-document parser pool backed by
// loader for resolving grammar handles.
func NewDocumentPool(loader *parser.Loader) *DocumentPool {
	return &DocumentPool{loader: loader, idle: make(map[string][]*tree_sitter.Parser)}
}

// Acquire returns a parser bound to lang's grammar, reusing an idle one
// if available or constructing a fresh one otherwise.
func (p *DocumentPool) Acquire(lang string) (*tree_sitter.Parser, error) {
	if stack := p.idle[lang]; len(stack) > 0 {
		ps := stack[len(stack)-1]
		p.idle[lang] = stack[:len(stack)-1]
		return ps, nil
	}
	grammar, err := p.loader.Load(lang)
	if err != nil {
		return nil, err
	}
	ps := tree_sitter.NewParser()
	if err := ps.SetLanguage(grammar); err != nil {
		ps.Close()
		return nil, err
	}
	return ps, nil
}

// Release returns a parser to the pool for reuse.
func (p *DocumentPool) Release(lang string, ps *tree_sitter.Parser) {
	if ps == nil {
		return
	}
	p.idle[lang] = append(p.idle[lang], ps)
}

// Close releases every idle parser. Call when the owning document is
// closed.
func (p *DocumentPool) Close() {
	for lang, stack := range p.idle {
		for _, ps := range stack {
			ps.Close()
		}
		delete(p.idle, lang)
	}
}

// DefaultConcurrency is the default maximum number of injection regions
// processed in parallel, per spec.md's backpressure knob.
const DefaultConcurrency = 10

// ConcurrentPool bounds how many injection-processing goroutines may run
// at once, shared across all documents. It is safe for concurrent use.
type ConcurrentPool struct {
	sem chan struct{}
}

// NewConcurrentPool creates a ConcurrentPool admitting at most max
// concurrent holders. max <= 0 falls back to DefaultConcurrency.
func NewConcurrentPool(max int) *ConcurrentPool {
	if max <= 0 {
		max = DefaultConcurrency
	}
	return &ConcurrentPool{sem: make(chan struct{}, max)}
}

// Acquire blocks until a slot is available or ctx is done.
func (p *ConcurrentPool) Acquire(ctx context.Context) bool {
	select {
	case p.sem <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

// Release frees a slot acquired via Acquire.
func (p *ConcurrentPool) Release() {
	select {
	case <-p.sem:
	default:
	}
}

// Capacity returns the configured maximum concurrency.
func (p *ConcurrentPool) Capacity() int { return cap(p.sem) }

// runGroup is a small helper used by the semantic token engine and other
// injection fan-out sites to run a bounded set of tasks concurrently and
// wait for them without importing golang.org/x/sync/errgroup,
// which the pack does not use anywhere in this domain.
type runGroup struct {
	pool *ConcurrentPool
	wg   sync.WaitGroup
}

// NewRunGroup returns a helper for fanning work out through pool.
func NewRunGroup(pool *ConcurrentPool) *runGroup {
	return &runGroup{pool: pool}
}

// Go runs fn under the pool's concurrency limit. If ctx is done before a
// slot becomes available, fn does not run.
func (g *runGroup) Go(ctx context.Context, fn func()) {
	if !g.pool.Acquire(ctx) {
		return
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer g.pool.Release()
		fn()
	}()
}

// Wait blocks until every Go'd task has returned.
func (g *runGroup) Wait() { g.wg.Wait() }
