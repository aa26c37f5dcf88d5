// Package document implements the thread-safe document store: per-URI
// text, version, parse tree and previous tree, with byte-accurate
// incremental edit application.
//
// Grounded on the teacher's workspace document map
// (simon-lentz/yammm's lsp/workspace.go Document/DocumentSnapshot split
// between mutable state and an immutable point-in-time view), adapted
// from a single-language schema document to a parse-tree-bearing one.
package document

import (
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/tendril-lsp/tendril/position"
)

// Edit is a byte-accurate edit descriptor, mirroring tree-sitter's
// InputEdit. Row/column in StartPoint etc. are always byte columns,
// never UTF-16 columns — see package position.
type Edit struct {
	StartByte, OldEndByte, NewEndByte uint
	StartPoint, OldEndPoint, NewEndPoint position.Point
}

func (e Edit) toInputEdit() tree_sitter.InputEdit {
	return tree_sitter.InputEdit{
		StartByte:      e.StartByte,
		OldEndByte:     e.OldEndByte,
		NewEndByte:     e.NewEndByte,
		StartPoint:     tree_sitter.Point{Row: e.StartPoint.Row, Column: e.StartPoint.Column},
		OldEndPoint:    tree_sitter.Point{Row: e.OldEndPoint.Row, Column: e.OldEndPoint.Column},
		NewEndPoint:    tree_sitter.Point{Row: e.NewEndPoint.Row, Column: e.NewEndPoint.Column},
	}
}

// TokenSnapshot is the cached last-computed semantic-token result for a
// document, keyed by result id for delta requests.
type TokenSnapshot struct {
	ResultID string
	Data     []uint32 // LSP-encoded {deltaLine, deltaStart, length, type, modifiers} quintuples
}

// entry holds one document's mutable state behind its own lock, so
// concurrent mutation of distinct URIs never contends.
type entry struct {
	mu sync.RWMutex

	uri      string
	text     []byte
	version  int
	language string

	tree     *tree_sitter.Tree
	prevTree *tree_sitter.Tree

	tokens *TokenSnapshot
}

// Snapshot is an immutable, self-consistent point-in-time view of a
// document: text, version, tree and previous tree are guaranteed to come
// from the same mutation.
type Snapshot struct {
	URI      string
	Text     []byte
	Version  int
	Language string
	Tree     *tree_sitter.Tree
	PrevTree *tree_sitter.Tree
	Tokens   *TokenSnapshot
}

// Store is the concurrent URI -> document map. Readers on one URI never
// block writers on another; mutation of a single URI is exclusive.
type Store struct {
	mu   sync.RWMutex
	docs map[string]*entry
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{docs: make(map[string]*entry)}
}

func (s *Store) lookup(uri string) *entry {
	s.mu.RLock()
	e := s.docs[uri]
	s.mu.RUnlock()
	return e
}

// Insert creates (or replaces) the document at uri with the given
// initial text, version and language. Any existing tree state is
// discarded.
func (s *Store) Insert(uri string, version int, language string, text []byte) {
	e := &entry{uri: uri, text: text, version: version, language: language}
	s.mu.Lock()
	s.docs[uri] = e
	s.mu.Unlock()
}

// Get returns a self-consistent Snapshot of the document at uri, or
// (Snapshot{}, false) if it doesn't exist.
func (s *Store) Get(uri string) (Snapshot, bool) {
	e := s.lookup(uri)
	if e == nil {
		return Snapshot{}, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Snapshot{
		URI: e.uri, Text: e.text, Version: e.version, Language: e.language,
		Tree: e.tree, PrevTree: e.prevTree, Tokens: e.tokens,
	}, true
}

// UpdateText replaces the document's full text and version, clearing
// both the current and previous parse tree: a full-text replacement
// carries no relationship to the prior tree that incremental re-parsing
// could exploit.
func (s *Store) UpdateText(uri string, version int, text []byte) {
	e := s.lookup(uri)
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.text = text
	e.version = version
	e.tree = nil
	e.prevTree = nil
	e.tokens = nil
}

// GetEditedTree records a sequence of edit descriptors against the
// document's current tree (if any) without reparsing, and returns the
// edited tree for the caller to hand to an incremental parse. The
// store's own current tree is left untouched until UpdateTree commits
// the result, so readers never observe a half-applied tree.
func (s *Store) GetEditedTree(uri string, edits []Edit) *tree_sitter.Tree {
	e := s.lookup(uri)
	if e == nil {
		return nil
	}
	e.mu.RLock()
	cur := e.tree
	e.mu.RUnlock()
	if cur == nil {
		return nil
	}
	edited := cur.Copy()
	for _, ed := range edits {
		input := ed.toInputEdit()
		edited.Edit(&input)
	}
	return edited
}

// UpdateTree commits a freshly (re)parsed tree, moving the previous
// current tree into PrevTree for change-range comparison.
func (s *Store) UpdateTree(uri string, text []byte, version int, newTree *tree_sitter.Tree) {
	e := s.lookup(uri)
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prevTree = e.tree
	e.tree = newTree
	e.text = text
	e.version = version
}

// UpdateSemanticTokens replaces the cached token snapshot for uri.
func (s *Store) UpdateSemanticTokens(uri string, snap *TokenSnapshot) {
	e := s.lookup(uri)
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tokens = snap
}

// Remove deletes the document at uri.
func (s *Store) Remove(uri string) {
	s.mu.Lock()
	delete(s.docs, uri)
	s.mu.Unlock()
}

// URIs returns every currently-open document URI.
func (s *Store) URIs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.docs))
	for uri := range s.docs {
		out = append(out, uri)
	}
	return out
}
