package local

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/tendril-lsp/tendril/position"
)

// Scope kinds recognized in a locals query, mirroring the conventional
// capture names tree-sitter's locals.scm files use across grammars.
const (
	captureScope      = "local.scope"
	captureDefinition = "local.definition"
	captureReference  = "local.reference"
)

// scopeInfo is one scope's local bindings.
type scopeInfo struct {
	definitions map[string]tree_sitter.Node // name -> definition node, last one wins per scope
	parent      *scopeInfo
}

// Scopes is the result of Index: the document's scope tree plus a
// lookup from any node's byte range to its innermost enclosing scope,
// usable to answer goto-definition queries against the same tree the
// query ran over.
type Scopes struct {
	source  []byte
	doc     *scopeInfo
	byRange map[uint64]*scopeInfo // key: startByte<<32|endByte of the @local.scope node
}

// Index walks query matches for the locals query and builds the scope
// tree rooted at root. When query is nil (the language defines no
// locals query), the whole document is treated as a single scope.
func Index(query *tree_sitter.Query, root tree_sitter.Node, source []byte) *Scopes {
	docScope := &scopeInfo{definitions: map[string]tree_sitter.Node{}}
	s := &Scopes{source: source, doc: docScope, byRange: map[uint64]*scopeInfo{}}
	if query == nil {
		return s
	}

	qc := tree_sitter.NewQueryCursor()
	defer qc.Close()
	captureNames := query.CaptureNames()

	type binding struct {
		name string
		node tree_sitter.Node
	}
	var definitions []binding

	// Scope nodes are visited in query-match order, which for a
	// well-formed locals query always emits an enclosing scope before
	// the scopes nested inside it, so each scope's parent is resolvable
	// by walking its ancestors against the already-populated byRange
	// table.
	matches := qc.Matches(query, root, source)
	for {
		m := matches.Next()
		if m == nil {
			break
		}
		for _, cap := range m.Captures {
			if int(cap.Index) >= len(captureNames) {
				continue
			}
			node := cap.Node
			switch captureNames[cap.Index] {
			case captureScope:
				parent := s.nearestScope(node, root)
				s.byRange[rangeKey(node)] = &scopeInfo{definitions: map[string]tree_sitter.Node{}, parent: parent}
			case captureDefinition:
				definitions = append(definitions, binding{name: string(source[node.StartByte():node.EndByte()]), node: node})
			}
		}
	}

	for _, b := range definitions {
		sc := s.nearestScope(b.node, root)
		sc.definitions[b.name] = b.node
	}

	return s
}

// nearestScope walks from n's parent upward until it finds a node
// registered as a scope, returning the document scope if none is found.
func (s *Scopes) nearestScope(n tree_sitter.Node, root tree_sitter.Node) *scopeInfo {
	cur := n.Parent()
	for cur != nil {
		if sc, ok := s.byRange[rangeKey(*cur)]; ok {
			return sc
		}
		if cur.StartByte() == root.StartByte() && cur.EndByte() == root.EndByte() {
			break
		}
		cur = cur.Parent()
	}
	return s.doc
}

func rangeKey(n tree_sitter.Node) uint64 {
	return uint64(n.StartByte())<<32 | uint64(n.EndByte())
}

// DefinitionFor resolves the identifier node at byteOffset to its
// nearest enclosing definition, walking outward through parent scopes
// until one binds the name or the document scope is exhausted.
func (s *Scopes) DefinitionFor(root tree_sitter.Node, mapper *position.Mapper, byteOffset uint) (position.Range, bool) {
	node := smallestContaining(root, byteOffset)
	if node == nil {
		return position.Range{}, false
	}
	name := string(s.source[node.StartByte():node.EndByte()])

	sc := s.nearestScope(*node, root)
	for sc != nil {
		if def, ok := sc.definitions[name]; ok {
			return mapper.ByteRangeToRange(int(def.StartByte()), int(def.EndByte()))
		}
		sc = sc.parent
	}
	return position.Range{}, false
}
