// Package local implements the purely syntax-tree-local analyses that
// never need to leave the bridge: selection range expansion, local
// (same-file) goto-definition via the locals query, and folding ranges.
//
// Grounded on the teacher's structural navigation helpers
// (simon-lentz/yammm's lsp/posconv.go node-at-position walk), extended
// from a single "smallest containing node" lookup into the family of
// tree-local LSP requests that all start from that same walk.
package local

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/tendril-lsp/tendril/position"
)

// SelectionRange computes the strictly-expanding ancestor chain of
// ranges for a single cursor position, as LSP's textDocument/
// selectionRange expects: the first entry is the smallest node
// containing pos, each subsequent entry strictly contains the previous
// one (nodes whose range exactly matches their parent's are skipped so
// the chain always grows).
func SelectionRange(root tree_sitter.Node, mapper *position.Mapper, pos position.Position) ([]position.Range, bool) {
	byteOffset, ok := mapper.PositionToByte(pos)
	if !ok {
		return nil, false
	}

	node := smallestContaining(root, uint(byteOffset))
	if node == nil {
		return nil, false
	}

	var chain []position.Range
	var lastStart, lastEnd uint
	first := true
	for n := node; n != nil; n = n.Parent() {
		start, end := n.StartByte(), n.EndByte()
		if !first && start == lastStart && end == lastEnd {
			continue
		}
		r, ok := mapper.ByteRangeToRange(int(start), int(end))
		if !ok {
			continue
		}
		chain = append(chain, r)
		lastStart, lastEnd = start, end
		first = false
	}
	return chain, len(chain) > 0
}

// smallestContaining returns the deepest descendant of root whose byte
// range contains byteOffset, preferring a node that starts exactly at
// byteOffset over one that merely contains it when both are available
// (matching how editors expect selection to begin at the token under
// the cursor rather than its enclosing whitespace).
func smallestContaining(root tree_sitter.Node, byteOffset uint) *tree_sitter.Node {
	node := root
	for {
		if byteOffset < node.StartByte() || byteOffset > node.EndByte() {
			return nil
		}
		childCount := node.ChildCount()
		var next *tree_sitter.Node
		for i := uint(0); i < childCount; i++ {
			child := node.Child(i)
			if child == nil {
				continue
			}
			if byteOffset >= child.StartByte() && byteOffset <= child.EndByte() {
				next = child
				if byteOffset < child.EndByte() {
					break
				}
			}
		}
		if next == nil {
			n := node
			return &n
		}
		node = *next
	}
}
