package lsp

import (
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/tendril-lsp/tendril/local"
	"github.com/tendril-lsp/tendril/position"
)

// textDocumentSelectionRange handles textDocument/selectionRange,
// computing one strictly-expanding ancestor chain per requested
// position from the host parse tree. A position with no enclosing node
// (an empty document, or outside the tree) gets the zero range rather
// than being dropped, since LSP requires a result entry per requested
// position, in order.
func (s *Server) textDocumentSelectionRange(ctx *glsp.Context, params *protocol.SelectionRangeParams) ([]protocol.SelectionRange, error) {
	snap, ok := s.workspace.Snapshot(params.TextDocument.URI)
	if !ok || snap.Tree == nil {
		return nil, nil
	}
	root := snap.Tree.RootNode()
	mapper := position.NewMapper(snap.Text)

	out := make([]protocol.SelectionRange, 0, len(params.Positions))
	for _, p := range params.Positions {
		chain, ok := local.SelectionRange(*root, mapper, toPosition(p))
		if !ok {
			out = append(out, protocol.SelectionRange{})
			continue
		}
		out = append(out, buildSelectionChain(chain))
	}
	return out, nil
}

// buildSelectionChain links chain (innermost first) into the
// parent-linked list LSP's SelectionRange shape requires.
func buildSelectionChain(chain []position.Range) protocol.SelectionRange {
	var parent *protocol.SelectionRange
	for i := len(chain) - 1; i >= 0; i-- {
		parent = &protocol.SelectionRange{Range: fromPositionRange(chain[i]), Parent: parent}
	}
	return *parent
}
