package lsp

import (
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/tendril-lsp/tendril/local"
	"github.com/tendril-lsp/tendril/position"
)

// textDocumentFoldingRange handles textDocument/foldingRange from the
// host document's parse tree. Injection regions don't get their own
// folding pass: a region's content already folds as part of the node
// that contains it (e.g. a fenced code block folds as one block).
func (s *Server) textDocumentFoldingRange(ctx *glsp.Context, params *protocol.FoldingRangeParams) ([]protocol.FoldingRange, error) {
	snap, ok := s.workspace.Snapshot(params.TextDocument.URI)
	if !ok || snap.Tree == nil {
		return nil, nil
	}
	mapper := position.NewMapper(snap.Text)
	folds := local.FoldingRanges(*snap.Tree.RootNode(), mapper)

	out := make([]protocol.FoldingRange, 0, len(folds))
	for _, f := range folds {
		out = append(out, protocol.FoldingRange{
			StartLine: uint32(f.StartLine),
			EndLine:   uint32(f.EndLine),
		})
	}
	return out, nil
}
