package lsp

import (
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/tendril-lsp/tendril/parser"
	"github.com/tendril-lsp/tendril/position"
)

// symbolCaptures maps the highlight captures that name a declaration to
// the LSP symbol kind they should be reported as. Only declaration-
// shaped captures appear here; call-site captures like "function.call"
// never produce a symbol.
var symbolCaptures = map[string]protocol.SymbolKind{
	"function":        protocol.SymbolKindFunction,
	"function.method": protocol.SymbolKindMethod,
	"type":            protocol.SymbolKindClass,
}

// textDocumentDocumentSymbol handles textDocument/documentSymbol,
// reporting one flat symbol per declaration-shaped highlight capture in
// the host document. Nesting (methods under their containing type) is
// left for a future pass: the highlight query alone doesn't carry
// enclosing-declaration relationships, only the locals query's scope
// tree does, and scope boundaries don't line up with symbol
// containment in every grammar.
func (s *Server) textDocumentDocumentSymbol(ctx *glsp.Context, params *protocol.DocumentSymbolParams) (any, error) {
	snap, ok := s.workspace.Snapshot(params.TextDocument.URI)
	if !ok || snap.Tree == nil {
		return nil, nil
	}
	query := s.workspace.Queries().Get(snap.Language, parser.Highlights)
	if query == nil {
		return nil, nil
	}
	mapper := position.NewMapper(snap.Text)
	root := snap.Tree.RootNode()

	qc := tree_sitter.NewQueryCursor()
	defer qc.Close()
	captureNames := query.CaptureNames()

	var out []protocol.DocumentSymbol
	matches := qc.Matches(query, *root, snap.Text)
	for {
		m := matches.Next()
		if m == nil {
			break
		}
		for _, cap := range m.Captures {
			if int(cap.Index) >= len(captureNames) {
				continue
			}
			kind, ok := symbolCaptures[captureNames[cap.Index]]
			if !ok {
				continue
			}
			node := cap.Node
			rng, ok := mapper.ByteRangeToRange(int(node.StartByte()), int(node.EndByte()))
			if !ok {
				continue
			}
			name := string(snap.Text[node.StartByte():node.EndByte()])
			out = append(out, protocol.DocumentSymbol{
				Name:           name,
				Kind:           kind,
				Range:          fromPositionRange(rng),
				SelectionRange: fromPositionRange(rng),
			})
		}
	}
	return out, nil
}
