package lsp

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/tendril-lsp/tendril/bridge"
)

// textDocumentCompletion handles textDocument/completion. The host
// grammar contributes no completions of its own (no type or symbol
// table lives in a tree-sitter query), so results come entirely from
// the downstream server owning the region under the cursor, if any.
func (s *Server) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	uri := params.TextDocument.URI
	pos := toPosition(params.Position)

	region, frame, ok := s.workspace.RegionAt(uri, pos)
	if !ok {
		return nil, nil
	}

	conn, err := s.acquireRegionConnection(context.Background(), region.Language)
	if err != nil {
		s.logger.Debug("completion: no downstream connection", slog.String("language", region.Language), slog.Any("error", err))
		return nil, nil
	}

	items, err := bridge.Completion(context.Background(), conn, frame, pos, nil)
	if err != nil {
		return nil, nil
	}

	out := make([]protocol.CompletionItem, 0, len(items))
	for _, raw := range items {
		var item protocol.CompletionItem
		if json.Unmarshal(raw, &item) == nil {
			out = append(out, item)
		}
	}
	return out, nil
}
