package lsp

import (
	"context"
	"log/slog"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/tendril-lsp/tendril/bridge"
	"github.com/tendril-lsp/tendril/position"
)

// textDocumentReferences handles textDocument/references. Unlike
// definition, there is no host-side locals index capable of resolving
// references in the other direction, so a request outside any
// injection region has nothing to answer with; only positions inside a
// region are forwarded to that region's downstream server.
func (s *Server) textDocumentReferences(ctx *glsp.Context, params *protocol.ReferenceParams) (any, error) {
	uri := params.TextDocument.URI
	pos := toPosition(params.Position)

	region, frame, ok := s.workspace.RegionAt(uri, pos)
	if !ok {
		return nil, nil
	}
	return s.bridgedReferences(uri, region.Language, frame, pos, params.Context.IncludeDeclaration)
}

func (s *Server) bridgedReferences(hostURI, language string, frame bridge.RegionFrame, pos position.Position, includeDeclaration bool) (any, error) {
	conn, err := s.acquireRegionConnection(context.Background(), language)
	if err != nil {
		s.logger.Debug("references: no downstream connection", slog.String("language", language), slog.Any("error", err))
		return nil, nil
	}
	locs, err := bridge.References(context.Background(), conn, frame, hostURI, pos, includeDeclaration)
	if err != nil || len(locs) == 0 {
		return nil, nil
	}
	out := make([]protocol.Location, 0, len(locs))
	for _, l := range locs {
		out = append(out, protocol.Location{URI: l.URI, Range: fromPositionRange(l.Range)})
	}
	return out, nil
}
