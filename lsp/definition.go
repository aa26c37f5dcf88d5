package lsp

import (
	"context"
	"log/slog"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/tendril-lsp/tendril/bridge"
	"github.com/tendril-lsp/tendril/local"
	"github.com/tendril-lsp/tendril/parser"
	"github.com/tendril-lsp/tendril/position"
)

// textDocumentDefinition handles textDocument/definition, answering
// from the host document's locals query when the cursor sits outside
// any injection region, and forwarding to the owning downstream server
// otherwise.
func (s *Server) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := params.TextDocument.URI
	pos := toPosition(params.Position)

	if region, frame, ok := s.workspace.RegionAt(uri, pos); ok {
		return s.bridgedDefinition(uri, region.Language, frame, pos)
	}
	return s.localDefinition(uri, pos)
}

func (s *Server) bridgedDefinition(hostURI, language string, frame bridge.RegionFrame, pos position.Position) (any, error) {
	conn, err := s.acquireRegionConnection(context.Background(), language)
	if err != nil {
		s.logger.Debug("definition: no downstream connection", slog.String("language", language), slog.Any("error", err))
		return nil, nil
	}
	locs, err := bridge.Definition(context.Background(), conn, frame, hostURI, pos)
	if err != nil || len(locs) == 0 {
		return nil, nil
	}
	out := make([]protocol.Location, 0, len(locs))
	for _, l := range locs {
		out = append(out, protocol.Location{URI: l.URI, Range: fromPositionRange(l.Range)})
	}
	return out, nil
}

func (s *Server) localDefinition(uri string, pos position.Position) (any, error) {
	snap, ok := s.workspace.Snapshot(uri)
	if !ok || snap.Tree == nil {
		return nil, nil
	}
	root := snap.Tree.RootNode()
	mapper := position.NewMapper(snap.Text)
	byteOffset, ok := mapper.PositionToByte(pos)
	if !ok {
		return nil, nil
	}

	localsQuery := s.workspace.Queries().Get(snap.Language, parser.Locals)
	scopes := local.Index(localsQuery, *root, snap.Text)
	rng, ok := scopes.DefinitionFor(*root, mapper, byteOffset)
	if !ok {
		return nil, nil
	}
	return []protocol.Location{{URI: uri, Range: fromPositionRange(rng)}}, nil
}
