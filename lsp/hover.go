package lsp

import (
	"context"
	"log/slog"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/tendril-lsp/tendril/bridge"
)

// textDocumentHover handles textDocument/hover. The host grammar itself
// carries no hover information (tree-sitter queries describe syntax,
// not semantics), so hover only answers when the cursor falls inside an
// injection region with a live downstream connection; otherwise it
// returns nil, matching the LSP convention for "no hover available".
func (s *Server) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	uri := params.TextDocument.URI
	pos := toPosition(params.Position)

	region, frame, ok := s.workspace.RegionAt(uri, pos)
	if !ok {
		return nil, nil
	}

	conn, err := s.acquireRegionConnection(context.Background(), region.Language)
	if err != nil {
		s.logger.Debug("hover: no downstream connection", slog.String("language", region.Language), slog.Any("error", err))
		return nil, nil
	}

	raw, err := bridge.Hover(context.Background(), conn, frame, pos)
	if err != nil || len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var result protocol.Hover
	if err := unmarshalInto(raw, &result); err != nil {
		return nil, nil
	}
	return &result, nil
}

// acquireRegionConnection resolves and acquires the downstream
// connection configured for language, reusing the same "_" wildcard
// fallback the workspace applies when mirroring virtual documents.
func (s *Server) acquireRegionConnection(ctx context.Context, language string) (*bridge.Connection, error) {
	name, ok := s.workspace.ServerNameFor(language)
	if !ok {
		return nil, errNoServer(language)
	}
	return s.workspace.Servers().Acquire(ctx, name)
}

type noServerError string

func (e noServerError) Error() string { return "no downstream server configured for language " + string(e) }

func errNoServer(language string) error { return noServerError(language) }
