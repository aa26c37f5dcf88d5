package lsp

import (
	"context"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// textDocumentSemanticTokensFull handles textDocument/semanticTokens/full,
// fanning the request out across the host document and every live
// injection region via the shared token engine.
func (s *Server) textDocumentSemanticTokensFull(ctx *glsp.Context, params *protocol.SemanticTokensParams) (*protocol.SemanticTokens, error) {
	uri := params.TextDocument.URI
	sources, ok := s.workspace.TokenSources(uri)
	if !ok {
		return nil, nil
	}

	generation := s.workspace.NextTokenGeneration(uri)
	data, resultID, ok := s.workspace.TokenEngine().Compute(context.Background(), uri, generation, sources)
	if !ok {
		return nil, nil
	}
	return &protocol.SemanticTokens{ResultID: &resultID, Data: data}, nil
}

// textDocumentSemanticTokensFullDelta handles
// textDocument/semanticTokens/full/delta. It recomputes tokens exactly
// as the full request does, then asks the engine to diff the result
// against whatever it last published for uri under
// params.PreviousResultID. The response is a SemanticTokensDelta when
// the engine found that baseline (edits empty for an unchanged
// document), or a full SemanticTokens when the baseline was stale or
// never client-supplied, per the full/delta request's fallback rule.
func (s *Server) textDocumentSemanticTokensFullDelta(ctx *glsp.Context, params *protocol.SemanticTokensDeltaParams) (any, error) {
	uri := params.TextDocument.URI
	sources, ok := s.workspace.TokenSources(uri)
	if !ok {
		return nil, nil
	}

	generation := s.workspace.NextTokenGeneration(uri)
	data, edits, resultID, isDelta, ok := s.workspace.TokenEngine().ComputeDelta(context.Background(), uri, generation, sources, params.PreviousResultID)
	if !ok {
		return nil, nil
	}
	if !isDelta {
		return &protocol.SemanticTokens{ResultID: &resultID, Data: data}, nil
	}

	wireEdits := make([]protocol.SemanticTokensEdit, 0, len(edits))
	for _, e := range edits {
		wireEdits = append(wireEdits, protocol.SemanticTokensEdit{
			Start:       e.Start,
			DeleteCount: e.DeleteCount,
			Data:        e.Data,
		})
	}
	return &protocol.SemanticTokensDelta{ResultID: &resultID, Edits: wireEdits}, nil
}
