package bridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tendril-lsp/tendril/position"
)

// RegionFrame describes the coordinate transform between a host
// document and one embedded region: line/column offsets to add to a
// region-relative position to obtain a host position, and the reverse
// mapping for a host position onto the region.
type RegionFrame struct {
	RegionID   string
	VirtualURI string
	StartLine  int // host-document line the region's content starts on
	StartCol   int // host-document column of the region's content start, only applicable on StartLine
}

// ToHost translates a position inside the region's own coordinate
// space into the equivalent host-document position.
func (f RegionFrame) ToHost(p position.Position) position.Position {
	if p.Line == 0 {
		return position.Position{Line: f.StartLine, Character: f.StartCol + p.Character}
	}
	return position.Position{Line: f.StartLine + p.Line, Character: p.Character}
}

// ToRegion translates a host-document position into the region's own
// coordinate space. ok is false if pos falls outside the region's line
// span as represented by this frame (the caller is responsible for
// establishing that pos is actually within [StartLine, endLine) before
// calling, since RegionFrame alone doesn't carry the region's length).
func (f RegionFrame) ToRegion(pos position.Position) (position.Position, bool) {
	line := pos.Line - f.StartLine
	if line < 0 {
		return position.Position{}, false
	}
	character := pos.Character
	if line == 0 {
		character -= f.StartCol
		if character < 0 {
			return position.Position{}, false
		}
	}
	return position.Position{Line: line, Character: character}, true
}

// textDocumentPositionParams is the common envelope shape (hover,
// definition, references, ...) LSP requests built around a single
// cursor position share.
type textDocumentPositionParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
	Position     position.Position      `json:"position"`
}

// Hover forwards textDocument/hover to conn against the region's
// virtual document, rewriting the position into the region's frame.
// The result's optional range is translated back into host-document
// coordinates; every other field (the hover contents) is returned
// unmodified.
func Hover(ctx context.Context, conn *Connection, frame RegionFrame, pos position.Position) (json.RawMessage, error) {
	regionPos, ok := frame.ToRegion(pos)
	if !ok {
		return nil, fmt.Errorf("position %+v outside region %s", pos, frame.RegionID)
	}
	raw, err := conn.Call(ctx, "textDocument/hover", textDocumentPositionParams{
		TextDocument: textDocumentIdentifier{URI: frame.VirtualURI},
		Position:     regionPos,
	})
	if err != nil || len(raw) == 0 || string(raw) == "null" {
		return raw, err
	}
	var fields map[string]json.RawMessage
	var rng position.Range
	if json.Unmarshal(raw, &fields) != nil || len(fields["range"]) == 0 || string(fields["range"]) == "null" || json.Unmarshal(fields["range"], &rng) != nil {
		return raw, nil
	}
	rng.Start = frame.ToHost(rng.Start)
	rng.End = frame.ToHost(rng.End)
	b, err := json.Marshal(rng)
	if err != nil {
		return raw, nil
	}
	fields["range"] = b
	return json.Marshal(fields)
}

// locationResult is the subset of textDocument/definition's response
// shape the forwarder needs to rewrite: a single Location or an array
// of them. Both are handled by decoding into this permissive form.
type locationResult struct {
	URI   string         `json:"uri"`
	Range position.Range `json:"range"`
}

// Definition forwards textDocument/definition and rewrites returned
// locations from the region's coordinate space back into
// host-document coordinates. Only locations whose URI is the virtual
// URI the request was issued against are translated and rewritten to
// hostURI; any other virtual URI is a reference into a different
// region's virtual document, which has no meaning to the client, and
// is dropped. A real (non-virtual) URI — a Lua definition resolving
// into an installed stdlib file, for instance — is passed through
// unmodified, since its coordinates were never relative to frame.
func Definition(ctx context.Context, conn *Connection, frame RegionFrame, hostURI string, pos position.Position) ([]locationResult, error) {
	regionPos, ok := frame.ToRegion(pos)
	if !ok {
		return nil, fmt.Errorf("position %+v outside region %s", pos, frame.RegionID)
	}
	raw, err := conn.Call(ctx, "textDocument/definition", textDocumentPositionParams{
		TextDocument: textDocumentIdentifier{URI: frame.VirtualURI},
		Position:     regionPos,
	})
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var locs []locationResult
	if err := json.Unmarshal(raw, &locs); err != nil {
		var single locationResult
		if err2 := json.Unmarshal(raw, &single); err2 != nil {
			return nil, fmt.Errorf("decode definition result: %w", err)
		}
		locs = []locationResult{single}
	}

	out := make([]locationResult, 0, len(locs))
	for _, loc := range locs {
		if isVirtualURI(loc.URI) {
			if loc.URI != frame.VirtualURI {
				continue
			}
			loc.URI = hostURI
			loc.Range.Start = frame.ToHost(loc.Range.Start)
			loc.Range.End = frame.ToHost(loc.Range.End)
		}
		out = append(out, loc)
	}
	return out, nil
}

// referenceParams is textDocument/references' params shape: the common
// position envelope plus the includeDeclaration context flag.
type referenceParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
	Position     position.Position      `json:"position"`
	Context      referenceContext       `json:"context"`
}

type referenceContext struct {
	IncludeDeclaration bool `json:"includeDeclaration"`
}

// References forwards textDocument/references and rewrites returned
// locations the same way Definition does: a location whose URI matches
// the request's virtual URI is translated back into host-document
// coordinates, a location referencing a different virtual URI is
// dropped as meaningless to the client, and a real file URI passes
// through untouched.
func References(ctx context.Context, conn *Connection, frame RegionFrame, hostURI string, pos position.Position, includeDeclaration bool) ([]locationResult, error) {
	regionPos, ok := frame.ToRegion(pos)
	if !ok {
		return nil, fmt.Errorf("position %+v outside region %s", pos, frame.RegionID)
	}
	raw, err := conn.Call(ctx, "textDocument/references", referenceParams{
		TextDocument: textDocumentIdentifier{URI: frame.VirtualURI},
		Position:     regionPos,
		Context:      referenceContext{IncludeDeclaration: includeDeclaration},
	})
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var locs []locationResult
	if err := json.Unmarshal(raw, &locs); err != nil {
		return nil, fmt.Errorf("decode references result: %w", err)
	}

	out := make([]locationResult, 0, len(locs))
	for _, loc := range locs {
		if isVirtualURI(loc.URI) {
			if loc.URI != frame.VirtualURI {
				continue
			}
			loc.URI = hostURI
			loc.Range.Start = frame.ToHost(loc.Range.Start)
			loc.Range.End = frame.ToHost(loc.Range.End)
		}
		out = append(out, loc)
	}
	return out, nil
}

// completionItem is the subset of a completion item the merge step
// needs; unrecognized fields round-trip via RawMessage so nothing the
// downstream server sent is lost when the merged list is forwarded to
// the client.
type completionItem struct {
	Label string `json:"label"`
}

// Completion forwards textDocument/completion to conn against frame's
// region (the one region containing pos, since regions don't overlap),
// merging the result with any host-language completions the caller
// already collected, deduplicating by label with the host's own items
// taking precedence — an embedded language's completion provider has
// no visibility into host-level trigger characters like markdown's
// reference-link syntax, so ties are resolved in the host's favor.
func Completion(ctx context.Context, conn *Connection, frame RegionFrame, pos position.Position, hostItems []json.RawMessage) ([]json.RawMessage, error) {
	regionPos, ok := frame.ToRegion(pos)
	if !ok {
		return hostItems, nil
	}
	raw, err := conn.Call(ctx, "textDocument/completion", textDocumentPositionParams{
		TextDocument: textDocumentIdentifier{URI: frame.VirtualURI},
		Position:     regionPos,
	})
	if err != nil {
		return hostItems, err
	}

	regionItems, err := decodeCompletionList(raw)
	if err != nil {
		return hostItems, err
	}

	seen := make(map[string]bool, len(hostItems))
	merged := make([]json.RawMessage, 0, len(hostItems)+len(regionItems))
	for _, item := range hostItems {
		var ci completionItem
		if json.Unmarshal(item, &ci) == nil {
			seen[ci.Label] = true
		}
		merged = append(merged, item)
	}
	for _, item := range regionItems {
		var ci completionItem
		if json.Unmarshal(item, &ci) == nil && seen[ci.Label] {
			continue
		}
		merged = append(merged, item)
	}
	return merged, nil
}

// decodeCompletionList accepts either a bare CompletionItem[] or a
// CompletionList{items: [...]} envelope, the two shapes
// textDocument/completion is allowed to return.
func decodeCompletionList(raw json.RawMessage) ([]json.RawMessage, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var envelope struct {
		Items []json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode completion result: %w", err)
	}
	return envelope.Items, nil
}

// InlayHints forwards textDocument/inlayHint for the byte range
// corresponding to frame's region and rewrites each hint's position
// back into host coordinates.
func InlayHints(ctx context.Context, conn *Connection, frame RegionFrame, regionRange position.Range) ([]json.RawMessage, error) {
	raw, err := conn.Call(ctx, "textDocument/inlayHint", inlayHintParams{
		TextDocument: textDocumentIdentifier{URI: frame.VirtualURI},
		Range:        regionRange,
	})
	if err != nil {
		return nil, err
	}
	var hints []inlayHint
	if err := json.Unmarshal(raw, &hints); err != nil {
		return nil, fmt.Errorf("decode inlayHint result: %w", err)
	}
	out := make([]json.RawMessage, 0, len(hints))
	for _, h := range hints {
		h.Position = frame.ToHost(h.Position)
		b, err := json.Marshal(h)
		if err != nil {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

type inlayHintParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
	Range        position.Range         `json:"range"`
}

type inlayHint struct {
	Position position.Position `json:"position"`
	Label    json.RawMessage   `json:"label"`
	Kind     int               `json:"kind,omitempty"`
}
