// Package tokens implements the Semantic Token Engine: collecting
// highlight-query captures across a host document and any embedded
// injection regions, merging and delta-encoding them into the LSP
// textDocument/semanticTokens wire format, and tracking outstanding
// requests per URI so a superseded computation can be abandoned instead
// of racing its replacement to publish.
//
// Grounded on the teacher's diagnostics pipeline
// (simon-lentz/yammm's diag package AnalyzeAndPublish /
// ScheduleAnalysis generation-token pattern) for the supersession
// half, and on the crush example's QueryCursor.Matches iteration for
// the capture-collection half.
package tokens

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/tendril-lsp/tendril/injection"
	"github.com/tendril-lsp/tendril/parser"
	"github.com/tendril-lsp/tendril/parserpool"
	"github.com/tendril-lsp/tendril/position"
)

// TokenType and TokenModifiers index into the legend published at
// initialize time; the engine itself is legend-agnostic and works
// purely in terms of the caller-supplied capture-name -> type mapping.

// Legend maps highlight capture names (e.g. "function", "variable.
// parameter") to an LSP semantic token type index, and capture name
// suffixes after a '.' to modifier bit positions.
type Legend struct {
	TypeIndex     map[string]uint32
	ModifierBits  map[string]uint32
}

// TypeAndModifiers splits a capture name like "variable.parameter.
// readonly" into its base type and accumulated modifier bitset,
// matching tree-sitter highlight convention where dotted suffixes
// refine rather than replace the base capture.
func (l Legend) TypeAndModifiers(capture string) (typeIdx uint32, modifiers uint32, ok bool) {
	parts := splitDots(capture)
	for i := len(parts); i >= 1; i-- {
		base := joinDots(parts[:i])
		if idx, found := l.TypeIndex[base]; found {
			typeIdx = idx
			ok = true
			for _, suffix := range parts[i:] {
				if bit, found := l.ModifierBits[suffix]; found {
					modifiers |= 1 << bit
				}
			}
			return typeIdx, modifiers, true
		}
	}
	return 0, 0, false
}

func splitDots(s string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}

func joinDots(parts []string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += "." + p
	}
	return out
}

// rawToken is one token prior to delta encoding, in absolute document
// coordinates.
type rawToken struct {
	Line, Character uint32
	Length           uint32
	Type             uint32
	Modifiers        uint32
}

// Source describes one tree (host document or one injection region)
// whose highlight captures should contribute tokens.
type Source struct {
	Tree     *tree_sitter.Tree
	Text     []byte
	Language string
	// LineOffset/ColumnOffset translate this source's own (0-based)
	// coordinates into host-document coordinates. For the host source
	// these are zero; for an injection region they come from the
	// region's content start position.
	LineOffset   int
	ColumnOffset int // only applied to tokens on the region's first line
}

// Engine computes semantic tokens for a document, fanning the host and
// any injection sources out across a bounded concurrent pool.
type Engine struct {
	queries *parser.Store
	pool    *parserpool.ConcurrentPool
	legends map[string]Legend

	mu      sync.RWMutex
	results map[string]*resultState // keyed by URI
}

type resultState struct {
	mu      sync.Mutex
	current uint64

	// lastData/lastResultID are the last vector this Engine published
	// for the URI, by either Compute or ComputeDelta, keyed by the
	// result id handed to the client — the baseline ComputeDelta diffs
	// a new computation against when a full/delta request arrives.
	lastData     []uint32
	lastResultID string
}

// Edit is one LSP SemanticTokensEdit: replace DeleteCount uint32s
// starting at Start with Data, in the previously published token
// array.
type Edit struct {
	Start       uint32
	DeleteCount uint32
	Data        []uint32
}

// NewEngine creates an Engine backed by queries for highlight-query
// lookup and pool for bounding concurrent per-source collection.
func NewEngine(queries *parser.Store, pool *parserpool.ConcurrentPool, legends map[string]Legend) *Engine {
	return &Engine{
		queries: queries,
		pool:    pool,
		legends: legends,
		results: make(map[string]*resultState),
	}
}

// Compute collects tokens from every source, merges them into document
// order, and delta-encodes the result. The engine keeps the returned
// result id and token data per URI as the baseline a later ComputeDelta
// diffs against.
//
// generation is a monotonically increasing per-URI sequence number the
// caller must hand out (e.g. from a document version or request
// counter); if a newer generation has been started for uri by the time
// Compute would publish, Compute returns (nil, "", false) so the caller
// discards the stale result instead of publishing out-of-order data.
func (e *Engine) Compute(ctx context.Context, uri string, generation uint64, sources []Source) ([]uint32, string, bool) {
	st := e.stateFor(uri)
	return e.compute(ctx, generation, sources, st)
}

// ComputeDelta computes tokens for uri exactly as Compute does, then
// diffs the result against the vector this Engine last published for
// uri. If previousResultID matches that last-published result id, the
// diff is returned as a single edit region (prefix/suffix-trimmed
// around the changed token groups; no edits at all if the document is
// unchanged). If previousResultID is empty or stale — referencing a
// vector this Engine no longer has, or never had — isDelta is false
// and the caller must fall back to a full response using data instead.
func (e *Engine) ComputeDelta(ctx context.Context, uri string, generation uint64, sources []Source, previousResultID string) (data []uint32, edits []Edit, resultID string, isDelta bool, ok bool) {
	st := e.stateFor(uri)

	st.mu.Lock()
	prevData := st.lastData
	prevID := st.lastResultID
	st.mu.Unlock()

	newData, newID, ok := e.compute(ctx, generation, sources, st)
	if !ok {
		return nil, nil, "", false, false
	}
	if previousResultID == "" || previousResultID != prevID {
		return newData, nil, newID, false, true
	}
	return nil, diffTokenData(prevData, newData), newID, true, true
}

// compute runs the collect/merge/encode pipeline shared by Compute and
// ComputeDelta, gated by st's generation watermark, and records the
// result as st's new publish baseline on success.
func (e *Engine) compute(ctx context.Context, generation uint64, sources []Source, st *resultState) ([]uint32, string, bool) {
	st.mu.Lock()
	if generation < st.current {
		st.mu.Unlock()
		return nil, "", false
	}
	st.current = generation
	st.mu.Unlock()

	perSource := make([][]rawToken, len(sources))
	group := parserpool.NewRunGroup(e.pool)
	for i, src := range sources {
		i, src := i, src
		group.Go(ctx, func() {
			perSource[i] = e.collect(src)
		})
	}
	group.Wait()

	if ctx.Err() != nil {
		return nil, "", false
	}

	var all []rawToken
	for _, toks := range perSource {
		all = append(all, toks...)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Line != all[j].Line {
			return all[i].Line < all[j].Line
		}
		return all[i].Character < all[j].Character
	})

	data := encodeDelta(all)
	resultID := nextResultID()

	st.mu.Lock()
	stale := generation < st.current
	if !stale {
		st.lastData = data
		st.lastResultID = resultID
	}
	st.mu.Unlock()
	if stale {
		return nil, "", false
	}

	return data, resultID, true
}

// diffTokenData compares old and new delta-encoded token arrays
// group-by-group (each group is the 5 uint32s of one token) and
// returns the single edit that replaces the changed middle span, or
// nil if every group is identical.
func diffTokenData(old, updated []uint32) []Edit {
	const groupSize = 5
	oldGroups := len(old) / groupSize
	newGroups := len(updated) / groupSize

	prefix := 0
	for prefix < oldGroups && prefix < newGroups && groupEquals(old, prefix, updated, prefix) {
		prefix++
	}

	maxSuffix := oldGroups - prefix
	if rem := newGroups - prefix; rem < maxSuffix {
		maxSuffix = rem
	}
	suffix := 0
	for suffix < maxSuffix && groupEquals(old, oldGroups-1-suffix, updated, newGroups-1-suffix) {
		suffix++
	}

	deleteGroups := oldGroups - prefix - suffix
	insertGroups := newGroups - prefix - suffix
	if deleteGroups == 0 && insertGroups == 0 {
		return nil
	}

	insertStart := prefix * groupSize
	insertEnd := (prefix + insertGroups) * groupSize
	data := append([]uint32(nil), updated[insertStart:insertEnd]...)
	return []Edit{{
		Start:       uint32(prefix * groupSize),
		DeleteCount: uint32(deleteGroups * groupSize),
		Data:        data,
	}}
}

func groupEquals(a []uint32, ai int, b []uint32, bi int) bool {
	const groupSize = 5
	ao, bo := ai*groupSize, bi*groupSize
	for k := 0; k < groupSize; k++ {
		if a[ao+k] != b[bo+k] {
			return false
		}
	}
	return true
}

func (e *Engine) stateFor(uri string) *resultState {
	e.mu.RLock()
	st, ok := e.results[uri]
	e.mu.RUnlock()
	if ok {
		return st
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.results[uri]; ok {
		return st
	}
	st = &resultState{}
	e.results[uri] = st
	return st
}

// Forget drops request-tracking state for uri, called when a document
// closes.
func (e *Engine) Forget(uri string) {
	e.mu.Lock()
	delete(e.results, uri)
	e.mu.Unlock()
}

func (e *Engine) collect(src Source) []rawToken {
	if src.Tree == nil {
		return nil
	}
	query := e.queries.Get(src.Language, parser.Highlights)
	if query == nil {
		return nil
	}
	preds := e.queries.Set(src.Language)
	_ = preds // highlight-query predicates are not evaluated by the engine

	legend, ok := e.legends[src.Language]
	if !ok {
		return nil
	}

	qc := tree_sitter.NewQueryCursor()
	defer qc.Close()

	root := src.Tree.RootNode()
	captureNames := query.CaptureNames()

	var out []rawToken
	matches := qc.Matches(query, *root, src.Text)
	for {
		m := matches.Next()
		if m == nil {
			break
		}
		for _, cap := range m.Captures {
			if int(cap.Index) >= len(captureNames) {
				continue
			}
			name := captureNames[cap.Index]
			typeIdx, mods, ok := legend.TypeAndModifiers(name)
			if !ok {
				continue
			}
			node := cap.Node
			start := node.StartPosition()
			end := node.EndPosition()
			if start.Row != end.Row {
				// Multi-line captures are split per line so the
				// delta-encoded wire format (which is single-line per
				// token) stays faithful; per-line splitting uses the
				// source text to find line boundaries.
				out = append(out, splitMultilineToken(src, start, end, typeIdx, mods)...)
				continue
			}
			line := int(start.Row) + src.LineOffset
			character := int(start.Column)
			if start.Row == 0 {
				character += src.ColumnOffset
			}
			out = append(out, rawToken{
				Line:      uint32(line),
				Character: uint32(character),
				Length:    end.Column - start.Column,
				Type:      typeIdx,
				Modifiers: mods,
			})
		}
	}
	return out
}

func splitMultilineToken(src Source, start, end tree_sitter.Point, typeIdx, mods uint32) []rawToken {
	lineStarts := position.NewMapper(src.Text)
	var out []rawToken
	for row := start.Row; row <= end.Row; row++ {
		lineLen, ok := lineStarts.LineLength(int(row))
		if !ok {
			continue
		}
		col := uint32(0)
		length := uint32(lineLen)
		if row == start.Row {
			col = start.Column
			length = uint32(lineLen) - col
		}
		if row == end.Row {
			length = end.Column - col
		}
		line := int(row) + src.LineOffset
		character := int(col)
		if row == 0 {
			character += src.ColumnOffset
		}
		out = append(out, rawToken{
			Line:      uint32(line),
			Character: uint32(character),
			Length:    length,
			Type:      typeIdx,
			Modifiers: mods,
		})
	}
	return out
}

// encodeDelta implements the LSP semantic-tokens wire encoding: each
// token is {deltaLine, deltaStartChar (reset to absolute when
// deltaLine != 0), length, tokenType, tokenModifiers}.
func encodeDelta(tokens []rawToken) []uint32 {
	data := make([]uint32, 0, len(tokens)*5)
	var prevLine, prevChar uint32
	for i, tok := range tokens {
		var deltaLine, deltaChar uint32
		if i == 0 {
			deltaLine = tok.Line
			deltaChar = tok.Character
		} else {
			deltaLine = tok.Line - prevLine
			if deltaLine == 0 {
				deltaChar = tok.Character - prevChar
			} else {
				deltaChar = tok.Character
			}
		}
		data = append(data, deltaLine, deltaChar, tok.Length, tok.Type, tok.Modifiers)
		prevLine, prevChar = tok.Line, tok.Character
	}
	return data
}

var resultSeq uint64

// nextResultID hands out a process-unique, monotonically increasing
// result id for semantic-token delta correlation.
func nextResultID() string {
	n := atomic.AddUint64(&resultSeq, 1)
	return encodeResultID(n)
}

const resultIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

func encodeResultID(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [16]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = resultIDAlphabet[n%36]
		n /= 36
	}
	return string(buf[i:])
}

// RegionSources converts a set of detected injection regions, each with
// its own parsed tree, into Source values ready for Compute. Callers
// build region trees by parsing the region's content bytes with the
// region's own language parser beforehand.
func RegionSources(regions []injection.Region, regionTrees map[string]*tree_sitter.Tree, regionText map[string][]byte) []Source {
	out := make([]Source, 0, len(regions))
	for _, r := range regions {
		tree := regionTrees[r.ID]
		if tree == nil {
			continue
		}
		out = append(out, Source{
			Tree:         tree,
			Text:         regionText[r.ID],
			Language:     r.Language,
			LineOffset:   r.StartLine,
			ColumnOffset: 0,
		})
	}
	return out
}
