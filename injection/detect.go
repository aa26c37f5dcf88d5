// Package injection implements the Layer/Injection Model: detection of
// embedded-language regions inside a host parse tree via the injections
// query, and a Region ID Tracker that keeps region identifiers stable
// across edits.
//
// Grounded on the teacher's markdown fenced-code-block extraction
// (simon-lentz/yammm's lsp/markdown.go ExtractCodeBlocks), generalized
// from a hand-rolled line scanner over one fixed fence language to a
// tree-sitter injections-query-driven detector over arbitrary host
// languages.
package injection

import (
	"hash/fnv"
	"sort"
	"strconv"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/tendril-lsp/tendril/parser"
	"github.com/tendril-lsp/tendril/position"
)

// Region is a descriptor for one embedded-language region discovered in
// the host tree.
type Region struct {
	Language         string
	ContentStartByte uint
	ContentEndByte   uint
	StartLine        int // 0-based, host document line of content start
	EndLine          int // 0-based, host document line of content end
	PatternIndex     int
	IncludedChildren bool

	// ID is the stable region identifier. Zero value until assigned by
	// a Tracker.
	ID string

	// key is the region-key used to pair this region across snapshots;
	// computed at detection time, consumed by Tracker.Pair.
	key string
}

// languageCaptureName and contentCaptureName are the conventional
// capture names tree-sitter injection queries use.
const (
	languageCaptureName = "injection.language"
	contentCaptureName  = "injection.content"
)

// Detect runs the injections query against root and returns every
// region found, content ranges adjusted by any pattern-scoped
// #offset! directive. mapper must be built over the same source bytes
// passed to the parser that produced root.
//
// When the same injection language is detected more than once at the
// same byte offset, the first match wins (query iteration order) — see
// SPEC_FULL.md Open Questions.
func Detect(query *tree_sitter.Query, preds *parser.PatternPredicates, root tree_sitter.Node, source []byte, mapper *position.Mapper) []Region {
	if query == nil {
		return nil
	}
	qc := tree_sitter.NewQueryCursor()
	defer qc.Close()

	var regions []Region
	seen := make(map[uint]bool) // contentStartByte -> already emitted

	matches := qc.Matches(query, root, source)
	for {
		m := matches.Next()
		if m == nil {
			break
		}
		region, ok := regionFromMatch(query, preds, m, source)
		if !ok {
			continue
		}
		if seen[region.ContentStartByte] {
			continue
		}
		seen[region.ContentStartByte] = true

		region.StartLine, _ = lineOf(mapper, region.ContentStartByte)
		region.EndLine, _ = lineOf(mapper, region.ContentEndByte)
		region.key = regionKey(region, root, source)
		regions = append(regions, region)
	}

	sort.Slice(regions, func(i, j int) bool {
		return regions[i].ContentStartByte < regions[j].ContentStartByte
	})
	return regions
}

func lineOf(mapper *position.Mapper, byteOffset uint) (int, bool) {
	p, ok := mapper.ByteToPoint(int(byteOffset))
	if !ok {
		return 0, false
	}
	return int(p.Row), true
}

func regionFromMatch(query *tree_sitter.Query, preds *parser.PatternPredicates, m *tree_sitter.QueryMatch, source []byte) (Region, bool) {
	captureNames := query.CaptureNames()

	var language string
	var contentNode *tree_sitter.Node
	var languageKnown bool
	captureBytes := make(map[string][]byte, len(m.Captures))

	for _, cap := range m.Captures {
		if int(cap.Index) >= len(captureNames) {
			continue
		}
		name := captureNames[cap.Index]
		node := cap.Node
		text := source[node.StartByte():node.EndByte()]
		captureBytes[name] = text

		switch name {
		case languageCaptureName:
			language = string(text)
			languageKnown = true
		case contentCaptureName:
			n := node
			contentNode = &n
		}
	}
	if contentNode == nil {
		return Region{}, false
	}

	patternIndex := int(m.PatternIndex)
	predList := preds.Predicates(patternIndex)
	if !parser.Evaluate(predList, func(name string) ([]byte, bool) {
		b, ok := captureBytes[name]
		return b, ok
	}) {
		return Region{}, false
	}

	if !languageKnown {
		// Matches without an @injection.language capture are skipped;
		// a language fixed by a directive in the query is not read.
		return Region{}, false
	}

	startByte := contentNode.StartByte()
	endByte := contentNode.EndByte()

	if off, ok := preds.OffsetFor(patternIndex); ok && (off.Capture == "" || off.Capture == contentCaptureName) {
		startByte = applyOffset(startByte, source, off.StartRowDelta, off.StartColDelta)
		endByte = applyOffset(endByte, source, off.EndRowDelta, off.EndColDelta)
	}

	if endByte < startByte {
		return Region{}, false
	}

	return Region{
		Language:         language,
		ContentStartByte: startByte,
		ContentEndByte:   endByte,
		PatternIndex:     patternIndex,
		IncludedChildren: true,
	}, true
}

// applyOffset adjusts a byte offset by (rowDelta, colDelta) relative to
// the line containing it, saturating at document bounds. A nonzero
// rowDelta moves to the same column on a later or earlier line; a
// negative resulting column counts back from that line's end. The
// common "(#offset! @c 1 0 -1 0)" frontmatter idiom moves the start
// down one line and the end up one line.
func applyOffset(byteOffset uint, source []byte, rowDelta, colDelta int) uint {
	if rowDelta == 0 && colDelta == 0 {
		return byteOffset
	}
	line := 0
	lineStart := 0
	for i := 0; i < int(byteOffset) && i < len(source); i++ {
		if source[i] == '\n' {
			line++
			lineStart = i + 1
		}
	}
	_ = line
	col := int(byteOffset) - lineStart

	targetCol := col + colDelta
	// Walk rowDelta lines forward or backward from the current line
	// start, then apply the column delta within that line.
	pos := lineStart
	if rowDelta > 0 {
		for r := 0; r < rowDelta && pos < len(source); r++ {
			idx := indexByte(source, pos, '\n')
			if idx < 0 {
				pos = len(source)
				break
			}
			pos = idx + 1
		}
	} else if rowDelta < 0 {
		for r := 0; r < -rowDelta && pos > 0; r++ {
			pos = prevLineStart(source, pos)
		}
	}

	if targetCol < 0 {
		// Negative column counts back from the end of the target line
		// (e.g. -1 means "just before the newline").
		lineEnd := indexByte(source, pos, '\n')
		if lineEnd < 0 {
			lineEnd = len(source)
		}
		result := lineEnd + targetCol + 1
		if result < pos {
			result = pos
		}
		return uint(clamp(result, 0, len(source)))
	}
	return uint(clamp(pos+targetCol, 0, len(source)))
}

func indexByte(b []byte, from int, c byte) int {
	for i := from; i < len(b); i++ {
		if b[i] == c {
			return i
		}
	}
	return -1
}

func prevLineStart(b []byte, from int) int {
	// from is a line start; walk back over the preceding newline to
	// find the start of the previous line.
	if from == 0 {
		return 0
	}
	i := from - 2 // skip the newline directly before `from`
	for i >= 0 && b[i] != '\n' {
		i--
	}
	return i + 1
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// regionKey computes a stable hash of {language, content bytes,
// containing-node kind path} used by the Region ID Tracker to pair
// regions across snapshots.
func regionKey(r Region, root tree_sitter.Node, source []byte) string {
	h := fnv.New64a()
	h.Write([]byte(r.Language))
	h.Write([]byte{0})
	h.Write(source[r.ContentStartByte:r.ContentEndByte])
	h.Write([]byte{0})
	for _, kind := range kindPath(root, r.ContentStartByte, r.ContentEndByte) {
		h.Write([]byte(kind))
		h.Write([]byte{'/'})
	}
	return strconv.FormatUint(h.Sum64(), 36)
}

// kindPath returns the sequence of node kinds from the root down to the
// smallest node fully containing [startByte, endByte).
func kindPath(root tree_sitter.Node, startByte, endByte uint) []string {
	var path []string
	node := root
	for {
		path = append(path, node.Kind())
		found := false
		childCount := node.ChildCount()
		for i := uint(0); i < childCount; i++ {
			child := node.Child(i)
			if child == nil {
				continue
			}
			if child.StartByte() <= startByte && child.EndByte() >= endByte {
				node = *child
				found = true
				break
			}
		}
		if !found {
			return path
		}
	}
}
