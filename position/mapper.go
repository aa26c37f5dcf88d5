// Package position converts between the three coordinate spaces the bridge
// has to reconcile on every request: UTF-8 byte offsets (what the document
// store and tree-sitter use), UTF-16 code units (what LSP positions use),
// and tree-sitter's (row, byte-column) points (what incremental edits use).
//
// Mixing up the last two is the historically documented bug this package
// exists to prevent: InputEdit columns must always be byte columns, never
// UTF-16 columns.
package position

import (
	"sort"
	"unicode/utf8"
)

// Position is an LSP-style position: zero-based line, UTF-16 code-unit
// character offset within that line.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a pair of Positions.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Point is a tree-sitter-style point: zero-based row and a byte column
// (never a UTF-16 column) within that row.
type Point struct {
	Row    uint32
	Column uint32
}

// Mapper performs position conversions over a single immutable text
// snapshot. Build a new Mapper whenever the underlying text changes;
// the line-start table is computed once at construction and reused for
// every conversion.
type Mapper struct {
	text       []byte
	lineStarts []int // lineStarts[i] = byte offset of the start of line i
}

// NewMapper builds a Mapper over text. The line-start table is computed
// eagerly so repeated conversions are cheap.
func NewMapper(text []byte) *Mapper {
	starts := make([]int, 1, 64)
	starts[0] = 0
	for i, b := range text {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &Mapper{text: text, lineStarts: starts}
}

// Text returns the snapshot the Mapper was built over.
func (m *Mapper) Text() []byte { return m.text }

func (m *Mapper) lineStart(line int) (int, bool) {
	if line < 0 || line >= len(m.lineStarts) {
		return 0, false
	}
	return m.lineStarts[line], true
}

func (m *Mapper) lineEnd(line int) int {
	start := m.lineStarts[line]
	idx := start
	for idx < len(m.text) && m.text[idx] != '\n' {
		idx++
	}
	return idx
}

// lineForByte finds the zero-based line containing byteOffset via binary
// search over the line-start table.
func (m *Mapper) lineForByte(byteOffset int) int {
	// sort.Search finds the first lineStart > byteOffset; the line we want
	// is the one before that.
	i := sort.Search(len(m.lineStarts), func(i int) bool {
		return m.lineStarts[i] > byteOffset
	})
	return i - 1
}

// PositionToByte converts an LSP position to a byte offset in the
// snapshot. Character indices past the end of a line clamp to the line
// end. Returns (0, false) if the line is out of range.
func (m *Mapper) PositionToByte(pos Position) (int, bool) {
	lineStart, ok := m.lineStart(pos.Line)
	if !ok {
		return 0, false
	}
	if pos.Character <= 0 {
		return lineStart, true
	}

	lineEnd := m.lineEnd(pos.Line)
	units := 0
	offset := lineStart
	for offset < lineEnd && units < pos.Character {
		r, size := utf8.DecodeRune(m.text[offset:lineEnd])
		if r == utf8.RuneError && size <= 1 {
			units++
			offset++
			continue
		}
		need := 1
		if r > 0xFFFF {
			need = 2
		}
		if units+need > pos.Character {
			// Requested offset lands on the low surrogate of a pair;
			// floor to the start of this rune rather than split it.
			break
		}
		units += need
		offset += size
	}
	return offset, true
}

// ByteToPosition converts a byte offset to an LSP position. Returns
// (Position{}, false) if byteOffset is out of range or falls strictly
// inside a multibyte UTF-8 sequence (not on a rune boundary).
func (m *Mapper) ByteToPosition(byteOffset int) (Position, bool) {
	if byteOffset < 0 || byteOffset > len(m.text) {
		return Position{}, false
	}
	line := m.lineForByte(byteOffset)
	if line < 0 {
		return Position{}, false
	}
	lineStart := m.lineStarts[line]

	if byteOffset > lineStart && byteOffset < len(m.text) && !utf8.RuneStart(m.text[byteOffset]) {
		return Position{}, false
	}

	char := m.byteToUTF16(lineStart, byteOffset)
	return Position{Line: line, Character: char}, true
}

// byteToUTF16 counts UTF-16 code units between lineStart and targetByte.
func (m *Mapper) byteToUTF16(lineStart, targetByte int) int {
	units := 0
	offset := lineStart
	for offset < targetByte && offset < len(m.text) {
		r, size := utf8.DecodeRune(m.text[offset:])
		if r == utf8.RuneError && size <= 1 {
			units++
			offset++
			continue
		}
		if offset+size > targetByte {
			break
		}
		if r > 0xFFFF {
			units += 2
		} else {
			units++
		}
		offset += size
	}
	return units
}

// PositionToPoint converts an LSP position to a tree-sitter point. The
// resulting column is always a byte column: this is the load-bearing
// invariant that historically caused multibyte-edit corruption when
// conflated with a UTF-16 column.
func (m *Mapper) PositionToPoint(pos Position) (Point, bool) {
	byteOffset, ok := m.PositionToByte(pos)
	if !ok {
		return Point{}, false
	}
	lineStart, ok := m.lineStart(pos.Line)
	if !ok {
		return Point{}, false
	}
	return Point{Row: uint32(pos.Line), Column: uint32(byteOffset - lineStart)}, true
}

// ByteToPoint converts a raw byte offset to a tree-sitter point.
func (m *Mapper) ByteToPoint(byteOffset int) (Point, bool) {
	if byteOffset < 0 || byteOffset > len(m.text) {
		return Point{}, false
	}
	line := m.lineForByte(byteOffset)
	if line < 0 {
		return Point{}, false
	}
	return Point{Row: uint32(line), Column: uint32(byteOffset - m.lineStarts[line])}, true
}

// ByteRangeToRange converts a [start, end) byte range to an LSP Range.
func (m *Mapper) ByteRangeToRange(start, end int) (Range, bool) {
	startPos, ok := m.ByteToPosition(start)
	if !ok {
		return Range{}, false
	}
	endPos, ok := m.ByteToPosition(end)
	if !ok {
		return Range{}, false
	}
	return Range{Start: startPos, End: endPos}, true
}

// LineCount returns the number of lines in the snapshot.
func (m *Mapper) LineCount() int { return len(m.lineStarts) }

// LineLength returns the byte length of line (excluding its terminating
// newline), or (0, false) if line is out of range.
func (m *Mapper) LineLength(line int) (int, bool) {
	start, ok := m.lineStart(line)
	if !ok {
		return 0, false
	}
	return m.lineEnd(line) - start, true
}
