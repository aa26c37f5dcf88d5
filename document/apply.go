package document

import (
	"github.com/tendril-lsp/tendril/position"
)

// RangeChange is one textDocument/didChange content-change event in its
// range-replacement form (as opposed to a full-text replacement).
type RangeChange struct {
	Range position.Range
	Text  string
}

// ApplyRangeEdits applies a sequence of range-replacement edits to text
// in order, building a fresh mapper over the current text before each
// edit since prior edits shift all later byte offsets, and returns the
// final text plus the Edit descriptors tree-sitter needs to update a
// parse tree incrementally.
//
// Mirrors the teacher's full-text replace-on-change simplicity in
// spirit (simon-lentz/yammm's workspace.go documents that full sync is
// "simpler and safer") but implements incremental application since
// the position-mapper byte/UTF-16/point conversions this bridge relies
// on are specifically there to make incremental edits safe.
func ApplyRangeEdits(text []byte, changes []RangeChange) ([]byte, []Edit, bool) {
	edits := make([]Edit, 0, len(changes))
	cur := text
	for _, ch := range changes {
		mapper := position.NewMapper(cur)
		startByte, ok := mapper.PositionToByte(ch.Range.Start)
		if !ok {
			return nil, nil, false
		}
		endByte, ok := mapper.PositionToByte(ch.Range.End)
		if !ok {
			return nil, nil, false
		}
		startPoint, _ := mapper.PositionToPoint(ch.Range.Start)
		oldEndPoint, _ := mapper.PositionToPoint(ch.Range.End)

		next := make([]byte, 0, len(cur)-(endByte-startByte)+len(ch.Text))
		next = append(next, cur[:startByte]...)
		next = append(next, ch.Text...)
		next = append(next, cur[endByte:]...)

		newEndByte := startByte + len(ch.Text)
		newMapper := position.NewMapper(next)
		newEndPoint, ok := newMapper.ByteToPoint(newEndByte)
		if !ok {
			return nil, nil, false
		}

		edits = append(edits, Edit{
			StartByte: uint(startByte), OldEndByte: uint(endByte), NewEndByte: uint(newEndByte),
			StartPoint:  position.Point{Row: startPoint.Row, Column: startPoint.Column},
			OldEndPoint: position.Point{Row: oldEndPoint.Row, Column: oldEndPoint.Column},
			NewEndPoint: position.Point{Row: newEndPoint.Row, Column: newEndPoint.Column},
		})
		cur = next
	}
	return cur, edits, true
}
