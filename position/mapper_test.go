package position

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPositionToByte_ASCII(t *testing.T) {
	t.Parallel()
	m := NewMapper([]byte("hello\nworld\n"))

	tests := []struct {
		name     string
		pos      Position
		wantByte int
	}{
		{"start of file", Position{0, 0}, 0},
		{"middle of line 1", Position{0, 2}, 2},
		{"end of line 1", Position{0, 5}, 5},
		{"start of line 2", Position{1, 0}, 6},
		{"middle of line 2", Position{1, 2}, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := m.PositionToByte(tt.pos)
			require.True(t, ok)
			require.Equal(t, tt.wantByte, got)
		})
	}
}

func TestPositionToByte_BMP(t *testing.T) {
	t.Parallel()
	// "héllo" = h(1) + é(2) + l(1) + l(1) + o(1) = 6 bytes, 5 UTF-16 units.
	m := NewMapper([]byte("héllo\n"))

	tests := []struct {
		char     int
		wantByte int
	}{
		{0, 0},
		{1, 1},
		{2, 3},
		{3, 4},
		{4, 5},
		{5, 6},
	}
	for _, tt := range tests {
		got, ok := m.PositionToByte(Position{Line: 0, Character: tt.char})
		require.True(t, ok)
		require.Equal(t, tt.wantByte, got)
	}
}

func TestPositionToByte_ClampsPastLineEnd(t *testing.T) {
	t.Parallel()
	m := NewMapper([]byte("ab\ncd\n"))
	got, ok := m.PositionToByte(Position{Line: 0, Character: 100})
	require.True(t, ok)
	require.Equal(t, 2, got) // end of "ab", not into the next line
}

func TestByteToPosition_RoundTrip(t *testing.T) {
	t.Parallel()
	m := NewMapper([]byte("hello\nworld こんにちは\n"))

	// Line 0 ("hello") ends at character 5; positions past a line's end
	// clamp to it and so cannot round-trip.
	for line, maxChar := range []int{5, 7} {
		for char := 0; char <= maxChar; char++ {
			p := Position{Line: line, Character: char}
			b, ok := m.PositionToByte(p)
			require.True(t, ok)
			got, ok := m.ByteToPosition(b)
			require.True(t, ok)
			require.Equal(t, p, got, "round trip for line=%d char=%d", line, char)
		}
	}
}

func TestByteToPosition_RejectsMidRune(t *testing.T) {
	t.Parallel()
	// "あ" is E3 81 82 — three bytes, one rune.
	m := NewMapper([]byte("あ\n"))
	_, ok := m.ByteToPosition(1) // lands inside the 3-byte sequence
	require.False(t, ok)
	_, ok = m.ByteToPosition(2) // still inside it
	require.False(t, ok)
	_, ok = m.ByteToPosition(3) // on the boundary (start of "\n")
	require.True(t, ok)
}

// TestPositionToPoint_MultibyteEdit mirrors the canonical regression this
// package exists to guard against: editing "あいう" -> "xyz" inside
// `let x = "あいう";` must produce byte columns, not UTF-16 columns.
func TestPositionToPoint_MultibyteEdit(t *testing.T) {
	t.Parallel()
	text := `let x = "あいう";` + "\n"
	m := NewMapper([]byte(text))

	// "あいう" starts right after `let x = "` (9 bytes) and is 9 bytes long
	// (3 runes * 3 bytes each), ending at byte 18.
	startByte, ok := m.PositionToByte(Position{Line: 0, Character: 9})
	require.True(t, ok)
	require.Equal(t, 9, startByte)

	endByte, ok := m.PositionToByte(Position{Line: 0, Character: 12}) // 9 + 3 UTF-16 units
	require.True(t, ok)
	require.Equal(t, 18, endByte)

	startPoint, ok := m.ByteToPoint(startByte)
	require.True(t, ok)
	require.Equal(t, Point{Row: 0, Column: 9}, startPoint)

	endPoint, ok := m.ByteToPoint(endByte)
	require.True(t, ok)
	require.Equal(t, Point{Row: 0, Column: 18}, endPoint)
}

func TestPositionToPoint_Emoji(t *testing.T) {
	t.Parallel()
	// 😀 is U+1F600, a 4-byte UTF-8 sequence and a UTF-16 surrogate pair.
	m := NewMapper([]byte("x😀y\n"))

	afterEmoji, ok := m.PositionToByte(Position{Line: 0, Character: 3}) // x(1) + 😀(2 units)
	require.True(t, ok)
	require.Equal(t, 5, afterEmoji) // x(1 byte) + 😀(4 bytes)

	point, ok := m.ByteToPoint(afterEmoji)
	require.True(t, ok)
	require.Equal(t, Point{Row: 0, Column: 5}, point)
}

func TestPositionToPoint_CombiningCharacter(t *testing.T) {
	t.Parallel()
	// "e" + combining acute accent (U+0301, 2 bytes), one UTF-16 unit each.
	m := NewMapper([]byte("éx\n"))

	b, ok := m.PositionToByte(Position{Line: 0, Character: 2})
	require.True(t, ok)
	require.Equal(t, 3, b) // 1 byte 'e' + 2 bytes combining mark

	pos, ok := m.ByteToPosition(b)
	require.True(t, ok)
	require.Equal(t, Position{Line: 0, Character: 2}, pos)
}

func TestByteRangeToRange(t *testing.T) {
	t.Parallel()
	m := NewMapper([]byte("hello\nworld\n"))
	r, ok := m.ByteRangeToRange(6, 11)
	require.True(t, ok)
	require.Equal(t, Range{Start: Position{1, 0}, End: Position{1, 5}}, r)
}

func TestLineCount(t *testing.T) {
	t.Parallel()
	m := NewMapper([]byte("a\nb\nc"))
	require.Equal(t, 3, m.LineCount())
}
