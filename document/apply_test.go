package document

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tendril-lsp/tendril/position"
)

func TestApplyRangeEdits_SingleReplace(t *testing.T) {
	t.Parallel()
	text := []byte(`{"a": 1}`)
	changes := []RangeChange{
		{Range: position.Range{Start: position.Position{Line: 0, Character: 6}, End: position.Position{Line: 0, Character: 7}}, Text: "2"},
	}
	out, edits, ok := ApplyRangeEdits(text, changes)
	require.True(t, ok)
	require.Equal(t, `{"a": 2}`, string(out))
	require.Len(t, edits, 1)
	require.Equal(t, uint(6), edits[0].StartByte)
	require.Equal(t, uint(7), edits[0].OldEndByte)
	require.Equal(t, uint(7), edits[0].NewEndByte)
}

func TestApplyRangeEdits_MultibyteRegression(t *testing.T) {
	t.Parallel()
	// "あいう" is 9 bytes (3 runes x 3 bytes), 3 UTF-16 units.
	text := []byte(`{"a": "あいう"}`)
	changes := []RangeChange{
		{Range: position.Range{Start: position.Position{Line: 0, Character: 7}, End: position.Position{Line: 0, Character: 10}}, Text: "xyz"},
	}
	out, edits, ok := ApplyRangeEdits(text, changes)
	require.True(t, ok)
	require.Equal(t, `{"a": "xyz"}`, string(out))
	require.Len(t, edits, 1)
	// Byte offset 7 is where the opening quote's content starts
	// ({"a": " = 7 bytes), confirming the edit used byte columns
	// throughout rather than conflating them with the UTF-16 character
	// count (7 as well here, coincidentally equal before the multibyte
	// run begins).
	require.Equal(t, uint(7), edits[0].StartByte)
	require.Equal(t, uint(16), edits[0].OldEndByte, "3 runes at 3 bytes each after the 7-byte prefix")
	require.Equal(t, uint(10), edits[0].NewEndByte)
}

func TestApplyRangeEdits_SequentialEditsRebaseOffsets(t *testing.T) {
	t.Parallel()
	text := []byte(`{"a": 1, "b": 2}`)
	changes := []RangeChange{
		{Range: position.Range{Start: position.Position{Line: 0, Character: 6}, End: position.Position{Line: 0, Character: 7}}, Text: "99"},
		{Range: position.Range{Start: position.Position{Line: 0, Character: 15}, End: position.Position{Line: 0, Character: 16}}, Text: "100"},
	}
	out, edits, ok := ApplyRangeEdits(text, changes)
	require.True(t, ok)
	require.Equal(t, `{"a": 99, "b": 100}`, string(out))
	require.Len(t, edits, 2)
}

func TestApplyRangeEdits_OutOfRangeFails(t *testing.T) {
	t.Parallel()
	text := []byte(`{}`)
	changes := []RangeChange{
		{Range: position.Range{Start: position.Position{Line: 5, Character: 0}, End: position.Position{Line: 5, Character: 1}}, Text: "x"},
	}
	_, _, ok := ApplyRangeEdits(text, changes)
	require.False(t, ok)
}
