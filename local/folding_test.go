package local

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tendril-lsp/tendril/position"
)

func TestFoldingRanges_MultilineObject(t *testing.T) {
	t.Parallel()
	text := []byte("{\n  \"a\": 1,\n  \"b\": 2\n}")
	tree, _ := parseJSON(t, text)
	mapper := position.NewMapper(text)

	folds := FoldingRanges(*tree.RootNode(), mapper)
	require.NotEmpty(t, folds)
	found := false
	for _, f := range folds {
		if f.Kind == FoldRegion && f.StartLine == 0 && f.EndLine == 3 {
			found = true
		}
	}
	require.True(t, found, "expected a region fold spanning the whole object, got %+v", folds)
}

func TestFoldingRanges_SingleLineNoFold(t *testing.T) {
	t.Parallel()
	text := []byte(`{"a": 1}`)
	tree, _ := parseJSON(t, text)
	mapper := position.NewMapper(text)

	folds := FoldingRanges(*tree.RootNode(), mapper)
	require.Empty(t, folds, "a single-line object has no foldable range")
}
