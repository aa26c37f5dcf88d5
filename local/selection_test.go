package local

import (
	"testing"

	"github.com/stretchr/testify/require"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/tendril-lsp/tendril/parser"
	"github.com/tendril-lsp/tendril/position"
)

func parseJSON(t *testing.T, text []byte) (*tree_sitter.Tree, *tree_sitter.Language) {
	t.Helper()
	lang, err := parser.NewLoader(nil).Load("json")
	require.NoError(t, err)
	ps := tree_sitter.NewParser()
	require.NoError(t, ps.SetLanguage(lang))
	tree := ps.Parse(text, nil)
	require.NotNil(t, tree)
	return tree, lang
}

func TestSelectionRange_StrictlyExpands(t *testing.T) {
	t.Parallel()
	text := []byte(`{"a": 1}`)
	tree, _ := parseJSON(t, text)
	mapper := position.NewMapper(text)

	root := tree.RootNode()
	chain, ok := SelectionRange(*root, mapper, position.Position{Line: 0, Character: 2})
	require.True(t, ok)
	require.True(t, len(chain) >= 2)

	for i := 1; i < len(chain); i++ {
		prev, cur := chain[i-1], chain[i]
		prevStart, _ := mapper.PositionToByte(prev.Start)
		prevEnd, _ := mapper.PositionToByte(prev.End)
		curStart, _ := mapper.PositionToByte(cur.Start)
		curEnd, _ := mapper.PositionToByte(cur.End)
		require.True(t, curStart <= prevStart && curEnd >= prevEnd, "range %d must contain range %d", i, i-1)
		require.True(t, curStart < prevStart || curEnd > prevEnd, "range %d must strictly grow past range %d", i, i-1)
	}
}

func TestSelectionRange_OutOfBounds(t *testing.T) {
	t.Parallel()
	text := []byte(`{}`)
	tree, _ := parseJSON(t, text)
	mapper := position.NewMapper(text)

	_, ok := SelectionRange(*tree.RootNode(), mapper, position.Position{Line: 5, Character: 0})
	require.False(t, ok)
}
