package document

import (
	"testing"

	"github.com/stretchr/testify/require"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/tendril-lsp/tendril/parser"
)

func newJSONTree(t *testing.T, text []byte) *tree_sitter.Tree {
	t.Helper()
	lang, err := parser.NewLoader(nil).Load("json")
	require.NoError(t, err)
	ps := tree_sitter.NewParser()
	require.NoError(t, ps.SetLanguage(lang))
	tree := ps.Parse(text, nil)
	require.NotNil(t, tree)
	return tree
}

func TestStore_InsertGet(t *testing.T) {
	t.Parallel()
	s := NewStore()
	s.Insert("file:///a.json", 1, "json", []byte(`{"a":1}`))

	snap, ok := s.Get("file:///a.json")
	require.True(t, ok)
	require.Equal(t, 1, snap.Version)
	require.Equal(t, "json", snap.Language)
	require.Nil(t, snap.Tree)

	_, ok = s.Get("file:///missing.json")
	require.False(t, ok)
}

func TestStore_UpdateTextClearsTrees(t *testing.T) {
	t.Parallel()
	s := NewStore()
	text := []byte(`{"a":1}`)
	s.Insert("file:///a.json", 1, "json", text)
	tree := newJSONTree(t, text)
	s.UpdateTree("file:///a.json", text, 1, tree)

	snap, _ := s.Get("file:///a.json")
	require.NotNil(t, snap.Tree)

	s.UpdateText("file:///a.json", 2, []byte(`{"b":2}`))
	snap, _ = s.Get("file:///a.json")
	require.Nil(t, snap.Tree)
	require.Nil(t, snap.PrevTree)
	require.Equal(t, 2, snap.Version)
}

func TestStore_UpdateTreeRetainsPrevious(t *testing.T) {
	t.Parallel()
	s := NewStore()
	textV1 := []byte(`{"a":1}`)
	s.Insert("file:///a.json", 1, "json", textV1)
	treeV1 := newJSONTree(t, textV1)
	s.UpdateTree("file:///a.json", textV1, 1, treeV1)

	textV2 := []byte(`{"a":2}`)
	treeV2 := newJSONTree(t, textV2)
	s.UpdateTree("file:///a.json", textV2, 2, treeV2)

	snap, ok := s.Get("file:///a.json")
	require.True(t, ok)
	require.Equal(t, treeV2, snap.Tree)
	require.Equal(t, treeV1, snap.PrevTree)
}

func TestStore_RemoveAndURIs(t *testing.T) {
	t.Parallel()
	s := NewStore()
	s.Insert("file:///a.json", 1, "json", []byte(`{}`))
	s.Insert("file:///b.json", 1, "json", []byte(`{}`))
	require.ElementsMatch(t, []string{"file:///a.json", "file:///b.json"}, s.URIs())

	s.Remove("file:///a.json")
	require.ElementsMatch(t, []string{"file:///b.json"}, s.URIs())
	_, ok := s.Get("file:///a.json")
	require.False(t, ok)
}

func TestStore_UpdateSemanticTokens(t *testing.T) {
	t.Parallel()
	s := NewStore()
	s.Insert("file:///a.json", 1, "json", []byte(`{}`))
	s.UpdateSemanticTokens("file:///a.json", &TokenSnapshot{ResultID: "1", Data: []uint32{0, 0, 1, 2, 0}})

	snap, _ := s.Get("file:///a.json")
	require.NotNil(t, snap.Tokens)
	require.Equal(t, "1", snap.Tokens.ResultID)
}

func TestStore_GetEditedTree(t *testing.T) {
	t.Parallel()
	s := NewStore()
	text := []byte(`{"a":1}`)
	s.Insert("file:///a.json", 1, "json", text)
	tree := newJSONTree(t, text)
	s.UpdateTree("file:///a.json", text, 1, tree)

	edited := s.GetEditedTree("file:///a.json", nil)
	require.NotNil(t, edited)

	require.Nil(t, s.GetEditedTree("file:///missing.json", nil))
}
