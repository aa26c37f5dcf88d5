package local

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tendril-lsp/tendril/parser"
	"github.com/tendril-lsp/tendril/position"
)

const jsonLocals = `
(object) @local.scope
(pair key: (string (string_content) @local.definition))
`

func TestIndex_NilQueryIsSingleScope(t *testing.T) {
	t.Parallel()
	text := []byte(`{"a": 1}`)
	tree, _ := parseJSON(t, text)
	scopes := Index(nil, *tree.RootNode(), text)
	require.NotNil(t, scopes.doc)
}

func TestIndex_DefinitionForResolvesWithinScope(t *testing.T) {
	t.Parallel()
	text := []byte(`{"a": 1, "b": 2}`)
	tree, lang := parseJSON(t, text)
	mapper := position.NewMapper(text)

	store := parser.NewStore()
	require.NoError(t, store.Compile(lang, "json", parser.Locals, jsonLocals))
	query := store.Get("json", parser.Locals)
	require.NotNil(t, query)

	root := *tree.RootNode()
	scopes := Index(query, root, text)

	// byte offset 2 lands on the content a of the first key string "a".
	r, ok := scopes.DefinitionFor(root, mapper, 2)
	require.True(t, ok)
	require.Equal(t, 0, r.Start.Line)
}
