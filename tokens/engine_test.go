package tokens

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/tendril-lsp/tendril/parser"
	"github.com/tendril-lsp/tendril/parserpool"
)

const jsonHighlights = `
(pair key: (string) @property)
(number) @number
(true) @constant.builtin
(false) @constant.builtin
`

func buildJSONEngine(t *testing.T) (*Engine, *tree_sitter.Tree, []byte) {
	t.Helper()
	loader := parser.NewLoader(nil)
	lang, err := loader.Load("json")
	require.NoError(t, err)

	store := parser.NewStore()
	require.NoError(t, store.Compile(lang, "json", parser.Highlights, jsonHighlights))

	ps := tree_sitter.NewParser()
	require.NoError(t, ps.SetLanguage(lang))
	text := []byte(`{"a": 1, "b": true}`)
	tree := ps.Parse(text, nil)
	require.NotNil(t, tree)

	legend := Legend{
		TypeIndex: map[string]uint32{
			"property":         0,
			"number":           1,
			"constant.builtin": 2,
		},
	}
	e := NewEngine(store, parserpool.NewConcurrentPool(4), map[string]Legend{"json": legend})
	return e, tree, text
}

func TestEngine_ComputeEncodesDelta(t *testing.T) {
	t.Parallel()
	e, tree, text := buildJSONEngine(t)

	data, resultID, ok := e.Compute(context.Background(), "file:///a.json", 1, []Source{
		{Tree: tree, Text: text, Language: "json"},
	})
	require.True(t, ok)
	require.NotEmpty(t, resultID)
	require.NotEmpty(t, data)
	require.Equal(t, 0, len(data)%5)
}

func TestEngine_StaleGenerationDiscarded(t *testing.T) {
	t.Parallel()
	e, tree, text := buildJSONEngine(t)

	// Start generation 2 first so the engine's watermark advances past 1.
	_, _, ok := e.Compute(context.Background(), "file:///a.json", 2, []Source{
		{Tree: tree, Text: text, Language: "json"},
	})
	require.True(t, ok)

	_, _, ok = e.Compute(context.Background(), "file:///a.json", 1, []Source{
		{Tree: tree, Text: text, Language: "json"},
	})
	require.False(t, ok, "a request for an older generation must be discarded")
}

func TestEngine_ForgetResetsWatermark(t *testing.T) {
	t.Parallel()
	e, tree, text := buildJSONEngine(t)

	_, _, ok := e.Compute(context.Background(), "file:///a.json", 5, []Source{{Tree: tree, Text: text, Language: "json"}})
	require.True(t, ok)

	e.Forget("file:///a.json")

	_, _, ok = e.Compute(context.Background(), "file:///a.json", 1, []Source{{Tree: tree, Text: text, Language: "json"}})
	require.True(t, ok, "after Forget the watermark resets so an older generation is accepted again")
}

func TestEngine_ComputeDeltaUnchangedDocumentHasNoEdits(t *testing.T) {
	t.Parallel()
	e, tree, text := buildJSONEngine(t)
	sources := []Source{{Tree: tree, Text: text, Language: "json"}}

	_, resultID, ok := e.Compute(context.Background(), "file:///a.json", 1, sources)
	require.True(t, ok)

	data, edits, newID, isDelta, ok := e.ComputeDelta(context.Background(), "file:///a.json", 2, sources, resultID)
	require.True(t, ok)
	require.True(t, isDelta)
	require.Nil(t, data)
	require.Empty(t, edits, "recomputing an unchanged document must yield zero edits")
	require.NotEmpty(t, newID)
}

func TestEngine_ComputeDeltaChangedDocumentYieldsEdit(t *testing.T) {
	t.Parallel()
	loader := parser.NewLoader(nil)
	lang, err := loader.Load("json")
	require.NoError(t, err)
	store := parser.NewStore()
	require.NoError(t, store.Compile(lang, "json", parser.Highlights, jsonHighlights))
	legend := Legend{TypeIndex: map[string]uint32{"property": 0, "number": 1, "constant.builtin": 2}}
	e := NewEngine(store, parserpool.NewConcurrentPool(4), map[string]Legend{"json": legend})

	ps := tree_sitter.NewParser()
	require.NoError(t, ps.SetLanguage(lang))

	textBefore := []byte(`{"a": 1, "b": true}`)
	treeBefore := ps.Parse(textBefore, nil)
	require.NotNil(t, treeBefore)
	_, resultID, ok := e.Compute(context.Background(), "file:///a.json", 1, []Source{
		{Tree: treeBefore, Text: textBefore, Language: "json"},
	})
	require.True(t, ok)

	textAfter := []byte(`{"a": 1, "b": true, "c": 2}`)
	treeAfter := ps.Parse(textAfter, nil)
	require.NotNil(t, treeAfter)
	data, edits, newID, isDelta, ok := e.ComputeDelta(context.Background(), "file:///a.json", 2, []Source{
		{Tree: treeAfter, Text: textAfter, Language: "json"},
	}, resultID)
	require.True(t, ok)
	require.True(t, isDelta)
	require.Nil(t, data)
	require.NotEmpty(t, edits, "an added token must produce at least one edit")
	require.NotEmpty(t, newID)
	require.NotEqual(t, resultID, newID)
}

func TestEngine_ComputeDeltaStaleResultIDFallsBackToFull(t *testing.T) {
	t.Parallel()
	e, tree, text := buildJSONEngine(t)
	sources := []Source{{Tree: tree, Text: text, Language: "json"}}

	_, _, ok := e.Compute(context.Background(), "file:///a.json", 1, sources)
	require.True(t, ok)

	data, edits, newID, isDelta, ok := e.ComputeDelta(context.Background(), "file:///a.json", 2, sources, "stale-result-id")
	require.True(t, ok)
	require.False(t, isDelta)
	require.Nil(t, edits)
	require.NotEmpty(t, data)
	require.NotEmpty(t, newID)
}

func TestDiffTokenData(t *testing.T) {
	t.Parallel()

	t.Run("identical vectors produce no edits", func(t *testing.T) {
		old := []uint32{0, 0, 1, 0, 0, 0, 2, 1, 1, 0}
		require.Nil(t, diffTokenData(old, append([]uint32(nil), old...)))
	})

	t.Run("appended group trims to a single insert edit", func(t *testing.T) {
		old := []uint32{0, 0, 1, 0, 0}
		updated := []uint32{0, 0, 1, 0, 0, 0, 5, 1, 1, 0}
		edits := diffTokenData(old, updated)
		require.Len(t, edits, 1)
		require.Equal(t, uint32(5), edits[0].Start)
		require.Equal(t, uint32(0), edits[0].DeleteCount)
		require.Equal(t, []uint32{0, 5, 1, 1, 0}, edits[0].Data)
	})

	t.Run("middle group changed trims common prefix and suffix", func(t *testing.T) {
		old := []uint32{0, 0, 1, 0, 0, 1, 0, 2, 1, 0, 0, 0, 3, 2, 0}
		updated := []uint32{0, 0, 1, 0, 0, 1, 0, 9, 1, 0, 0, 0, 3, 2, 0}
		edits := diffTokenData(old, updated)
		require.Len(t, edits, 1)
		require.Equal(t, uint32(5), edits[0].Start)
		require.Equal(t, uint32(5), edits[0].DeleteCount)
		require.Equal(t, []uint32{1, 0, 9, 1, 0}, edits[0].Data)
	})
}

func TestLegend_TypeAndModifiers(t *testing.T) {
	t.Parallel()
	l := Legend{
		TypeIndex:    map[string]uint32{"variable": 3},
		ModifierBits: map[string]uint32{"readonly": 1, "parameter": 0},
	}
	typeIdx, mods, ok := l.TypeAndModifiers("variable.readonly")
	require.True(t, ok)
	require.Equal(t, uint32(3), typeIdx)
	require.Equal(t, uint32(1<<1), mods)

	_, _, ok = l.TypeAndModifiers("unknown.capture")
	require.False(t, ok)
}
