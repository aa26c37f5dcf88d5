package lsp

import (
	"testing"

	protocol "github.com/tliron/glsp/protocol_3_16"
	"github.com/stretchr/testify/require"
)

func TestSymbolCaptures_KnownCaptures(t *testing.T) {
	t.Parallel()

	require.Equal(t, protocol.SymbolKindFunction, symbolCaptures["function"])
	require.Equal(t, protocol.SymbolKindMethod, symbolCaptures["function.method"])
	require.Equal(t, protocol.SymbolKindClass, symbolCaptures["type"])
}

func TestSymbolCaptures_CallSitesExcluded(t *testing.T) {
	t.Parallel()

	_, ok := symbolCaptures["function.call"]
	require.False(t, ok, "call-site captures must not produce a symbol")
}
