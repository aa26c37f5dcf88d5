package lsp

import (
	"testing"

	protocol "github.com/tliron/glsp/protocol_3_16"
	"github.com/stretchr/testify/require"

	"github.com/tendril-lsp/tendril/position"
)

func TestPositionRoundTrip(t *testing.T) {
	t.Parallel()

	p := protocol.Position{Line: 4, Character: 12}
	got := fromPosition(toPosition(p))
	require.Equal(t, p, got)
}

func TestPositionRangeRoundTrip(t *testing.T) {
	t.Parallel()

	r := protocol.Range{
		Start: protocol.Position{Line: 1, Character: 0},
		End:   protocol.Position{Line: 3, Character: 7},
	}
	got := fromPositionRange(toPositionRange(r))
	require.Equal(t, r, got)
}

func TestToPositionRange_Values(t *testing.T) {
	t.Parallel()

	r := toPositionRange(protocol.Range{
		Start: protocol.Position{Line: 2, Character: 5},
		End:   protocol.Position{Line: 2, Character: 9},
	})
	require.Equal(t, position.Position{Line: 2, Character: 5}, r.Start)
	require.Equal(t, position.Position{Line: 2, Character: 9}, r.End)
}
