package injection

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTracker_StableIDAcrossEdit(t *testing.T) {
	t.Parallel()
	tr := NewTracker()

	r1 := []Region{{Language: "lua", key: "k1"}, {Language: "lua", key: "k2"}}
	p1 := tr.Pair("file:///a.md", r1)
	require.Empty(t, p1.Invalidated)
	require.NotEmpty(t, p1.Regions[0].ID)
	require.NotEqual(t, p1.Regions[0].ID, p1.Regions[1].ID)

	id1 := p1.Regions[0].ID

	// Second region (k2) removed, k1 unchanged, a new region (k3) added.
	r2 := []Region{{Language: "lua", key: "k1"}, {Language: "lua", key: "k3"}}
	p2 := tr.Pair("file:///a.md", r2)

	require.Equal(t, id1, p2.Regions[0].ID, "unchanged region key must keep its id")
	require.NotEqual(t, id1, p2.Regions[1].ID)
	require.Equal(t, []string{p1.Regions[1].ID}, p2.Invalidated)
}

func TestTracker_Forget(t *testing.T) {
	t.Parallel()
	tr := NewTracker()
	p := tr.Pair("file:///a.md", []Region{{key: "k1"}, {key: "k2"}})
	require.Len(t, p.Regions, 2)

	ids := tr.Forget("file:///a.md")
	require.Len(t, ids, 2)

	// A URI with no tracked state reports nothing.
	require.Empty(t, tr.Forget("file:///never-seen.md"))

	// After forgetting, a fresh Pair call treats every region as new.
	p2 := tr.Pair("file:///a.md", []Region{{key: "k1"}})
	require.Empty(t, p2.Invalidated)
}

func TestTracker_IndependentURIs(t *testing.T) {
	t.Parallel()
	tr := NewTracker()
	pa := tr.Pair("file:///a.md", []Region{{key: "k1"}})
	pb := tr.Pair("file:///b.md", []Region{{key: "k1"}})

	// Same region key in different documents gets distinct identities.
	require.NotEqual(t, pa.Regions[0].ID, pb.Regions[0].ID)
}
