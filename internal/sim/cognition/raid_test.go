package cognition

import (
	"testing"

	"github.com/stretchr/testify/require"

	"driftmoor.ai/internal/sim/simerr"
)

func TestCoordinator_Membership(t *testing.T) {
	c := NewCoordinator(2)
	c.Define(RaidDef{ID: "hunt"})
	c.Define(RaidDef{ID: "escort"})

	require.NoError(t, c.Join("hunt", "a"))
	require.NoError(t, c.Join("hunt", "a"), "rejoining the same group is a no-op")
	require.NoError(t, c.Join("hunt", "b"))

	err := c.Join("hunt", "c")
	require.True(t, simerr.Is(err, simerr.CapacityExceeded), "got %v", err)

	err = c.Join("escort", "a")
	require.True(t, simerr.Is(err, simerr.Busy), "got %v", err)

	err = c.Join("nope", "c")
	require.True(t, simerr.Is(err, simerr.NotFound), "got %v", err)

	g, ok := c.Leave("a")
	require.True(t, ok)
	require.Equal(t, []string{"b"}, g.Members())
	require.NoError(t, c.Join("escort", "a"))

	g, ok = c.GroupOf("a")
	require.True(t, ok)
	require.Equal(t, "escort", g.ID)
}
