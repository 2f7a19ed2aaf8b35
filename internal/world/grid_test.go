/*
Package world
File: grid_test.go
Description: Entity index behaviour: bucketing, queries, nearest search.
*/

package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGridInsertMoveRemove(t *testing.T) {
	g := NewGrid(100)

	g.Insert("player_1", EntityPlayer, 10, 10)
	x, y, ok := g.Position("player_1")
	require.True(t, ok)
	assert.Equal(t, 10.0, x)
	assert.Equal(t, 10.0, y)
	assert.Equal(t, 1, g.Len())

	// Move within the same cell and across a cell boundary.
	g.Move("player_1", 50, 50)
	g.Move("player_1", 250, -250)
	x, y, ok = g.Position("player_1")
	require.True(t, ok)
	assert.Equal(t, 250.0, x)
	assert.Equal(t, -250.0, y)
	assert.Equal(t, []string{"player_1"}, g.Query(250, -250, 1))
	assert.Empty(t, g.Query(10, 10, 1))

	// Re-inserting an existing id rebuckets instead of duplicating.
	g.Insert("player_1", EntityPlayer, 0, 0)
	assert.Equal(t, 1, g.Len())
	assert.Equal(t, []string{"player_1"}, g.Query(0, 0, 1))

	g.Remove("player_1")
	assert.Equal(t, 0, g.Len())
	_, _, ok = g.Position("player_1")
	assert.False(t, ok)

	// Removing or moving an unknown id is harmless.
	assert.NotPanics(t, func() { g.Remove("ghost") })
	assert.NotPanics(t, func() { g.Move("ghost", 1, 1) })
}

func TestGridQuerySortedAndFiltered(t *testing.T) {
	g := NewGrid(100)
	g.Insert("player_2", EntityPlayer, 0, 0)
	g.Insert("player_1", EntityPlayer, 3, 4) // distance 5
	g.Insert("npc_1", EntityNPC, 1, 1)
	g.Insert("proj_1", EntityProjectile, 500, 500)

	ids := g.Query(0, 0, 10)
	assert.Equal(t, []string{"npc_1", "player_1", "player_2"}, ids)

	players := g.QueryKind(0, 0, 10, EntityPlayer)
	assert.Equal(t, []string{"player_1", "player_2"}, players)

	// The radius is inclusive at the boundary.
	assert.Contains(t, g.Query(0, 0, 5), "player_1")
	assert.NotContains(t, g.Query(0, 0, 4.999), "player_1")
}

func TestGridNearestRingExpansion(t *testing.T) {
	g := NewGrid(100)
	g.Insert("npc_far", EntityNPC, 950, 0)
	g.Insert("npc_near", EntityNPC, 250, 0)
	g.Insert("player_1", EntityPlayer, 10, 0)

	id, ok := g.Nearest(0, 0, EntityNPC, 10)
	require.True(t, ok)
	assert.Equal(t, "npc_near", id)

	// Kind filter: the much closer player never wins an NPC search.
	id, ok = g.Nearest(0, 0, EntityPlayer, 10)
	require.True(t, ok)
	assert.Equal(t, "player_1", id)

	_, ok = g.Nearest(0, 0, EntityWreckage, 10)
	assert.False(t, ok)
}

func TestGridNearestCrossRingDiagonal(t *testing.T) {
	g := NewGrid(100)
	// In ring 1 but far along the diagonal; the ring-2 candidate straight
	// ahead is closer in euclidean distance.
	g.Insert("npc_a", EntityNPC, 199, 199)
	g.Insert("npc_b", EntityNPC, 210, 0)

	id, ok := g.Nearest(0, 0, EntityNPC, 10)
	require.True(t, ok)
	assert.Equal(t, "npc_b", id)
}

func TestGridNearestTieBreaksOnID(t *testing.T) {
	g := NewGrid(100)
	g.Insert("npc_b", EntityNPC, 50, 0)
	g.Insert("npc_a", EntityNPC, -50, 0)

	id, ok := g.Nearest(0, 0, EntityNPC, 10)
	require.True(t, ok)
	assert.Equal(t, "npc_a", id)
}
