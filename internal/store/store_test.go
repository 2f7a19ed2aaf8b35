/*
Package store
File: store_test.go
Description: Durable-state behaviour over an in-memory SQLite database.
*/

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// seedPilot creates a user with a ship holding the given credits.
func seedPilot(t *testing.T, s *Store, name string, credits int64) *User {
	t.Helper()
	ctx := context.Background()
	u, err := s.CreateUser(ctx, name, "hash")
	require.NoError(t, err)
	require.NoError(t, s.CreateShip(ctx, &Ship{
		UserID:  u.ID,
		HullHP:  100, HullMax: 100,
		ShieldHP: 50, ShieldMax: 50,
		Credits:    credits,
		EngineTier: 1, WeaponTier: 1, ShieldTier: 1, MiningTier: 1,
		CargoTier: 1, RadarTier: 1, EnergyCoreTier: 1, HullTier: 1,
	}))
	return u
}

func TestCreateUserUniqueUsername(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "ada", "h1")
	require.NoError(t, err)
	assert.NotZero(t, u.ID)

	_, err = s.CreateUser(ctx, "ada", "h2")
	assert.ErrorIs(t, err, ErrUsernameTaken)

	found, err := s.UserByUsername(ctx, "ada")
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)

	// Unknown user maps to the generic credentials error.
	_, err = s.UserByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestAdjustCreditsRefusesNegativeBalance(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := seedPilot(t, s, "ada", 100)

	require.NoError(t, s.AdjustCredits(ctx, u.ID, -60))
	assert.ErrorIs(t, s.AdjustCredits(ctx, u.ID, -41), ErrInsufficientCredits)

	ship, err := s.ShipByUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(40), ship.Credits)
}

func TestInventoryAddRemove(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := seedPilot(t, s, "ada", 0)

	added, err := s.AddResourceClipped(ctx, u.ID, "IRON", 10, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(10), added)

	added, err = s.AddResourceClipped(ctx, u.ID, "IRON", 5, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(5), added)

	total, err := s.InventoryTotal(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(15), total)

	require.NoError(t, s.RemoveResource(ctx, u.ID, "IRON", 5))
	assert.ErrorIs(t, s.RemoveResource(ctx, u.ID, "IRON", 11), ErrInsufficientQuantity)
	assert.ErrorIs(t, s.RemoveResource(ctx, u.ID, "CRYSTAL", 1), ErrInsufficientQuantity)

	// Removing the full stack deletes the row.
	require.NoError(t, s.RemoveResource(ctx, u.ID, "IRON", 10))
	items, err := s.Inventory(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestAddResourceClippedAtCargoCap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := seedPilot(t, s, "ada", 0)

	_, err := s.AddResourceClipped(ctx, u.ID, "IRON", 99, 100)
	require.NoError(t, err)

	// One unit of room left; a yield of two credits only one.
	added, err := s.AddResourceClipped(ctx, u.ID, "TITANIUM", 2, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1), added)

	// No room at all: zero added, no error.
	added, err = s.AddResourceClipped(ctx, u.ID, "CRYSTAL", 5, 100)
	require.NoError(t, err)
	assert.Zero(t, added)

	total, err := s.InventoryTotal(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), total)
}

func TestRelics(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := seedPilot(t, s, "ada", 0)

	has, err := s.HasRelic(ctx, u.ID, "WORMHOLE_GEM")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, s.GrantRelic(ctx, u.ID, "WORMHOLE_GEM"))
	has, err = s.HasRelic(ctx, u.ID, "WORMHOLE_GEM")
	require.NoError(t, err)
	assert.True(t, has)

	relics, err := s.Relics(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"WORMHOLE_GEM"}, relics)
}

func TestReconcileShipHealsMaxima(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := seedPilot(t, s, "ada", 0)

	ship, err := s.ShipByUser(ctx, u.ID)
	require.NoError(t, err)

	// Drifted row: current values above the recomputed maxima.
	ship.HullHP = 500
	ship.ShieldHP = 300
	require.NoError(t, s.ReconcileShip(ctx, ship, 150, 70))
	assert.Equal(t, 150.0, ship.HullHP)
	assert.Equal(t, 70.0, ship.ShieldHP)

	stored, err := s.ShipByUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 150.0, stored.HullMax)
	assert.Equal(t, 70.0, stored.ShieldMax)
	assert.Equal(t, 150.0, stored.HullHP)
	assert.Equal(t, 70.0, stored.ShieldHP)
}

func TestApplyUpgrade(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := seedPilot(t, s, "ada", 1000)
	_, err := s.AddResourceClipped(ctx, u.ID, "IRON", 20, 100)
	require.NoError(t, err)

	err = s.ApplyUpgrade(ctx, u.ID, "mining", 2, 300, map[string]int64{"IRON": 15}, 0, 0)
	require.NoError(t, err)

	ship, err := s.ShipByUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, ship.MiningTier)
	assert.Equal(t, int64(700), ship.Credits)
	total, err := s.InventoryTotal(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)

	// Hull upgrades write the new maximum and top the pool up.
	err = s.ApplyUpgrade(ctx, u.ID, "hull", 2, 100, nil, 150, 0)
	require.NoError(t, err)
	ship, err = s.ShipByUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, ship.HullTier)
	assert.Equal(t, 150.0, ship.HullMax)
	assert.Equal(t, 150.0, ship.HullHP)
}

func TestApplyUpgradeInsufficientFunds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := seedPilot(t, s, "ada", 50)

	err := s.ApplyUpgrade(ctx, u.ID, "engine", 2, 300, nil, 0, 0)
	assert.ErrorIs(t, err, ErrInsufficientCredits)

	err = s.ApplyUpgrade(ctx, u.ID, "engine", 2, 10, map[string]int64{"IRON": 5}, 0, 0)
	assert.ErrorIs(t, err, ErrInsufficientQuantity)

	// Nothing changed: the failed transaction rolled everything back.
	ship, err := s.ShipByUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, ship.EngineTier)
	assert.Equal(t, int64(50), ship.Credits)
}

func TestFleetLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	leader := seedPilot(t, s, "leader", 0)
	m2 := seedPilot(t, s, "member2", 0)
	m3 := seedPilot(t, s, "member3", 0)

	fleet, err := s.CreateFleet(ctx, "Deep Crew", leader.ID)
	require.NoError(t, err)

	_, err = s.CreateFleet(ctx, "Another", leader.ID)
	assert.ErrorIs(t, err, ErrAlreadyInFleet)

	require.NoError(t, s.AddFleetMember(ctx, fleet.ID, m2.ID))
	require.NoError(t, s.AddFleetMember(ctx, fleet.ID, m3.ID))
	assert.ErrorIs(t, s.AddFleetMember(ctx, fleet.ID, m2.ID), ErrAlreadyInFleet)

	info, err := s.FleetOf(ctx, m2.ID)
	require.NoError(t, err)
	assert.Equal(t, fleet.ID, info.Fleet.ID)
	assert.Len(t, info.Members, 3)
	assert.Equal(t, "leader", info.Members[0].Username)

	// Leadership passes to the longest-standing member when the leader leaves.
	require.NoError(t, s.RemoveFleetMember(ctx, fleet.ID, leader.ID))
	info, err = s.FleetByID(ctx, fleet.ID)
	require.NoError(t, err)
	assert.Equal(t, m2.ID, info.Fleet.LeaderID)
	assert.Len(t, info.Members, 2)

	// Emptied fleets disappear.
	require.NoError(t, s.RemoveFleetMember(ctx, fleet.ID, m2.ID))
	require.NoError(t, s.RemoveFleetMember(ctx, fleet.ID, m3.ID))
	_, err = s.FleetByID(ctx, fleet.ID)
	assert.ErrorIs(t, err, ErrNotInFleet)
}

func TestFleetSizeCap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	leader := seedPilot(t, s, "leader", 0)
	fleet, err := s.CreateFleet(ctx, "Full House", leader.ID)
	require.NoError(t, err)

	for i := 0; i < MaxFleetSize-1; i++ {
		u := seedPilot(t, s, "member"+string(rune('a'+i)), 0)
		require.NoError(t, s.AddFleetMember(ctx, fleet.ID, u.ID))
	}
	extra := seedPilot(t, s, "overflow", 0)
	assert.ErrorIs(t, s.AddFleetMember(ctx, fleet.ID, extra.ID), ErrFleetFull)
}
