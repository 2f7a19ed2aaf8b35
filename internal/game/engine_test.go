/*
Package game
File: engine_test.go
Description:
    Simulation tests driven through a fixture galaxy, a recorded sender and
    a manual clock. Ticks are stepped by hand; nothing here depends on wall
    time or the background loop.
*/

package game

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/everforgeworks/galaxies-deepspace/internal/config"
	"github.com/everforgeworks/galaxies-deepspace/internal/store"
	"github.com/everforgeworks/galaxies-deepspace/internal/world"
)

// fixtureGalaxy hands out pre-built sectors; anything unlisted is empty space.
type fixtureGalaxy struct {
	size    float64
	sectors map[[2]int]*world.Sector
}

func (f *fixtureGalaxy) Sector(sx, sy int) *world.Sector {
	if s, ok := f.sectors[[2]int{sx, sy}]; ok {
		return s
	}
	return &world.Sector{SX: sx, SY: sy}
}

func (f *fixtureGalaxy) SectorSize() float64 { return f.size }

type sentEvent struct {
	userID int64
	event  string
	data   any
}

// recorder captures everything the engine emits.
type recorder struct {
	mu     sync.Mutex
	events []sentEvent
}

func (r *recorder) Send(userID int64, event string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, sentEvent{userID: userID, event: event, data: data})
}

func (r *recorder) BroadcastAll(event string, data any) {
	r.Send(0, event, data)
}

func (r *recorder) count(userID int64, event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.userID == userID && ev.event == event {
			n++
		}
	}
	return n
}

func (r *recorder) last(userID int64, event string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].userID == userID && r.events[i].event == event {
			return r.events[i].data, true
		}
	}
	return nil, false
}

func engineBalance() *config.Balance {
	return &config.Balance{
		Game: config.GameBalance{
			TierMultiplier:       1.5,
			ShieldTierMultiplier: 1.4,
			StartingCredits:      500,
			DefaultHullHP:        100,
			DefaultShieldHP:      50,
			BaseSpeed:            200,
			BaseRadarRange:       400,
			BaseMiningTimeMS:     4000,
			BaseMiningYield:      5,
			BaseWeaponDamage:     10,
			BaseWeaponCooldownMS: 500,
			BaseProjectileSpeed:  500,
			ProjectileLifeMS:     2000,
			ShieldRegenPerSec:    2,
			ShieldRegenDelayMS:   5000,
			Drag:                 0.98,
			StarGravity:          50000,
			StarDamagePerSec:     20,
			RespawnDelayMS:       3000,
			InvulnerabilityMS:    3000,
			LootCollectMS:        3000,
			WreckageDecayMS:      30000,
			BoostMultiplier:      1.8,
		},
		World: config.WorldTuning{
			SectorSize:          2000,
			StarSizeMax:         300,
			StarOriginExclusion: 2,
		},
		Wormhole: config.WormholeTuning{
			Range:              150,
			ExitOffset:         200,
			SelectionTimeoutMS: 15000,
			TransitDurationMS:  4000,
			MaxDestinations:    5,
			SearchRings:        20,
		},
		CargoCapacity: []int64{100, 175, 275, 400, 600},
		EnergyCore: config.EnergyCoreTable{
			CooldownReduction: []float64{0, 0.05, 0.1, 0.15, 0.2},
			ShieldRegenBonus:  []float64{0, 0.5, 1, 1.5, 2},
			BoostDurationMS:   []int{2000, 2200, 2400, 2600, 3000},
			BoostCooldownMS:   []int{10000, 9000, 8000, 7000, 6000},
		},
	}
}

type engineHarness struct {
	t   *testing.T
	e   *Engine
	st  *store.Store
	rec *recorder
	now time.Time
}

func newHarness(t *testing.T, sectors map[[2]int]*world.Sector) *engineHarness {
	t.Helper()
	st, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	bal := engineBalance()
	galaxy := &fixtureGalaxy{size: bal.World.SectorSize, sectors: sectors}
	cfg := &config.Config{TickMS: 50, PersistMS: 0, PositionSyncMS: 0}

	h := &engineHarness{
		t:   t,
		st:  st,
		rec: &recorder{},
		now: time.UnixMilli(10_000_000),
	}
	h.e = NewEngine(cfg, bal, galaxy, world.NewGrid(bal.World.SectorSize), st, zerolog.Nop())
	h.e.SetSender(h.rec)
	h.e.nowFn = func() time.Time { return h.now }
	return h
}

// advance moves the clock and runs one step at the new instant.
func (h *engineHarness) advance(d time.Duration) {
	h.now = h.now.Add(d)
	h.e.step(h.now, 0.05)
}

func (h *engineHarness) join(userID int64, name string, x, y float64) {
	h.t.Helper()
	h.e.Join(&store.Ship{
		UserID:    userID,
		PositionX: x,
		PositionY: y,
		HullHP:    100, HullMax: 100,
		ShieldHP: 50, ShieldMax: 50,
		EngineTier: 1, WeaponTier: 1, ShieldTier: 1, MiningTier: 1,
		CargoTier: 1, RadarTier: 1, EnergyCoreTier: 1, HullTier: 1,
		WeaponType: "laser",
	}, name)
}

func (h *engineHarness) player(userID int64) *Player {
	h.t.Helper()
	h.e.mu.Lock()
	defer h.e.mu.Unlock()
	p, ok := h.e.players[userID]
	require.True(h.t, ok, "player %d not in simulation", userID)
	return p
}

func asteroidSector(x, y float64, resources ...string) *world.Sector {
	if len(resources) == 0 {
		resources = []string{"IRON"}
	}
	return &world.Sector{
		SX: 0, SY: 0,
		Objects: []*world.Object{{
			ID:        "sector_0_0_ast_0",
			Kind:      world.KindAsteroid,
			X:         x,
			Y:         y,
			Size:      10,
			Resources: resources,
		}},
	}
}

// --- mining ---

func TestMiningCompletesAndDepletes(t *testing.T) {
	h := newHarness(t, map[[2]int]*world.Sector{
		{0, 0}: asteroidSector(50, 0),
	})
	h.join(1, "miner", 0, 0)

	started, err := h.e.StartMining(1, "sector_0_0_ast_0")
	require.NoError(t, err)
	assert.Equal(t, "IRON", started.Resource)
	assert.Equal(t, int64(4000), started.DurationMS)

	// Mid-beam nothing has landed yet.
	h.advance(2 * time.Second)
	assert.Zero(t, h.rec.count(1, EvMiningComplete))

	h.advance(2100 * time.Millisecond)
	require.Equal(t, 1, h.rec.count(1, EvMiningComplete))
	data, _ := h.rec.last(1, EvMiningComplete)
	payload := data.(map[string]any)
	assert.Equal(t, "sector_0_0_ast_0", payload["object_id"])
	assert.Equal(t, "IRON", payload["resource"])
	assert.Equal(t, int64(5), payload["quantity"])
	assert.GreaterOrEqual(t, h.rec.count(1, EvObjectDepleted), 1)

	items, err := h.st.Inventory(t.Context(), 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "IRON", items[0].ResourceType)
	assert.Equal(t, int64(5), items[0].Quantity)

	// The vein is spent for the rest of the process lifetime.
	_, err = h.e.StartMining(1, "sector_0_0_ast_0")
	assert.ErrorIs(t, err, ErrDepleted)
}

func TestMiningRangeAndTargetValidation(t *testing.T) {
	h := newHarness(t, map[[2]int]*world.Sector{
		{0, 0}: asteroidSector(800, 0),
	})
	h.join(1, "miner", 0, 0)

	_, err := h.e.StartMining(1, "sector_0_0_ast_0")
	assert.ErrorIs(t, err, ErrTooFar)
	assert.EqualError(t, err, "Too far from resource")

	_, err = h.e.StartMining(1, "sector_0_0_ast_99")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	_, err = h.e.StartMining(99, "sector_0_0_ast_0")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestMiningCancelIsIdempotent(t *testing.T) {
	h := newHarness(t, map[[2]int]*world.Sector{
		{0, 0}: asteroidSector(50, 0),
	})
	h.join(1, "miner", 0, 0)

	// Cancel with nothing running is a no-op.
	assert.NotPanics(t, func() { h.e.CancelMining(1) })

	_, err := h.e.StartMining(1, "sector_0_0_ast_0")
	require.NoError(t, err)
	h.e.CancelMining(1)
	h.e.CancelMining(1)

	// The armed completion never fires.
	h.advance(5 * time.Second)
	assert.Zero(t, h.rec.count(1, EvMiningComplete))
	total, err := h.st.InventoryTotal(t.Context(), 1)
	require.NoError(t, err)
	assert.Zero(t, total)

	// The object is untouched and can be mined again.
	_, err = h.e.StartMining(1, "sector_0_0_ast_0")
	assert.NoError(t, err)
}

func TestMiningDepletionRace(t *testing.T) {
	h := newHarness(t, map[[2]int]*world.Sector{
		{0, 0}: asteroidSector(50, 0),
	})
	h.join(1, "first", 0, 0)
	h.join(2, "second", 60, 0)

	_, err := h.e.StartMining(1, "sector_0_0_ast_0")
	require.NoError(t, err)
	h.advance(time.Second)
	_, err = h.e.StartMining(2, "sector_0_0_ast_0")
	require.NoError(t, err)

	// Both completions fire; only the first one credits the vein.
	h.advance(10 * time.Second)
	assert.Equal(t, 1, h.rec.count(1, EvMiningComplete))
	assert.Zero(t, h.rec.count(2, EvMiningComplete))
	assert.Equal(t, 1, h.rec.count(2, EvMiningError))

	total1, err := h.st.InventoryTotal(t.Context(), 1)
	require.NoError(t, err)
	total2, err := h.st.InventoryTotal(t.Context(), 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total1+total2)
}

func TestMiningDoubleStartAndBusy(t *testing.T) {
	h := newHarness(t, map[[2]int]*world.Sector{
		{0, 0}: asteroidSector(50, 0),
	})
	h.join(1, "miner", 0, 0)

	_, err := h.e.StartMining(1, "sector_0_0_ast_0")
	require.NoError(t, err)
	_, err = h.e.StartMining(1, "sector_0_0_ast_0")
	assert.ErrorIs(t, err, ErrAlreadyMining)

	// One exclusive session at a time: transit is refused while mining.
	_, err = h.e.EnterWormhole(1, "sector_0_0_wormhole_0")
	assert.ErrorIs(t, err, ErrBusy)
}

// --- wormholes ---

func wormholeFixture() map[[2]int]*world.Sector {
	return map[[2]int]*world.Sector{
		{0, 0}: {SX: 0, SY: 0, Objects: []*world.Object{{
			ID:   "sector_0_0_wormhole_0",
			Kind: world.KindWormhole,
			X:    100, Y: 0, Size: 20,
		}}},
		{2, 0}: {SX: 2, SY: 0, Objects: []*world.Object{{
			ID:   "sector_2_0_wormhole_0",
			Kind: world.KindWormhole,
			X:    4100, Y: 300, Size: 25,
		}}},
	}
}

func TestWormholeTransit(t *testing.T) {
	h := newHarness(t, wormholeFixture())
	require.NoError(t, h.st.GrantRelic(t.Context(), 1, WormholeGem))
	h.join(1, "traveller", 120, 0)

	dests, err := h.e.EnterWormhole(1, "sector_0_0_wormhole_0")
	require.NoError(t, err)
	require.Len(t, dests, 1)
	assert.Equal(t, "sector_2_0_wormhole_0", dests[0].ID, "the entry hole never offers itself")
	assert.Equal(t, 2, dests[0].SectorX)

	require.NoError(t, h.e.SelectDestination(1, dests[0].ID))
	p := h.player(1)
	assert.Equal(t, StateInTransit, p.State)

	info, err := h.e.TransitProgress(1)
	require.NoError(t, err)
	assert.Equal(t, "transit", info.Phase)

	h.advance(4100 * time.Millisecond)
	require.Equal(t, 1, h.rec.count(1, EvWormholeExitComplete))

	p = h.player(1)
	d := math.Hypot(p.X-4100, p.Y-300)
	assert.InDelta(t, 200, d, 1e-6, "exit lands on the offset ring around the destination")
	assert.Equal(t, StateInvulnerable, p.State)
	assert.Zero(t, p.VX)
	assert.Zero(t, p.VY)

	// The arrival grace wears off.
	h.advance(3100 * time.Millisecond)
	assert.Equal(t, StateAlive, h.player(1).State)

	_, err = h.e.TransitProgress(1)
	assert.ErrorIs(t, err, ErrNoTransit)
}

func TestWormholeSelectionTimeout(t *testing.T) {
	h := newHarness(t, wormholeFixture())
	require.NoError(t, h.st.GrantRelic(t.Context(), 1, WormholeGem))
	h.join(1, "traveller", 120, 0)

	dests, err := h.e.EnterWormhole(1, "sector_0_0_wormhole_0")
	require.NoError(t, err)

	h.advance(15100 * time.Millisecond)
	assert.Equal(t, 1, h.rec.count(1, EvWormholeCancelled))

	// The lapsed selection left nothing behind.
	err = h.e.SelectDestination(1, dests[0].ID)
	assert.ErrorIs(t, err, ErrNoTransit)
	assert.Equal(t, StateAlive, h.player(1).State)
}

func TestWormholeCancelOnlyWhileSelecting(t *testing.T) {
	h := newHarness(t, wormholeFixture())
	require.NoError(t, h.st.GrantRelic(t.Context(), 1, WormholeGem))
	h.join(1, "traveller", 120, 0)

	_, err := h.e.EnterWormhole(1, "sector_0_0_wormhole_0")
	require.NoError(t, err)
	require.NoError(t, h.e.CancelTransit(1))
	assert.ErrorIs(t, h.e.CancelTransit(1), ErrNoTransit)

	dests, err := h.e.EnterWormhole(1, "sector_0_0_wormhole_0")
	require.NoError(t, err)
	require.NoError(t, h.e.SelectDestination(1, dests[0].ID))

	// Once the crossing started there is no way back.
	err = h.e.CancelTransit(1)
	assert.ErrorIs(t, err, ErrTransitLocked)
	assert.EqualError(t, err, "Cannot cancel during transit")
}

func TestWormholeGating(t *testing.T) {
	h := newHarness(t, wormholeFixture())
	h.join(1, "traveller", 120, 0)

	// No gem, no transit.
	_, err := h.e.EnterWormhole(1, "sector_0_0_wormhole_0")
	assert.ErrorIs(t, err, ErrGemRequired)

	require.NoError(t, h.st.GrantRelic(t.Context(), 1, WormholeGem))

	// Too far from the mouth.
	far := h.player(1)
	h.e.mu.Lock()
	far.X = 1000
	h.e.mu.Unlock()
	_, err = h.e.EnterWormhole(1, "sector_0_0_wormhole_0")
	assert.ErrorIs(t, err, ErrTooFarWormhole)

	// Selecting something that was never offered.
	h.e.mu.Lock()
	far.X = 120
	h.e.mu.Unlock()
	_, err = h.e.EnterWormhole(1, "sector_0_0_wormhole_0")
	require.NoError(t, err)
	err = h.e.SelectDestination(1, "sector_9_9_wormhole_0")
	assert.ErrorIs(t, err, ErrInvalidDestination)
}

func TestWormholeNoDestinations(t *testing.T) {
	h := newHarness(t, map[[2]int]*world.Sector{
		{0, 0}: {SX: 0, SY: 0, Objects: []*world.Object{{
			ID:   "sector_0_0_wormhole_0",
			Kind: world.KindWormhole,
			X:    100, Y: 0, Size: 20,
		}}},
	})
	require.NoError(t, h.st.GrantRelic(t.Context(), 1, WormholeGem))
	h.join(1, "traveller", 120, 0)

	_, err := h.e.EnterWormhole(1, "sector_0_0_wormhole_0")
	assert.ErrorIs(t, err, ErrNoDestinations)
	assert.EqualError(t, err, "No destination wormholes available")
}

func TestNearestWormhole(t *testing.T) {
	h := newHarness(t, wormholeFixture())
	h.join(1, "traveller", 0, 0)

	dest, err := h.e.NearestWormhole(1)
	require.NoError(t, err)
	assert.Equal(t, "sector_0_0_wormhole_0", dest.ID)
	assert.InDelta(t, 100, dest.Distance, 1e-9)
}

// --- interest management ---

func TestInterestFiltering(t *testing.T) {
	h := newHarness(t, nil)
	h.join(1, "shooter", 0, 0)
	// Radar tier 1 doubles the 400 base range: interest radius 800.
	h.join(2, "outside", 801, 0)

	require.NoError(t, h.e.Fire(1, 0))
	assert.Zero(t, h.rec.count(2, EvWeaponFired), "peer outside the interest radius hears nothing")

	// Bring the peer just inside and fire again after the cooldown.
	h.e.Leave(2)
	h.join(2, "inside", 799, 0)
	h.advance(600 * time.Millisecond)
	require.NoError(t, h.e.Fire(1, 0))
	assert.Equal(t, 1, h.rec.count(2, EvWeaponFired))

	// The origin player never receives its own interest broadcast.
	assert.Zero(t, h.rec.count(1, EvWeaponFired))
}

func TestFireCooldown(t *testing.T) {
	h := newHarness(t, nil)
	h.join(1, "shooter", 0, 0)

	require.NoError(t, h.e.Fire(1, 0))
	assert.ErrorIs(t, h.e.Fire(1, 0), ErrWeaponCooling)

	h.advance(600 * time.Millisecond)
	assert.NoError(t, h.e.Fire(1, 0))
}

// --- death and respawn ---

func TestDeathAndRespawn(t *testing.T) {
	h := newHarness(t, nil)
	h.join(1, "victim", 0, 0)

	p := h.player(1)
	h.e.mu.Lock()
	h.e.damagePlayer(p, 1000, h.now)
	h.e.mu.Unlock()

	assert.Equal(t, StateDead, p.State)
	assert.Equal(t, 1, h.rec.count(1, EvPlayerDeath))

	// Dead ships take no further damage and run no commands.
	h.e.mu.Lock()
	h.e.damagePlayer(p, 1000, h.now)
	h.e.mu.Unlock()
	assert.Equal(t, 1, h.rec.count(1, EvPlayerDeath))
	_, err := h.e.StartMining(1, "anything")
	assert.ErrorIs(t, err, ErrDead)

	h.advance(3100 * time.Millisecond)
	p = h.player(1)
	assert.Equal(t, StateInvulnerable, p.State)
	assert.Equal(t, p.HullMax, p.HullHP)
	assert.Equal(t, p.ShieldMax, p.ShieldHP)
	assert.Equal(t, 1, h.rec.count(1, EvPlayerRespawn))

	// Shots bounce off the respawn grace, then it expires.
	h.e.mu.Lock()
	h.e.damagePlayer(p, 30, h.now)
	h.e.mu.Unlock()
	assert.Equal(t, p.HullMax, p.HullHP)

	h.advance(3100 * time.Millisecond)
	assert.Equal(t, StateAlive, h.player(1).State)
}

// --- movement ---

func TestMovementClampsSpeedAndTeleports(t *testing.T) {
	h := newHarness(t, nil)
	h.join(1, "pilot", 0, 0)

	// Tier-1 max speed is 200; a fresh connection gets a two-second
	// reachability window, so the teleport cap is 200 * 2 * 1.5 = 600.
	h.e.UpdateMovement(1, 10_000, 0, 9_999, 0, 0.5, false)
	h.advance(50 * time.Millisecond)

	p := h.player(1)
	assert.LessOrEqual(t, p.X, 601.0)
	assert.Greater(t, p.X, 0.0)
	assert.InDelta(t, 200, math.Hypot(p.VX, p.VY), 1e-6)
	assert.Equal(t, 0.5, p.Rotation)
}

func TestMovementIgnoredWhileDeadOrAbsent(t *testing.T) {
	h := newHarness(t, nil)
	h.join(1, "pilot", 0, 0)

	p := h.player(1)
	h.e.mu.Lock()
	h.e.damagePlayer(p, 1000, h.now)
	h.e.mu.Unlock()

	h.e.UpdateMovement(1, 50, 50, 0, 0, 0, false)
	h.e.UpdateMovement(99, 50, 50, 0, 0, 0, false)
	h.advance(50 * time.Millisecond)
	assert.Zero(t, h.player(1).X)
}

// --- presence and nearby ---

func TestJoinLeaveAndNearby(t *testing.T) {
	h := newHarness(t, map[[2]int]*world.Sector{
		{0, 0}: asteroidSector(50, 0),
	})
	h.join(1, "first", 0, 0)
	assert.True(t, h.e.IsOnline(1))

	h.join(2, "second", 100, 0)
	state, err := h.e.Nearby(1)
	require.NoError(t, err)
	require.Len(t, state.Objects, 1)
	assert.Equal(t, "sector_0_0_ast_0", state.Objects[0].ID)
	assert.False(t, state.Objects[0].Depleted)
	require.Len(t, state.Players, 1)
	assert.Equal(t, "second", state.Players[0].Username)

	// Deplete the asteroid and ask again.
	_, err = h.e.StartMining(1, "sector_0_0_ast_0")
	require.NoError(t, err)
	h.advance(4100 * time.Millisecond)
	state, err = h.e.Nearby(1)
	require.NoError(t, err)
	assert.True(t, state.Objects[0].Depleted)
	assert.Equal(t, []string{"sector_0_0_ast_0"}, state.Depleted)

	h.e.Leave(2)
	assert.False(t, h.e.IsOnline(2))
	state, err = h.e.Nearby(1)
	require.NoError(t, err)
	assert.Empty(t, state.Players)

	_, err = h.e.Nearby(2)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestLeaveCancelsSessions(t *testing.T) {
	h := newHarness(t, map[[2]int]*world.Sector{
		{0, 0}: asteroidSector(50, 0),
	})
	h.join(1, "miner", 0, 0)

	_, err := h.e.StartMining(1, "sector_0_0_ast_0")
	require.NoError(t, err)
	h.e.Leave(1)

	h.advance(5 * time.Second)
	assert.Zero(t, h.rec.count(1, EvMiningComplete))
	total, err := h.st.InventoryTotal(t.Context(), 1)
	require.NoError(t, err)
	assert.Zero(t, total)
}
