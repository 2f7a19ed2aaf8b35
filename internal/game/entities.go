/*
Package game
File: entities.go
Description:
    In-memory simulation entities. Everything here is volatile: the durable
    source of truth for players is the ships table, flushed on the persistence
    cadence, while NPCs, projectiles, wreckage and area effects live and die
    with the process.
*/

package game

import (
	"time"

	"github.com/everforgeworks/galaxies-deepspace/internal/config"
)

// PlayerState is the player lifecycle tag.
type PlayerState uint8

const (
	StateAlive PlayerState = iota
	StateDead
	StateInvulnerable
	StateInTransit
)

func (s PlayerState) String() string {
	switch s {
	case StateAlive:
		return "ALIVE"
	case StateDead:
		return "DEAD"
	case StateInvulnerable:
		return "INVULNERABLE"
	case StateInTransit:
		return "IN_TRANSIT"
	}
	return "UNKNOWN"
}

// Player is the live simulation view of one connected ship.
type Player struct {
	UserID   int64
	Username string

	X, Y     float64
	VX, VY   float64
	Rotation float64

	HullHP, HullMax     float64
	ShieldHP, ShieldMax float64

	EngineTier     int
	WeaponTier     int
	ShieldTier     int
	MiningTier     int
	CargoTier      int
	RadarTier      int
	EnergyCoreTier int
	HullTier       int

	WeaponType  string
	ShipColorID int
	ProfileID   int

	State      PlayerState
	lastHitAt  time.Time
	lastFireAt time.Time
	lastMoveAt time.Time

	boostUntil   time.Time
	boostReadyAt time.Time
	slowUntil    time.Time
	slowFactor   float64

	// dirty marks the row for the next persistence batch.
	dirty bool
}

func (p *Player) entityID() string { return entityID("player", p.UserID) }

// canAct reports whether the player may issue world-affecting commands.
func (p *Player) canAct() bool {
	return p.State == StateAlive || p.State == StateInvulnerable
}

// NPCState drives the faction AI. Transitions run one way toward NPCDead.
type NPCState uint8

const (
	NPCIdle NPCState = iota
	NPCPatrol
	NPCEngage
	NPCFlank
	NPCRetreat
	NPCDead
)

// NPC is a faction ship owned entirely by the engine.
type NPC struct {
	ID      string
	Faction config.FactionConfig

	X, Y     float64
	VX, VY   float64
	Rotation float64

	HullHP, HullMax     float64
	ShieldHP, ShieldMax float64

	State      NPCState
	TargetID   int64 // engaged player, 0 if none
	lastFireAt time.Time

	// Patrol anchor; NPCs orbit their spawn point while idle.
	HomeX, HomeY float64
	patrolPhase  float64
}

// ProjectileOwner tags who fired a projectile.
type ProjectileOwner uint8

const (
	OwnerPlayer ProjectileOwner = iota
	OwnerNPC
)

// Projectile is one in-flight shot. A projectile may carry an assigned
// target; it hits on proximity or on its expected arrival time, whichever
// comes first.
type Projectile struct {
	ID        string
	Owner     ProjectileOwner
	OwnerUser int64  // when Owner == OwnerPlayer
	OwnerNPC  string // when Owner == OwnerNPC
	TargetID  string // entity id, may be empty for a free shot

	X, Y   float64
	VX, VY float64
	Damage float64

	ExpiresAt time.Time
	ArriveAt  time.Time // zero when no target assigned
}

// EffectKind tags an area effect.
type EffectKind string

const (
	EffectWeb  EffectKind = "web"
	EffectAcid EffectKind = "acid"
)

// AreaEffect is a ground zone that slows or damages entities inside it.
type AreaEffect struct {
	ID   string
	Kind EffectKind

	X, Y   float64
	Radius float64

	SlowFactor   float64 // velocity multiplier while inside (web)
	DamagePerSec float64 // hull damage per second while inside (acid)

	ExpiresAt time.Time
}

// Wreckage is the transient loot container an NPC leaves behind.
type Wreckage struct {
	ID   string
	X, Y float64

	Credits   int64
	Resources map[string]int64
	Relics    []string

	ExpiresAt time.Time
}

// MiningSession binds one player to one object until completion or cancel.
// Movement does not break the session; the beam stays locked.
type MiningSession struct {
	UserID   int64
	ObjectID string
	Resource string
	StartAt  time.Time

	ev *timedEvent
}

// LootSession is the wreckage analogue of a mining session.
type LootSession struct {
	UserID     int64
	WreckageID string
	StartAt    time.Time

	ev *timedEvent
}

// TransitPhase is the wormhole sub-state.
type TransitPhase uint8

const (
	PhaseSelecting TransitPhase = iota
	PhaseTransit
)

// Destination is one candidate exit offered at wormhole entry.
type Destination struct {
	ID       string  `json:"id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Distance float64 `json:"distance"`
	SectorX  int     `json:"sector_x"`
	SectorY  int     `json:"sector_y"`
}

// Transit is one active wormhole crossing. Cancellation is valid only while
// selecting; once in transit the crossing always completes.
type Transit struct {
	UserID       int64
	EntryID      string
	Phase        TransitPhase
	Destinations []Destination
	ChosenID     string
	StartAt      time.Time

	ev *timedEvent // selection timeout or transit completion
}
