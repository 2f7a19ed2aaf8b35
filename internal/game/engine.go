/*
Package game
File: engine.go
Description:
    The fixed-step simulation engine. One goroutine advances time at the
    tick cadence under a single mutex; connection readers post movement
    intents through a buffered channel consumed at the top of each tick,
    and every other command enters through an exported method that takes
    the same mutex. Phase order within a tick is fixed: intents, physics,
    NPC AI, projectiles, area effects, hazards, timed events, persistence.
    A panic inside any per-entity phase is contained to that entity.
*/

package game

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/everforgeworks/galaxies-deepspace/internal/config"
	"github.com/everforgeworks/galaxies-deepspace/internal/store"
	"github.com/everforgeworks/galaxies-deepspace/internal/world"
)

// Sender is the broadcast surface the engine writes to. The websocket hub
// implements it; tests plug in a recorder.
type Sender interface {
	Send(userID int64, event string, data any)
	BroadcastAll(event string, data any)
}

const (
	maxCatchUpTicks = 3

	muzzleOffset        = 24.0
	projectileHitRadius = 24.0
	npcFireRange        = 600.0
	miningRange         = 150.0
	lootRange           = 120.0
	starHazardFactor    = 1.5
)

type intent struct {
	userID       int64
	x, y, vx, vy float64
	rotation     float64
	boost        bool
}

// Engine owns all volatile simulation state.
type Engine struct {
	cfg    *config.Config
	bal    *config.Balance
	galaxy world.SectorSource
	grid   *world.Grid
	store  *store.Store
	log    zerolog.Logger

	mu     sync.Mutex
	sender Sender

	players     map[int64]*Player
	npcs        map[string]*NPC
	projectiles map[string]*Projectile
	effects     map[string]*AreaEffect
	wrecks      map[string]*Wreckage

	mining   map[int64]*MiningSession
	looting  map[int64]*LootSession
	transits map[int64]*Transit

	depleted map[string]struct{}
	seeded   map[[2]int]struct{}

	events  *eventQueue
	intents chan intent

	nowFn       func() time.Time
	lastPersist time.Time
	persistBusy bool

	rng *rand.Rand
	seq uint64

	done chan struct{}
	wg   sync.WaitGroup
}

func NewEngine(cfg *config.Config, bal *config.Balance, galaxy world.SectorSource, grid *world.Grid, st *store.Store, log zerolog.Logger) *Engine {
	return &Engine{
		cfg:         cfg,
		bal:         bal,
		galaxy:      galaxy,
		grid:        grid,
		store:       st,
		log:         log.With().Str("category", "engine").Logger(),
		players:     make(map[int64]*Player),
		npcs:        make(map[string]*NPC),
		projectiles: make(map[string]*Projectile),
		effects:     make(map[string]*AreaEffect),
		wrecks:      make(map[string]*Wreckage),
		mining:      make(map[int64]*MiningSession),
		looting:     make(map[int64]*LootSession),
		transits:    make(map[int64]*Transit),
		depleted:    make(map[string]struct{}),
		seeded:      make(map[[2]int]struct{}),
		events:      newEventQueue(),
		intents:     make(chan intent, 1024),
		nowFn:       time.Now,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		done:        make(chan struct{}),
	}
}

// SetSender attaches the broadcast surface. Called once during wiring,
// before Run.
func (e *Engine) SetSender(s Sender) {
	e.mu.Lock()
	e.sender = s
	e.mu.Unlock()
}

// Run starts the tick loop. Jitter accumulates into catch-up steps, capped
// so a long stall cannot spiral.
func (e *Engine) Run() {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		tick := time.Duration(e.cfg.TickMS) * time.Millisecond
		ticker := time.NewTicker(tick)
		defer ticker.Stop()

		last := e.nowFn()
		for {
			select {
			case <-e.done:
				return
			case <-ticker.C:
				now := e.nowFn()
				steps := int(now.Sub(last) / tick)
				if steps < 1 {
					steps = 1
				}
				if steps > maxCatchUpTicks {
					steps = maxCatchUpTicks
				}
				dt := tick.Seconds()
				for i := 0; i < steps; i++ {
					e.step(now, dt)
				}
				last = now
			}
		}
	}()
}

// Stop halts the loop and flushes every dirty ship synchronously.
func (e *Engine) Stop() {
	close(e.done)
	e.wg.Wait()
	e.flushDirty(context.Background(), true)
}

// step is one simulation tick. Exported commands share e.mu with this, so a
// command observes either the world before the tick or after it, never a
// half-applied phase.
func (e *Engine) step(now time.Time, dt float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.drainIntents(now, dt)
	e.physicsTick(now, dt)
	e.npcTick(now, dt)
	e.projectileTick(now, dt)
	e.effectTick(now, dt)
	e.hazardTick(now, dt)
	e.events.fireDue(now)

	if e.cfg.PersistMS > 0 && now.Sub(e.lastPersist) >= time.Duration(e.cfg.PersistMS)*time.Millisecond {
		e.lastPersist = now
		e.flushDirty(context.Background(), false)
	}
}

// guard contains a panicking entity handler to that entity for this tick.
func (e *Engine) guard(entity string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Str("entity", entity).Interface("panic", r).Msg("tick handler fault, entity skipped")
		}
	}()
	fn()
}

// --- join / leave ---

// PlayerSnapshot is the public view of a player sent to other clients.
type PlayerSnapshot struct {
	ID          int64   `json:"id"`
	Username    string  `json:"username"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	VX          float64 `json:"vx"`
	VY          float64 `json:"vy"`
	Rotation    float64 `json:"rotation"`
	HullHP      float64 `json:"hull_hp"`
	HullMax     float64 `json:"hull_max"`
	ShieldHP    float64 `json:"shield_hp"`
	ShieldMax   float64 `json:"shield_max"`
	WeaponType  string  `json:"weapon_type"`
	ShipColorID int     `json:"ship_color_id"`
	ProfileID   int     `json:"profile_id"`
	State       string  `json:"state"`
}

func snapshot(p *Player) PlayerSnapshot {
	return PlayerSnapshot{
		ID:          p.UserID,
		Username:    p.Username,
		X:           p.X,
		Y:           p.Y,
		VX:          p.VX,
		VY:          p.VY,
		Rotation:    p.Rotation,
		HullHP:      p.HullHP,
		HullMax:     p.HullMax,
		ShieldHP:    p.ShieldHP,
		ShieldMax:   p.ShieldMax,
		WeaponType:  p.WeaponType,
		ShipColorID: p.ShipColorID,
		ProfileID:   p.ProfileID,
		State:       p.State.String(),
	}
}

// Join brings a ship row into the live simulation. A rejoin over a live
// player (reconnect) replaces the old entry in place.
func (e *Engine) Join(ship *store.Ship, username string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := &Player{
		UserID:         ship.UserID,
		Username:       username,
		X:              ship.PositionX,
		Y:              ship.PositionY,
		VX:             ship.VelocityX,
		VY:             ship.VelocityY,
		Rotation:       ship.Rotation,
		HullHP:         ship.HullHP,
		HullMax:        ship.HullMax,
		ShieldHP:       ship.ShieldHP,
		ShieldMax:      ship.ShieldMax,
		EngineTier:     ship.EngineTier,
		WeaponTier:     ship.WeaponTier,
		ShieldTier:     ship.ShieldTier,
		MiningTier:     ship.MiningTier,
		CargoTier:      ship.CargoTier,
		RadarTier:      ship.RadarTier,
		EnergyCoreTier: ship.EnergyCoreTier,
		HullTier:       ship.HullTier,
		WeaponType:     ship.WeaponType,
		ShipColorID:    ship.ShipColorID,
		ProfileID:      ship.ProfileID,
		State:          StateAlive,
	}
	e.players[p.UserID] = p
	e.grid.Insert(p.entityID(), world.EntityPlayer, p.X, p.Y)
	e.seedAround(p)
	e.broadcastFrom(p, EvPlayerJoined, snapshot(p))
	e.log.Info().Int64("user_id", p.UserID).Str("username", username).Msg("player joined simulation")
}

// Leave tears a player down: sessions cancelled, index entry removed, final
// position written best-effort, departure broadcast to the interest set.
func (e *Engine) Leave(userID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.players[userID]
	if !ok {
		return
	}
	e.clearSessions(userID)
	e.broadcastFrom(p, EvPlayerLeave, map[string]any{"id": userID})
	e.grid.Remove(p.entityID())
	delete(e.players, userID)

	sx, sy := world.SectorOf(p.X, p.Y, e.galaxy.SectorSize())
	if err := e.store.SaveShipState(context.Background(), userID, p.X, p.Y, p.VX, p.VY, p.Rotation, p.HullHP, p.ShieldHP, sx, sy); err != nil {
		e.log.Warn().Err(err).Int64("user_id", userID).Msg("final position write failed")
	}
	e.log.Info().Int64("user_id", userID).Msg("player left simulation")
}

// clearSessions cancels any active mining, loot or transit for a user.
// Callers hold e.mu.
func (e *Engine) clearSessions(userID int64) {
	if s, ok := e.mining[userID]; ok {
		s.ev.Cancel()
		delete(e.mining, userID)
	}
	if s, ok := e.looting[userID]; ok {
		s.ev.Cancel()
		delete(e.looting, userID)
	}
	if t, ok := e.transits[userID]; ok {
		t.ev.Cancel()
		delete(e.transits, userID)
	}
}

// busy reports whether the user already has an exclusive session. At most
// one of mining, loot and transit may be active at a time.
func (e *Engine) busy(userID int64) bool {
	if _, ok := e.mining[userID]; ok {
		return true
	}
	if _, ok := e.looting[userID]; ok {
		return true
	}
	if _, ok := e.transits[userID]; ok {
		return true
	}
	return false
}

// IsOnline reports whether the user is in the live simulation.
func (e *Engine) IsOnline(userID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.players[userID]
	return ok
}

// --- movement ---

// UpdateMovement posts a client movement intent. Never blocks; if the queue
// is full the intent is dropped, the next one supersedes it anyway.
func (e *Engine) UpdateMovement(userID int64, x, y, vx, vy, rotation float64, boost bool) {
	select {
	case e.intents <- intent{userID: userID, x: x, y: y, vx: vx, vy: vy, rotation: rotation, boost: boost}:
	default:
	}
}

func (e *Engine) drainIntents(now time.Time, dt float64) {
	throttle := time.Duration(e.cfg.PositionSyncMS) * time.Millisecond
	for {
		select {
		case in := <-e.intents:
			p, ok := e.players[in.userID]
			if !ok || !p.canAct() {
				continue
			}
			if throttle > 0 && now.Sub(p.lastMoveAt) < throttle {
				continue
			}
			e.guard(p.entityID(), func() {
				e.applyIntent(p, in, now, dt)
			})
		default:
			return
		}
	}
}

func (e *Engine) applyIntent(p *Player, in intent, now time.Time, dt float64) {
	if in.boost && now.After(p.boostReadyAt) {
		idx := tierIndex(p.EnergyCoreTier)
		p.boostUntil = now.Add(time.Duration(e.bal.EnergyCore.BoostDurationMS[idx]) * time.Millisecond)
		p.boostReadyAt = now.Add(time.Duration(e.bal.EnergyCore.BoostCooldownMS[idx]) * time.Millisecond)
	}

	maxSpeed := e.bal.Tiered(e.bal.Game.BaseSpeed, p.EngineTier)
	if now.Before(p.boostUntil) {
		maxSpeed *= e.bal.Game.BoostMultiplier
	}

	vx, vy := clampVector(in.vx, in.vy, maxSpeed)

	// The client owns smoothing; the server only rejects teleports. Allow
	// up to the reachable distance since the last accepted update plus a
	// latency margin.
	elapsed := now.Sub(p.lastMoveAt).Seconds()
	if p.lastMoveAt.IsZero() || elapsed > 2 {
		elapsed = 2
	}
	if elapsed < dt {
		elapsed = dt
	}
	limit := maxSpeed * elapsed * 1.5
	dx, dy := in.x-p.X, in.y-p.Y
	if d := math.Hypot(dx, dy); d > limit && d > 0 {
		dx, dy = dx/d*limit, dy/d*limit
	}

	p.X += dx
	p.Y += dy
	p.VX, p.VY = vx, vy
	p.Rotation = in.rotation
	p.lastMoveAt = now
	p.dirty = true
	e.grid.Move(p.entityID(), p.X, p.Y)
	e.seedAround(p)

	e.broadcastFrom(p, EvPlayerMoved, map[string]any{
		"id": p.UserID, "x": p.X, "y": p.Y,
		"vx": p.VX, "vy": p.VY, "rotation": p.Rotation,
	})
}

// --- physics ---

func (e *Engine) physicsTick(now time.Time, dt float64) {
	for _, p := range e.players {
		if p.State == StateDead || p.State == StateInTransit {
			continue
		}
		e.guard(p.entityID(), func() {
			e.integratePlayer(p, now, dt)
		})
	}
}

func (e *Engine) integratePlayer(p *Player, now time.Time, dt float64) {
	p.VX *= math.Pow(e.bal.Game.Drag, dt)
	p.VY *= math.Pow(e.bal.Game.Drag, dt)

	if now.Before(p.slowUntil) && p.slowFactor > 0 {
		p.VX *= p.slowFactor
		p.VY *= p.slowFactor
	}

	if star := e.nearestStar(p.X, p.Y, now); star != nil {
		sx, sy := star.PositionAt(now)
		d := math.Hypot(sx-p.X, sy-p.Y)
		if d > 1 {
			// Engine tier eats into the pull.
			pull := e.bal.Game.StarGravity * star.Size / (d * d)
			pull /= e.bal.Tiered(1, p.EngineTier)
			p.VX += (sx - p.X) / d * pull * dt
			p.VY += (sy - p.Y) / d * pull * dt
		}
	}

	if p.VX != 0 || p.VY != 0 {
		p.X += p.VX * dt
		p.Y += p.VY * dt
		p.dirty = true
		e.grid.Move(p.entityID(), p.X, p.Y)
	}

	regenDelay := time.Duration(e.bal.Game.ShieldRegenDelayMS) * time.Millisecond
	if p.ShieldHP < p.ShieldMax && now.Sub(p.lastHitAt) >= regenDelay {
		rate := e.bal.Game.ShieldRegenPerSec + e.bal.EnergyCore.ShieldRegenBonus[tierIndex(p.EnergyCoreTier)]
		p.ShieldHP = math.Min(p.ShieldMax, p.ShieldHP+rate*dt)
		p.dirty = true
	}
}

// nearestStar scans the 3x3 sector block around a position.
func (e *Engine) nearestStar(x, y float64, now time.Time) *world.Object {
	sx, sy := world.SectorOf(x, y, e.galaxy.SectorSize())
	var best *world.Object
	bestD := math.MaxFloat64
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			s := e.galaxy.Sector(sx+dx, sy+dy)
			if s.Star == nil {
				continue
			}
			ox, oy := s.Star.PositionAt(now)
			if d := math.Hypot(ox-x, oy-y); d < bestD {
				bestD = d
				best = s.Star
			}
		}
	}
	return best
}

// --- combat ---

// Fire validates the cooldown and spawns a projectile at the ship's muzzle.
// A nearby NPC becomes the assigned target so the shot resolves on arrival
// even under tick jitter.
func (e *Engine) Fire(userID int64, rotation float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.players[userID]
	if !ok {
		return ErrNotConnected
	}
	if !p.canAct() {
		return ErrDead
	}

	now := e.nowFn()
	cooldown := time.Duration(e.bal.WeaponCooldown(p.WeaponTier, p.EnergyCoreTier)) * time.Millisecond
	if now.Sub(p.lastFireAt) < cooldown {
		return ErrWeaponCooling
	}
	p.lastFireAt = now
	p.Rotation = rotation

	speed := e.bal.Tiered(e.bal.Game.BaseProjectileSpeed, p.WeaponTier)
	damage := e.bal.Tiered(e.bal.Game.BaseWeaponDamage, p.WeaponTier)
	mx := p.X + math.Cos(rotation)*muzzleOffset
	my := p.Y + math.Sin(rotation)*muzzleOffset

	proj := &Projectile{
		ID:        e.nextID("proj"),
		Owner:     OwnerPlayer,
		OwnerUser: userID,
		X:         mx,
		Y:         my,
		VX:        math.Cos(rotation) * speed,
		VY:        math.Sin(rotation) * speed,
		Damage:    damage,
		ExpiresAt: now.Add(time.Duration(e.bal.Game.ProjectileLifeMS) * time.Millisecond),
	}
	if id, ok := e.grid.Nearest(mx, my, world.EntityNPC, 1); ok {
		if npc, live := e.npcs[id]; live && npc.State != NPCDead {
			if d := math.Hypot(npc.X-mx, npc.Y-my); d <= npcFireRange {
				proj.TargetID = id
				proj.ArriveAt = now.Add(time.Duration(d / speed * float64(time.Second)))
			}
		}
	}
	e.projectiles[proj.ID] = proj
	e.grid.Insert(proj.ID, world.EntityProjectile, proj.X, proj.Y)

	e.broadcastFrom(p, EvWeaponFired, map[string]any{
		"id": proj.ID, "owner_id": userID, "x": proj.X, "y": proj.Y,
		"vx": proj.VX, "vy": proj.VY, "weapon_type": p.WeaponType,
	})
	return nil
}

func (e *Engine) projectileTick(now time.Time, dt float64) {
	for id, proj := range e.projectiles {
		e.guard(id, func() {
			e.advanceProjectile(proj, now, dt)
		})
	}
}

func (e *Engine) advanceProjectile(proj *Projectile, now time.Time, dt float64) {
	proj.X += proj.VX * dt
	proj.Y += proj.VY * dt
	e.grid.Move(proj.ID, proj.X, proj.Y)

	if proj.TargetID != "" {
		tx, ty, live := e.targetPosition(proj.TargetID)
		if !live {
			proj.TargetID = ""
			proj.ArriveAt = time.Time{}
		} else if math.Hypot(tx-proj.X, ty-proj.Y) <= projectileHitRadius || (!proj.ArriveAt.IsZero() && !now.Before(proj.ArriveAt)) {
			e.deliverHit(proj, proj.TargetID, now)
			e.removeProjectile(proj.ID)
			return
		}
	} else if victim := e.freeHit(proj); victim != "" {
		e.deliverHit(proj, victim, now)
		e.removeProjectile(proj.ID)
		return
	}

	if now.After(proj.ExpiresAt) {
		// Expiry burst is cosmetic only.
		e.broadcastAt(proj.X, proj.Y, EvCombatExplosion, map[string]any{
			"id": proj.ID, "x": proj.X, "y": proj.Y,
		}, 0)
		e.removeProjectile(proj.ID)
	}
}

func (e *Engine) targetPosition(entity string) (float64, float64, bool) {
	if uid, ok := parsePlayerEntity(entity); ok {
		if p, live := e.players[uid]; live && p.State != StateDead {
			return p.X, p.Y, true
		}
		return 0, 0, false
	}
	if npc, ok := e.npcs[entity]; ok && npc.State != NPCDead {
		return npc.X, npc.Y, true
	}
	return 0, 0, false
}

// freeHit checks an untargeted shot against every hostile near it.
func (e *Engine) freeHit(proj *Projectile) string {
	for _, id := range e.grid.Query(proj.X, proj.Y, projectileHitRadius) {
		if id == proj.ID {
			continue
		}
		if uid, ok := parsePlayerEntity(id); ok {
			if proj.Owner == OwnerPlayer && uid == proj.OwnerUser {
				continue
			}
			if p, live := e.players[uid]; live && p.State == StateAlive {
				return id
			}
			continue
		}
		if npc, ok := e.npcs[id]; ok && npc.State != NPCDead && proj.Owner == OwnerPlayer {
			return npc.ID
		}
	}
	return ""
}

func (e *Engine) deliverHit(proj *Projectile, entity string, now time.Time) {
	if uid, ok := parsePlayerEntity(entity); ok {
		if p, live := e.players[uid]; live {
			e.damagePlayer(p, proj.Damage, now)
		}
		return
	}
	if npc, ok := e.npcs[entity]; ok {
		e.damageNPC(npc, proj, now)
	}
}

func (e *Engine) damagePlayer(p *Player, damage float64, now time.Time) {
	if p.State != StateAlive {
		return
	}
	res := ApplyDamage(p.HullHP, p.ShieldHP, damage)
	p.HullHP = res.HullAfter
	p.ShieldHP = res.ShieldAfter
	p.lastHitAt = now
	p.dirty = true

	hit := map[string]any{
		"target_id": p.UserID, "hull_after": res.HullAfter,
		"shield_after": res.ShieldAfter, "is_shield_hit": res.ShieldHit,
	}
	e.sendTo(p.UserID, EvCombatHit, hit)
	e.broadcastFrom(p, EvCombatHit, hit)

	if p.HullHP <= 0 {
		e.killPlayer(p, now)
	}
}

func (e *Engine) killPlayer(p *Player, now time.Time) {
	p.State = StateDead
	p.VX, p.VY = 0, 0
	e.clearSessions(p.UserID)

	death := map[string]any{"id": p.UserID, "x": p.X, "y": p.Y}
	e.sendTo(p.UserID, EvPlayerDeath, death)
	e.broadcastFrom(p, EvPlayerDeath, death)

	uid := p.UserID
	e.events.schedule(now.Add(time.Duration(e.bal.Game.RespawnDelayMS)*time.Millisecond), func(at time.Time) {
		e.respawn(uid, at)
	})
}

func (e *Engine) respawn(userID int64, now time.Time) {
	p, ok := e.players[userID]
	if !ok || p.State != StateDead {
		return
	}
	x, y := world.DeepSpaceSpawn(e.galaxy, e.bal.World.StarSizeMax, e.rng)
	p.X, p.Y = x, y
	p.VX, p.VY = 0, 0
	p.HullHP = p.HullMax
	p.ShieldHP = p.ShieldMax
	p.State = StateInvulnerable
	p.dirty = true
	e.grid.Move(p.entityID(), x, y)

	e.events.schedule(now.Add(time.Duration(e.bal.Game.InvulnerabilityMS)*time.Millisecond), func(time.Time) {
		if cur, live := e.players[userID]; live && cur.State == StateInvulnerable {
			cur.State = StateAlive
		}
	})

	snap := snapshot(p)
	e.sendTo(userID, EvPlayerRespawn, snap)
	e.broadcastFrom(p, EvPlayerRespawn, snap)

	sx, sy := world.SectorOf(x, y, e.galaxy.SectorSize())
	if err := e.store.SaveShipState(context.Background(), userID, x, y, 0, 0, p.Rotation, p.HullHP, p.ShieldHP, sx, sy); err != nil {
		e.log.Warn().Err(err).Int64("user_id", userID).Msg("respawn position write failed")
	}
}

// --- hazards / area effects ---

func (e *Engine) hazardTick(now time.Time, dt float64) {
	for _, p := range e.players {
		if p.State != StateAlive {
			continue
		}
		star := e.nearestStar(p.X, p.Y, now)
		if star == nil {
			continue
		}
		sx, sy := star.PositionAt(now)
		danger := star.Size * starHazardFactor
		d := math.Hypot(sx-p.X, sy-p.Y)
		if d >= danger {
			continue
		}
		e.guard(p.entityID(), func() {
			// Damage ramps linearly toward the core.
			dmg := e.bal.Game.StarDamagePerSec * (1 - d/danger) * dt
			e.damagePlayer(p, dmg, now)
		})
	}
}

func (e *Engine) effectTick(now time.Time, dt float64) {
	for id, fx := range e.effects {
		if now.After(fx.ExpiresAt) {
			delete(e.effects, id)
			e.grid.Remove(id)
			e.broadcastAt(fx.X, fx.Y, EvEffectRemove, map[string]any{"id": id}, 0)
			continue
		}
		e.guard(id, func() {
			for _, p := range e.playersWithin(fx.X, fx.Y, fx.Radius, 0) {
				if p.State != StateAlive {
					continue
				}
				if fx.SlowFactor > 0 {
					p.slowUntil = now.Add(250 * time.Millisecond)
					p.slowFactor = fx.SlowFactor
				}
				if fx.DamagePerSec > 0 {
					e.damagePlayer(p, fx.DamagePerSec*dt, now)
				}
			}
		})
	}
}

// --- persistence ---

type shipFlush struct {
	userID            int64
	x, y, vx, vy, rot float64
	hull, shield      float64
	sectorX, sectorY  int
}

// flushDirty snapshots dirty players and writes them off-thread. Callers in
// the tick path hold e.mu; when sync is set (shutdown) the write happens
// inline and without the in-flight guard.
func (e *Engine) flushDirty(ctx context.Context, sync bool) {
	if !sync {
		if e.persistBusy {
			return
		}
	}

	var batch []shipFlush
	grab := func() {
		for _, p := range e.players {
			if !p.dirty {
				continue
			}
			p.dirty = false
			sx, sy := world.SectorOf(p.X, p.Y, e.galaxy.SectorSize())
			batch = append(batch, shipFlush{
				userID: p.UserID, x: p.X, y: p.Y, vx: p.VX, vy: p.VY,
				rot: p.Rotation, hull: p.HullHP, shield: p.ShieldHP,
				sectorX: sx, sectorY: sy,
			})
		}
	}
	if sync {
		e.mu.Lock()
		grab()
		e.mu.Unlock()
	} else {
		grab()
	}
	if len(batch) == 0 {
		return
	}

	write := func() {
		for _, f := range batch {
			var err error
			backoff := 100 * time.Millisecond
			for attempt := 0; attempt < 3; attempt++ {
				err = e.store.SaveShipState(ctx, f.userID, f.x, f.y, f.vx, f.vy, f.rot, f.hull, f.shield, f.sectorX, f.sectorY)
				if err == nil {
					break
				}
				time.Sleep(backoff)
				backoff *= 2
			}
			if err != nil {
				e.log.Error().Err(err).Int64("user_id", f.userID).Msg("ship flush failed after retries")
			}
		}
		if !sync {
			e.mu.Lock()
			e.persistBusy = false
			e.mu.Unlock()
		}
	}

	if sync {
		write()
		return
	}
	e.persistBusy = true
	go write()
}

// --- cosmetics / ship refresh ---

// RefreshShip re-reads tier-derived stats into the live player after an
// upgrade committed in the store.
func (e *Engine) RefreshShip(ship *store.Ship) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.players[ship.UserID]
	if !ok {
		return
	}
	p.EngineTier = ship.EngineTier
	p.WeaponTier = ship.WeaponTier
	p.ShieldTier = ship.ShieldTier
	p.MiningTier = ship.MiningTier
	p.CargoTier = ship.CargoTier
	p.RadarTier = ship.RadarTier
	p.EnergyCoreTier = ship.EnergyCoreTier
	p.HullTier = ship.HullTier
	p.HullHP = ship.HullHP
	p.HullMax = ship.HullMax
	p.ShieldHP = ship.ShieldHP
	p.ShieldMax = ship.ShieldMax
	e.broadcastFrom(p, EvShipUpdate, snapshot(p))
}

// UpdateCosmetics applies already-persisted cosmetic changes to the live
// player and re-broadcasts the snapshot to nearby peers.
func (e *Engine) UpdateCosmetics(userID int64, colorID, profileID *int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.players[userID]
	if !ok {
		return
	}
	if colorID != nil {
		p.ShipColorID = *colorID
	}
	if profileID != nil {
		p.ProfileID = *profileID
	}
	e.broadcastFrom(p, EvShipUpdate, snapshot(p))
}

// --- interest management ---

// playersWithin resolves grid candidates around a point into live players.
// exclude of zero excludes nobody. Callers hold e.mu.
func (e *Engine) playersWithin(x, y, radius float64, exclude int64) []*Player {
	var out []*Player
	for _, id := range e.grid.QueryKind(x, y, radius, world.EntityPlayer) {
		uid, ok := parsePlayerEntity(id)
		if !ok || uid == exclude {
			continue
		}
		if p, live := e.players[uid]; live {
			out = append(out, p)
		}
	}
	return out
}

// broadcastFrom fans an event out to every other player inside the origin
// player's interest radius. Callers hold e.mu.
func (e *Engine) broadcastFrom(origin *Player, event string, data any) {
	if e.sender == nil {
		return
	}
	radius := e.bal.InterestRadius(origin.RadarTier)
	for _, p := range e.playersWithin(origin.X, origin.Y, radius, origin.UserID) {
		e.sender.Send(p.UserID, event, data)
	}
}

// broadcastAt fans a world event out viewer-centrically: every player whose
// own interest radius covers the origin point receives it. Callers hold e.mu.
func (e *Engine) broadcastAt(x, y float64, event string, data any, exclude int64) {
	if e.sender == nil {
		return
	}
	outer := e.bal.InterestRadius(config.TierMax)
	for _, p := range e.playersWithin(x, y, outer, exclude) {
		if math.Hypot(p.X-x, p.Y-y) <= e.bal.InterestRadius(p.RadarTier) {
			e.sender.Send(p.UserID, event, data)
		}
	}
}

// BroadcastFromPlayer is the exported interest broadcast used by command
// handlers (chat, emotes). Reports whether the origin player is online.
func (e *Engine) BroadcastFromPlayer(userID int64, event string, data any) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.players[userID]
	if !ok {
		return false
	}
	e.broadcastFrom(p, event, data)
	return true
}

func (e *Engine) sendTo(userID int64, event string, data any) {
	if e.sender != nil {
		e.sender.Send(userID, event, data)
	}
}

// NearbyState is the answer to a world:getNearby query.
type NearbyState struct {
	Objects  []NearbyObject   `json:"objects"`
	Players  []PlayerSnapshot `json:"players"`
	Wrecks   []Wreckage       `json:"wreckage"`
	Depleted []string         `json:"depleted"`
}

// NearbyObject is the wire view of a procedural object.
type NearbyObject struct {
	ID        string   `json:"id"`
	Kind      string   `json:"kind"`
	X         float64  `json:"x"`
	Y         float64  `json:"y"`
	Size      float64  `json:"size"`
	Resources []string `json:"resources,omitempty"`
	Depleted  bool     `json:"depleted"`
}

// Nearby reports the world inside the player's interest radius.
func (e *Engine) Nearby(userID int64) (*NearbyState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.players[userID]
	if !ok {
		return nil, ErrNotConnected
	}
	now := e.nowFn()
	radius := e.bal.InterestRadius(p.RadarTier)

	out := &NearbyState{Depleted: []string{}}
	for _, o := range world.VisibleObjects(e.galaxy, p.X, p.Y, radius, now) {
		ox, oy := o.PositionAt(now)
		_, dep := e.depleted[o.ID]
		out.Objects = append(out.Objects, NearbyObject{
			ID: o.ID, Kind: string(o.Kind), X: ox, Y: oy,
			Size: o.Size, Resources: o.Resources, Depleted: dep,
		})
		if dep {
			out.Depleted = append(out.Depleted, o.ID)
		}
	}
	for _, other := range e.playersWithin(p.X, p.Y, radius, userID) {
		out.Players = append(out.Players, snapshot(other))
	}
	for _, w := range e.wrecks {
		if math.Hypot(w.X-p.X, w.Y-p.Y) <= radius {
			out.Wrecks = append(out.Wrecks, *w)
		}
	}
	return out, nil
}

// --- helpers ---

func (e *Engine) nextID(prefix string) string {
	e.seq++
	return fmt.Sprintf("%s_%d", prefix, e.seq)
}

func entityID(prefix string, id int64) string {
	return fmt.Sprintf("%s_%d", prefix, id)
}

func parsePlayerEntity(id string) (int64, bool) {
	rest, ok := strings.CutPrefix(id, "player_")
	if !ok {
		return 0, false
	}
	uid, err := strconv.ParseInt(rest, 10, 64)
	return uid, err == nil
}

func clampVector(x, y, limit float64) (float64, float64) {
	if d := math.Hypot(x, y); d > limit && d > 0 {
		return x / d * limit, y / d * limit
	}
	return x, y
}

func tierIndex(tier int) int {
	if tier < config.TierMin {
		tier = config.TierMin
	}
	if tier > config.TierMax {
		tier = config.TierMax
	}
	return tier - 1
}

func (e *Engine) removeProjectile(id string) {
	delete(e.projectiles, id)
	e.grid.Remove(id)
}

// findObject resolves a procedural object id. Callers hold e.mu.
func (e *Engine) findObject(id string) *world.Object {
	return world.FindObject(e.galaxy, id)
}
