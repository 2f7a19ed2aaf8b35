/*
Package game
File: npc.go
Description:
    Faction NPC lifecycle and AI. Sectors are seeded lazily the first time
    a player comes near; each faction rolls its spawn chance once per
    sector for the process lifetime. The state machine per NPC is
    IDLE -> PATROL -> ENGAGE <-> FLANK -> RETREAT, with DEAD terminal.
*/

package game

import (
	"math"
	"time"

	"github.com/everforgeworks/galaxies-deepspace/internal/world"
)

const (
	npcStandoff    = 220.0 // preferred engage distance
	npcFlankChance = 0.008 // per tick while engaged
	npcWebChance   = 0.004 // per tick while engaged (raiders)
	gemDropChance  = 0.05
)

// seedAround rolls NPC spawns for the 3x3 sector block around a player.
// Each sector is rolled exactly once per process. Callers hold e.mu.
func (e *Engine) seedAround(p *Player) {
	sx, sy := world.SectorOf(p.X, p.Y, e.galaxy.SectorSize())
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			key := [2]int{sx + dx, sy + dy}
			if _, done := e.seeded[key]; done {
				continue
			}
			e.seeded[key] = struct{}{}
			e.seedSector(key[0], key[1])
		}
	}
}

func (e *Engine) seedSector(sx, sy int) {
	size := e.galaxy.SectorSize()
	baseX := float64(sx) * size
	baseY := float64(sy) * size

	for _, faction := range e.bal.NPCFactions {
		if e.rng.Float64() >= faction.SpawnChance {
			continue
		}
		count := 1
		if faction.MaxPerSector > 1 {
			count += e.rng.Intn(faction.MaxPerSector)
		}
		for i := 0; i < count; i++ {
			x := baseX + e.rng.Float64()*size
			y := baseY + e.rng.Float64()*size
			npc := &NPC{
				ID:        e.nextID("npc"),
				Faction:   faction,
				X:         x,
				Y:         y,
				HullHP:    faction.Hull,
				HullMax:   faction.Hull,
				ShieldHP:  faction.Shield,
				ShieldMax: faction.Shield,
				State:     NPCPatrol,
				HomeX:     x,
				HomeY:     y,
			}
			e.npcs[npc.ID] = npc
			e.grid.Insert(npc.ID, world.EntityNPC, x, y)
			e.broadcastAt(x, y, EvNPCSpawn, npcSnapshot(npc), 0)
		}
	}
}

func npcSnapshot(n *NPC) map[string]any {
	return map[string]any{
		"id": n.ID, "faction": n.Faction.Name, "ship_type": n.Faction.ShipType,
		"x": n.X, "y": n.Y, "rotation": n.Rotation,
		"hull_hp": n.HullHP, "hull_max": n.HullMax,
		"shield_hp": n.ShieldHP, "shield_max": n.ShieldMax,
	}
}

func (e *Engine) npcTick(now time.Time, dt float64) {
	for id, npc := range e.npcs {
		if npc.State == NPCDead {
			continue
		}
		e.guard(id, func() {
			e.tickNPC(npc, now, dt)
		})
	}
}

func (e *Engine) tickNPC(npc *NPC, now time.Time, dt float64) {
	target := e.acquireTarget(npc)

	switch npc.State {
	case NPCIdle:
		npc.State = NPCPatrol

	case NPCPatrol:
		npc.patrolPhase += dt * 0.3
		wx := npc.HomeX + math.Cos(npc.patrolPhase)*180
		wy := npc.HomeY + math.Sin(npc.patrolPhase)*180
		e.steerNPC(npc, wx, wy, npc.Faction.Speed*0.5, dt)
		if target != nil {
			npc.State = NPCEngage
			npc.TargetID = target.UserID
		}

	case NPCEngage:
		if target == nil {
			npc.State = NPCPatrol
			npc.TargetID = 0
			break
		}
		if npc.HullHP/npc.HullMax < npc.Faction.FleeHullRatio {
			npc.State = NPCRetreat
			break
		}
		d := math.Hypot(target.X-npc.X, target.Y-npc.Y)
		if d > npcStandoff {
			e.steerNPC(npc, target.X, target.Y, npc.Faction.Speed, dt)
		} else {
			// Hold the standoff ring, strafing around the target.
			tangent := math.Atan2(npc.Y-target.Y, npc.X-target.X) + math.Pi/2
			e.steerNPC(npc, target.X+math.Cos(tangent)*npcStandoff, target.Y+math.Sin(tangent)*npcStandoff, npc.Faction.Speed*0.7, dt)
		}
		e.npcFire(npc, target, now)
		if e.rng.Float64() < npcFlankChance {
			npc.State = NPCFlank
		}
		if npc.Faction.ShipType == "raider" && e.rng.Float64() < npcWebChance {
			e.spawnWeb(target.X, target.Y, now)
		}

	case NPCFlank:
		if target == nil {
			npc.State = NPCPatrol
			npc.TargetID = 0
			break
		}
		// Swing wide to the target's flank, then drop back to engage.
		side := math.Atan2(npc.Y-target.Y, npc.X-target.X) + math.Pi*0.75
		e.steerNPC(npc, target.X+math.Cos(side)*npcStandoff*1.6, target.Y+math.Sin(side)*npcStandoff*1.6, npc.Faction.Speed*1.2, dt)
		e.npcFire(npc, target, now)
		if e.rng.Float64() < 0.05 {
			npc.State = NPCEngage
		}

	case NPCRetreat:
		if target == nil {
			npc.State = NPCPatrol
			npc.TargetID = 0
			break
		}
		away := math.Atan2(npc.Y-target.Y, npc.X-target.X)
		e.steerNPC(npc, npc.X+math.Cos(away)*500, npc.Y+math.Sin(away)*500, npc.Faction.Speed, dt)
		if math.Hypot(target.X-npc.X, target.Y-npc.Y) > npc.Faction.AggroRange*2 {
			npc.State = NPCPatrol
			npc.TargetID = 0
		}
	}
}

// acquireTarget keeps the current target while valid, otherwise picks the
// nearest attackable player inside aggro range.
func (e *Engine) acquireTarget(npc *NPC) *Player {
	if npc.TargetID != 0 {
		if p, ok := e.players[npc.TargetID]; ok && p.State == StateAlive &&
			math.Hypot(p.X-npc.X, p.Y-npc.Y) <= npc.Faction.AggroRange*1.5 {
			return p
		}
		npc.TargetID = 0
	}
	var best *Player
	bestD := math.MaxFloat64
	for _, p := range e.playersWithin(npc.X, npc.Y, npc.Faction.AggroRange, 0) {
		if p.State != StateAlive {
			continue
		}
		if d := math.Hypot(p.X-npc.X, p.Y-npc.Y); d < bestD {
			bestD = d
			best = p
		}
	}
	return best
}

func (e *Engine) steerNPC(npc *NPC, wx, wy, speed float64, dt float64) {
	dx, dy := wx-npc.X, wy-npc.Y
	d := math.Hypot(dx, dy)
	if d < 1 {
		npc.VX, npc.VY = 0, 0
		return
	}
	npc.VX = dx / d * speed
	npc.VY = dy / d * speed
	npc.Rotation = math.Atan2(dy, dx)
	npc.X += npc.VX * dt
	npc.Y += npc.VY * dt
	e.grid.Move(npc.ID, npc.X, npc.Y)
	e.broadcastAt(npc.X, npc.Y, EvNPCMoved, map[string]any{
		"id": npc.ID, "x": npc.X, "y": npc.Y,
		"vx": npc.VX, "vy": npc.VY, "rotation": npc.Rotation,
	}, 0)
}

func (e *Engine) npcFire(npc *NPC, target *Player, now time.Time) {
	cooldown := time.Duration(npc.Faction.FireCooldownMS) * time.Millisecond
	if now.Sub(npc.lastFireAt) < cooldown {
		return
	}
	d := math.Hypot(target.X-npc.X, target.Y-npc.Y)
	if d > npcFireRange {
		return
	}
	npc.lastFireAt = now

	speed := e.bal.Tiered(e.bal.Game.BaseProjectileSpeed, npc.Faction.WeaponTier)
	damage := e.bal.Tiered(e.bal.Game.BaseWeaponDamage, npc.Faction.WeaponTier)
	rot := math.Atan2(target.Y-npc.Y, target.X-npc.X)

	proj := &Projectile{
		ID:        e.nextID("proj"),
		Owner:     OwnerNPC,
		OwnerNPC:  npc.ID,
		TargetID:  target.entityID(),
		X:         npc.X + math.Cos(rot)*muzzleOffset,
		Y:         npc.Y + math.Sin(rot)*muzzleOffset,
		VX:        math.Cos(rot) * speed,
		VY:        math.Sin(rot) * speed,
		Damage:    damage,
		ExpiresAt: now.Add(time.Duration(e.bal.Game.ProjectileLifeMS) * time.Millisecond),
		ArriveAt:  now.Add(time.Duration(d / speed * float64(time.Second))),
	}
	e.projectiles[proj.ID] = proj
	e.grid.Insert(proj.ID, world.EntityProjectile, proj.X, proj.Y)
	e.broadcastAt(npc.X, npc.Y, EvWeaponFired, map[string]any{
		"id": proj.ID, "owner_id": npc.ID, "x": proj.X, "y": proj.Y,
		"vx": proj.VX, "vy": proj.VY, "weapon_type": "npc",
	}, 0)
}

func (e *Engine) spawnWeb(x, y float64, now time.Time) {
	fx := &AreaEffect{
		ID:         e.nextID("fx"),
		Kind:       EffectWeb,
		X:          x,
		Y:          y,
		Radius:     120,
		SlowFactor: 0.4,
		ExpiresAt:  now.Add(6 * time.Second),
	}
	e.effects[fx.ID] = fx
	e.grid.Insert(fx.ID, world.EntityEffect, x, y)
	e.broadcastAt(x, y, EvEffectSpawn, map[string]any{
		"id": fx.ID, "kind": string(fx.Kind), "x": x, "y": y, "radius": fx.Radius,
	}, 0)
}

func (e *Engine) damageNPC(npc *NPC, proj *Projectile, now time.Time) {
	if npc.State == NPCDead {
		return
	}
	res := ApplyDamage(npc.HullHP, npc.ShieldHP, proj.Damage)
	npc.HullHP = res.HullAfter
	npc.ShieldHP = res.ShieldAfter

	e.broadcastAt(npc.X, npc.Y, EvCombatHit, map[string]any{
		"target_id": npc.ID, "hull_after": res.HullAfter,
		"shield_after": res.ShieldAfter, "is_shield_hit": res.ShieldHit,
	}, 0)

	if npc.HullHP <= 0 {
		e.killNPC(npc, proj, now)
	}
}

// killNPC drops a wreckage container holding the faction bounty and
// schedules its decay.
func (e *Engine) killNPC(npc *NPC, proj *Projectile, now time.Time) {
	npc.State = NPCDead
	e.grid.Remove(npc.ID)
	delete(e.npcs, npc.ID)

	span := npc.Faction.CreditsMax - npc.Faction.CreditsMin
	credits := npc.Faction.CreditsMin
	if span > 0 {
		credits += e.rng.Int63n(span + 1)
	}
	wreck := &Wreckage{
		ID:        e.nextID("wreck"),
		X:         npc.X,
		Y:         npc.Y,
		Credits:   credits,
		Resources: e.rollWreckResources(),
		ExpiresAt: now.Add(time.Duration(e.bal.Game.WreckageDecayMS) * time.Millisecond),
	}
	if npc.Faction.ShipType == "raider" && e.rng.Float64() < gemDropChance {
		wreck.Relics = append(wreck.Relics, "WORMHOLE_GEM")
	}
	e.wrecks[wreck.ID] = wreck
	e.grid.Insert(wreck.ID, world.EntityWreckage, wreck.X, wreck.Y)

	wreckID := wreck.ID
	e.events.schedule(wreck.ExpiresAt, func(time.Time) {
		e.decayWreckage(wreckID)
	})

	death := map[string]any{"id": npc.ID, "x": npc.X, "y": npc.Y}
	if proj.Owner == OwnerPlayer {
		death["killer_id"] = proj.OwnerUser
	}
	e.broadcastAt(npc.X, npc.Y, EvNPCDeath, death, 0)
	e.broadcastAt(wreck.X, wreck.Y, EvWreckageSpawned, map[string]any{
		"id": wreck.ID, "x": wreck.X, "y": wreck.Y,
	}, 0)
}

func (e *Engine) rollWreckResources() map[string]int64 {
	table := []string{"IRON", "IRON", "TITANIUM", "PLATINUM", "CRYSTAL"}
	out := make(map[string]int64)
	stacks := 1 + e.rng.Intn(2)
	for i := 0; i < stacks; i++ {
		res := table[e.rng.Intn(len(table))]
		out[res] += int64(1 + e.rng.Intn(4))
	}
	return out
}
