/*
Package game
File: wormhole.go
Description:
    The two-phase wormhole transit protocol. Enter offers the nearest exits
    found by outward-ring sector expansion; select locks the crossing and
    schedules completion; cancel is only legal while still selecting. The
    generated destination-sector hint on wormhole objects is lore only,
    selection works purely on distance.
*/

package game

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/everforgeworks/galaxies-deepspace/internal/world"
)

// WormholeGem is the relic that unlocks transit.
const WormholeGem = "WORMHOLE_GEM"

// TransitProgressInfo answers wormhole:getProgress.
type TransitProgressInfo struct {
	Phase      string  `json:"phase"`
	ElapsedMS  int64   `json:"elapsed_ms"`
	DurationMS int64   `json:"duration_ms"`
	Progress   float64 `json:"progress"`
}

// EnterWormhole begins the selection phase and returns the destination list.
func (e *Engine) EnterWormhole(userID int64, wormholeID string) ([]Destination, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.players[userID]
	if !ok {
		return nil, ErrNotConnected
	}
	if !p.canAct() {
		return nil, ErrDead
	}
	if _, active := e.transits[userID]; active {
		return nil, ErrAlreadyInTransit
	}
	if e.busy(userID) {
		return nil, ErrBusy
	}

	hasGem, err := e.store.HasRelic(context.Background(), userID, WormholeGem)
	if err != nil {
		return nil, err
	}
	if !hasGem {
		return nil, ErrGemRequired
	}

	entry := e.findObject(wormholeID)
	if entry == nil || entry.Kind != world.KindWormhole {
		return nil, ErrObjectNotFound
	}
	now := e.nowFn()
	ex, ey := entry.PositionAt(now)
	if math.Hypot(ex-p.X, ey-p.Y) > e.bal.Wormhole.Range+entry.Size {
		return nil, ErrTooFarWormhole
	}

	dests := e.nearestWormholes(ex, ey, wormholeID, e.bal.Wormhole.MaxDestinations, now)
	if len(dests) == 0 {
		return nil, ErrNoDestinations
	}

	transit := &Transit{
		UserID:       userID,
		EntryID:      wormholeID,
		Phase:        PhaseSelecting,
		Destinations: dests,
		StartAt:      now,
	}
	timeout := time.Duration(e.bal.Wormhole.SelectionTimeoutMS) * time.Millisecond
	transit.ev = e.events.schedule(now.Add(timeout), func(time.Time) {
		e.expireSelection(transit)
	})
	e.transits[userID] = transit

	e.broadcastFrom(p, EvWormholeEntered, map[string]any{"id": userID, "wormhole_id": wormholeID})
	return dests, nil
}

// SelectDestination locks in a destination from the offered list and starts
// the crossing.
func (e *Engine) SelectDestination(userID int64, destinationID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	transit, ok := e.transits[userID]
	if !ok {
		return ErrNoTransit
	}
	if transit.Phase != PhaseSelecting {
		return ErrAlreadyInTransit
	}
	var chosen *Destination
	for i := range transit.Destinations {
		if transit.Destinations[i].ID == destinationID {
			chosen = &transit.Destinations[i]
			break
		}
	}
	if chosen == nil {
		return ErrInvalidDestination
	}

	p, ok := e.players[userID]
	if !ok {
		return ErrNotConnected
	}

	now := e.nowFn()
	transit.ev.Cancel()
	transit.Phase = PhaseTransit
	transit.ChosenID = destinationID
	transit.StartAt = now
	p.State = StateInTransit
	p.VX, p.VY = 0, 0

	duration := time.Duration(e.bal.Wormhole.TransitDurationMS) * time.Millisecond
	transit.ev = e.events.schedule(now.Add(duration), func(at time.Time) {
		e.completeTransit(transit, *chosen, at)
	})
	return nil
}

// CancelTransit frees a transit still in its selection phase.
func (e *Engine) CancelTransit(userID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	transit, ok := e.transits[userID]
	if !ok {
		return ErrNoTransit
	}
	if transit.Phase != PhaseSelecting {
		return ErrTransitLocked
	}
	transit.ev.Cancel()
	delete(e.transits, userID)
	return nil
}

// TransitProgress reports the state of an active transit.
func (e *Engine) TransitProgress(userID int64) (*TransitProgressInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	transit, ok := e.transits[userID]
	if !ok {
		return nil, ErrNoTransit
	}
	now := e.nowFn()
	elapsed := now.Sub(transit.StartAt)

	info := &TransitProgressInfo{ElapsedMS: elapsed.Milliseconds()}
	switch transit.Phase {
	case PhaseSelecting:
		info.Phase = "selecting"
		info.DurationMS = int64(e.bal.Wormhole.SelectionTimeoutMS)
	case PhaseTransit:
		info.Phase = "transit"
		info.DurationMS = int64(e.bal.Wormhole.TransitDurationMS)
	}
	if info.DurationMS > 0 {
		info.Progress = math.Min(1, float64(info.ElapsedMS)/float64(info.DurationMS))
	}
	return info, nil
}

// NearestWormhole locates the closest wormhole to the player, for the HUD.
func (e *Engine) NearestWormhole(userID int64) (*Destination, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.players[userID]
	if !ok {
		return nil, ErrNotConnected
	}
	found := e.nearestWormholes(p.X, p.Y, "", 1, e.nowFn())
	if len(found) == 0 {
		return nil, ErrNoDestinations
	}
	return &found[0], nil
}

// expireSelection fires from the timed-event queue: a selection that timed
// out auto-cancels, leaving no transit behind.
func (e *Engine) expireSelection(transit *Transit) {
	if cur, ok := e.transits[transit.UserID]; !ok || cur != transit || transit.Phase != PhaseSelecting {
		return
	}
	delete(e.transits, transit.UserID)
	e.sendTo(transit.UserID, EvWormholeCancelled, map[string]any{"reason": "selection timed out"})
}

// completeTransit relocates the player to the destination with a random
// angular offset, zeroes velocity, persists the jump and applies the
// respawn-style invulnerability window.
func (e *Engine) completeTransit(transit *Transit, dest Destination, now time.Time) {
	if cur, ok := e.transits[transit.UserID]; !ok || cur != transit {
		return
	}
	delete(e.transits, transit.UserID)

	p, ok := e.players[transit.UserID]
	if !ok {
		return
	}

	angle := e.rng.Float64() * 2 * math.Pi
	p.X = dest.X + math.Cos(angle)*e.bal.Wormhole.ExitOffset
	p.Y = dest.Y + math.Sin(angle)*e.bal.Wormhole.ExitOffset
	p.VX, p.VY = 0, 0
	p.State = StateInvulnerable
	p.dirty = true
	e.grid.Move(p.entityID(), p.X, p.Y)
	e.seedAround(p)

	uid := transit.UserID
	e.events.schedule(now.Add(time.Duration(e.bal.Game.InvulnerabilityMS)*time.Millisecond), func(time.Time) {
		if cur, live := e.players[uid]; live && cur.State == StateInvulnerable {
			cur.State = StateAlive
		}
	})

	sx, sy := world.SectorOf(p.X, p.Y, e.galaxy.SectorSize())
	if err := e.store.SaveShipState(context.Background(), uid, p.X, p.Y, 0, 0, p.Rotation, p.HullHP, p.ShieldHP, sx, sy); err != nil {
		e.log.Warn().Err(err).Int64("user_id", uid).Msg("transit position write failed")
	}

	e.sendTo(uid, EvWormholeExitComplete, map[string]any{
		"destination_id": dest.ID,
		"position":       map[string]float64{"x": p.X, "y": p.Y},
	})
	e.broadcastFrom(p, EvPlayerMoved, map[string]any{
		"id": uid, "x": p.X, "y": p.Y, "vx": 0.0, "vy": 0.0, "rotation": p.Rotation,
	})
}

// nearestWormholes expands sector rings outward from (x, y) collecting
// wormholes, excluding excludeID. Once enough are found it scans one more
// ring (a nearer hole can still hide across a diagonal) and stops.
func (e *Engine) nearestWormholes(x, y float64, excludeID string, limit int, now time.Time) []Destination {
	size := e.galaxy.SectorSize()
	csx, csy := world.SectorOf(x, y, size)

	var found []Destination
	settleRing := -1
	for ring := 0; ring <= e.bal.Wormhole.SearchRings; ring++ {
		if settleRing >= 0 && ring > settleRing {
			break
		}
		for dx := -ring; dx <= ring; dx++ {
			for dy := -ring; dy <= ring; dy++ {
				if max(absInt(dx), absInt(dy)) != ring {
					continue
				}
				w := e.galaxy.Sector(csx+dx, csy+dy).Wormhole()
				if w == nil || w.ID == excludeID {
					continue
				}
				wx, wy := w.PositionAt(now)
				found = append(found, Destination{
					ID:       w.ID,
					X:        wx,
					Y:        wy,
					Distance: math.Hypot(wx-x, wy-y),
					SectorX:  w.SX,
					SectorY:  w.SY,
				})
			}
		}
		if len(found) >= limit && settleRing < 0 {
			settleRing = ring + 1
		}
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].Distance == found[j].Distance {
			return found[i].ID < found[j].ID
		}
		return found[i].Distance < found[j].Distance
	})
	if len(found) > limit {
		found = found[:limit]
	}
	return found
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
