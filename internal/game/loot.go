/*
Package game
File: loot.go
Description:
    Wreckage collection. Same session shape as mining, but bound to a
    transient server-owned wreckage entity instead of a procedural object.
    Credits and relics commit through store transactions; resources are
    clipped to cargo room.
*/

package game

import (
	"context"
	"math"
	"time"
)

// LootStarted is the ack for a successful loot:collect.
type LootStarted struct {
	WreckageID string `json:"wreckage_id"`
	DurationMS int64  `json:"duration_ms"`
}

// CollectLoot starts a timed collection on a wreckage.
func (e *Engine) CollectLoot(userID int64, wreckageID string) (*LootStarted, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.players[userID]
	if !ok {
		return nil, ErrNotConnected
	}
	if !p.canAct() {
		return nil, ErrDead
	}
	if _, active := e.looting[userID]; active {
		return nil, ErrAlreadyLooting
	}
	if e.busy(userID) {
		return nil, ErrBusy
	}

	wreck, ok := e.wrecks[wreckageID]
	if !ok {
		return nil, ErrWreckageGone
	}
	if math.Hypot(wreck.X-p.X, wreck.Y-p.Y) > lootRange {
		return nil, ErrTooFarWreckage
	}

	now := e.nowFn()
	duration := time.Duration(e.bal.Game.LootCollectMS) * time.Millisecond
	session := &LootSession{
		UserID:     userID,
		WreckageID: wreckageID,
		StartAt:    now,
	}
	session.ev = e.events.schedule(now.Add(duration), func(at time.Time) {
		e.completeLoot(session, at)
	})
	e.looting[userID] = session

	return &LootStarted{WreckageID: wreckageID, DurationMS: duration.Milliseconds()}, nil
}

func (e *Engine) completeLoot(session *LootSession, now time.Time) {
	if cur, ok := e.looting[session.UserID]; !ok || cur != session {
		return
	}
	delete(e.looting, session.UserID)

	p, ok := e.players[session.UserID]
	if !ok {
		return
	}
	wreck, ok := e.wrecks[session.WreckageID]
	if !ok {
		e.sendTo(session.UserID, EvLootError, errPayload(ErrWreckageGone))
		return
	}

	ctx := context.Background()
	if wreck.Credits > 0 {
		if err := e.store.AdjustCredits(ctx, session.UserID, wreck.Credits); err != nil {
			e.log.Error().Err(err).Int64("user_id", session.UserID).Msg("loot credit grant failed")
		}
	}
	collected := make(map[string]int64, len(wreck.Resources))
	cargoMax := e.bal.CargoMax(p.CargoTier)
	for res, qty := range wreck.Resources {
		added, err := e.store.AddResourceClipped(ctx, session.UserID, res, qty, cargoMax)
		if err != nil {
			e.log.Error().Err(err).Int64("user_id", session.UserID).Str("resource", res).Msg("loot resource grant failed")
			continue
		}
		if added > 0 {
			collected[res] = added
		}
	}
	for _, relic := range wreck.Relics {
		if err := e.store.GrantRelic(ctx, session.UserID, relic); err != nil {
			e.log.Error().Err(err).Int64("user_id", session.UserID).Str("relic", relic).Msg("relic grant failed")
		}
	}

	e.removeWreckage(wreck)
	e.sendTo(session.UserID, EvLootComplete, map[string]any{
		"wreckage_id": wreck.ID,
		"credits":     wreck.Credits,
		"resources":   collected,
		"relics":      wreck.Relics,
	})
}

// decayWreckage fires from the timed-event queue when a wreckage outlives
// its window uncollected.
func (e *Engine) decayWreckage(wreckID string) {
	if wreck, ok := e.wrecks[wreckID]; ok {
		e.removeWreckage(wreck)
	}
}

func (e *Engine) removeWreckage(wreck *Wreckage) {
	delete(e.wrecks, wreck.ID)
	e.grid.Remove(wreck.ID)
	e.broadcastAt(wreck.X, wreck.Y, EvWreckageRemoved, map[string]any{"id": wreck.ID}, 0)
}
