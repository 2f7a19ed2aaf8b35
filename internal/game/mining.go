/*
Package game
File: mining.go
Description:
    Mining sessions. A session locks a beam between a player and one
    resource object; the completion fires from the timed-event queue.
    Depletion is checked both at start and again at completion, so two
    miners racing over one asteroid cannot double-credit it. Movement does
    not break the beam. Depletion lasts for the process lifetime.
*/

package game

import (
	"context"
	"math"
	"time"

	"github.com/everforgeworks/galaxies-deepspace/internal/store"
)

// MiningStarted is the ack for a successful mining:start.
type MiningStarted struct {
	ObjectID   string `json:"object_id"`
	Resource   string `json:"resource"`
	DurationMS int64  `json:"duration_ms"`
}

// StartMining validates distance, depletion and cargo room, then arms the
// completion timer.
func (e *Engine) StartMining(userID int64, objectID string) (*MiningStarted, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.players[userID]
	if !ok {
		return nil, ErrNotConnected
	}
	if !p.canAct() {
		return nil, ErrDead
	}
	if _, active := e.mining[userID]; active {
		return nil, ErrAlreadyMining
	}
	if e.busy(userID) {
		return nil, ErrBusy
	}

	obj := e.findObject(objectID)
	if obj == nil {
		return nil, ErrObjectNotFound
	}
	if len(obj.Resources) == 0 {
		return nil, ErrNotMineable
	}
	if _, gone := e.depleted[objectID]; gone {
		return nil, ErrDepleted
	}

	now := e.nowFn()
	ox, oy := obj.PositionAt(now)
	if math.Hypot(ox-p.X, oy-p.Y) > miningRange+obj.Size {
		return nil, ErrTooFar
	}

	total, err := e.store.InventoryTotal(context.Background(), userID)
	if err != nil {
		return nil, err
	}
	if total >= e.bal.CargoMax(p.CargoTier) {
		return nil, store.ErrCargoFull
	}

	resource := obj.Resources[e.rng.Intn(len(obj.Resources))]
	duration := time.Duration(e.bal.MiningDuration(p.MiningTier)) * time.Millisecond
	session := &MiningSession{
		UserID:   userID,
		ObjectID: objectID,
		Resource: resource,
		StartAt:  now,
	}
	session.ev = e.events.schedule(now.Add(duration), func(at time.Time) {
		e.completeMining(session, at)
	})
	e.mining[userID] = session

	return &MiningStarted{
		ObjectID:   objectID,
		Resource:   resource,
		DurationMS: duration.Milliseconds(),
	}, nil
}

// CancelMining clears any active session. Idempotent: cancelling with no
// session is a no-op.
func (e *Engine) CancelMining(userID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.mining[userID]; ok {
		s.ev.Cancel()
		delete(e.mining, userID)
	}
}

// completeMining runs on the simulation thread from the timed-event queue.
func (e *Engine) completeMining(session *MiningSession, now time.Time) {
	if cur, ok := e.mining[session.UserID]; !ok || cur != session {
		return
	}
	delete(e.mining, session.UserID)

	p, ok := e.players[session.UserID]
	if !ok {
		return
	}
	// Second depletion check closes the race between overlapping sessions.
	if _, gone := e.depleted[session.ObjectID]; gone {
		e.sendTo(session.UserID, EvMiningError, errPayload(ErrDepleted))
		return
	}
	e.depleted[session.ObjectID] = struct{}{}

	yield := e.bal.MiningYield(p.MiningTier)
	added, err := e.store.AddResourceClipped(context.Background(), session.UserID, session.Resource, yield, e.bal.CargoMax(p.CargoTier))
	if err != nil {
		e.log.Error().Err(err).Int64("user_id", session.UserID).Msg("mining yield credit failed")
		e.sendTo(session.UserID, EvMiningError, errPayload(err))
		return
	}

	e.sendTo(session.UserID, EvMiningComplete, map[string]any{
		"object_id": session.ObjectID,
		"resource":  session.Resource,
		"quantity":  added,
	})
	// Depletion is idempotent downstream; viewers may coalesce duplicates.
	depleted := map[string]any{"object_id": session.ObjectID}
	e.sendTo(session.UserID, EvObjectDepleted, depleted)
	if obj := e.findObject(session.ObjectID); obj != nil {
		ox, oy := obj.PositionAt(now)
		e.broadcastAt(ox, oy, EvObjectDepleted, depleted, session.UserID)
	}
}

func errPayload(err error) map[string]any {
	return map[string]any{"message": err.Error()}
}
