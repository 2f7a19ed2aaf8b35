/*
Package api
File: handlers_world.go
Description: Movement, weapon fire, mining, loot and the nearby-world query.
Thin translations between wire payloads and engine calls; the engine owns
all the rules.
*/

package api

import (
	"encoding/json"

	"github.com/everforgeworks/galaxies-deepspace/internal/game"
)

func (r *Router) handleMovement(c *Client, data json.RawMessage) {
	var in movementPayload
	if len(data) == 0 || json.Unmarshal(data, &in) != nil {
		return // movement is fire-and-forget; malformed frames are dropped
	}
	r.engine.UpdateMovement(c.UserID(), in.X, in.Y, in.VX, in.VY, in.Rotation, in.Boost)
}

func (r *Router) handleFire(c *Client, data json.RawMessage) {
	var in firePayload
	if len(data) > 0 && json.Unmarshal(data, &in) != nil {
		return
	}
	// Cooldown violations are silent; the client predicts the cooldown and
	// only a modified client trips it.
	if err := r.engine.Fire(c.UserID(), in.Rotation); err != nil {
		r.log.Debug().Int64("user_id", c.UserID()).Err(err).Msg("fire rejected")
	}
}

func (r *Router) handleMiningStart(c *Client, data json.RawMessage) {
	var in miningStartPayload
	if !decode(r, c, data, game.EvMiningError, &in) {
		return
	}
	started, err := r.engine.StartMining(c.UserID(), in.ObjectID)
	if err != nil {
		c.Enqueue(game.EvMiningError, errorPayload{Message: err.Error()})
		return
	}
	c.Enqueue(game.EvMiningStarted, started)
}

func (r *Router) handleMiningCancel(c *Client, data json.RawMessage) {
	r.engine.CancelMining(c.UserID())
}

func (r *Router) handleLootCollect(c *Client, data json.RawMessage) {
	var in lootCollectPayload
	if !decode(r, c, data, game.EvLootError, &in) {
		return
	}
	started, err := r.engine.CollectLoot(c.UserID(), in.WreckageID)
	if err != nil {
		c.Enqueue(game.EvLootError, errorPayload{Message: err.Error()})
		return
	}
	c.Enqueue(game.EvLootStarted, started)
}

func (r *Router) handleWorldGetNearby(c *Client, data json.RawMessage) {
	state, err := r.engine.Nearby(c.UserID())
	if err != nil {
		c.Enqueue(OutWorldError, errorPayload{Message: err.Error()})
		return
	}
	c.Enqueue(OutWorldNearby, state)
}
