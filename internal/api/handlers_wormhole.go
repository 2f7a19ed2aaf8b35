/*
Package api
File: handlers_wormhole.go
Description: The wormhole command surface. The engine owns the two-phase
protocol; these handlers only translate payloads and error strings.
*/

package api

import (
	"encoding/json"

	"github.com/everforgeworks/galaxies-deepspace/internal/game"
)

func (r *Router) handleWormholeEnter(c *Client, data json.RawMessage) {
	var in wormholeEnterPayload
	if !decode(r, c, data, game.EvWormholeError, &in) {
		return
	}
	dests, err := r.engine.EnterWormhole(c.UserID(), in.WormholeID)
	if err != nil {
		c.Enqueue(game.EvWormholeError, errorPayload{Message: err.Error()})
		return
	}
	c.Enqueue(game.EvWormholeDestinations, map[string]any{"destinations": dests})
}

func (r *Router) handleWormholeSelect(c *Client, data json.RawMessage) {
	var in wormholeSelectPayload
	if !decode(r, c, data, game.EvWormholeError, &in) {
		return
	}
	if err := r.engine.SelectDestination(c.UserID(), in.DestinationID); err != nil {
		c.Enqueue(game.EvWormholeError, errorPayload{Message: err.Error()})
		return
	}
	c.Enqueue(game.EvWormholeSelected, map[string]any{"destination_id": in.DestinationID})
}

func (r *Router) handleWormholeCancel(c *Client, data json.RawMessage) {
	if err := r.engine.CancelTransit(c.UserID()); err != nil {
		c.Enqueue(game.EvWormholeError, errorPayload{Message: err.Error()})
		return
	}
	c.Enqueue(game.EvWormholeCancelled, map[string]any{"reason": "cancelled"})
}

func (r *Router) handleWormholeProgress(c *Client, data json.RawMessage) {
	info, err := r.engine.TransitProgress(c.UserID())
	if err != nil {
		c.Enqueue(game.EvWormholeError, errorPayload{Message: err.Error()})
		return
	}
	c.Enqueue(game.EvWormholeProgress, info)
}

func (r *Router) handleWormholeNearest(c *Client, data json.RawMessage) {
	dest, err := r.engine.NearestWormhole(c.UserID())
	if err != nil {
		c.Enqueue(game.EvWormholeError, errorPayload{Message: err.Error()})
		return
	}
	c.Enqueue(game.EvWormholeNearest, dest)
}
