/*
Package api
File: handlers_ship.go
Description:
    Cosmetics, upgrades, chat and emotes. Upgrades run through the store's
    atomic verify-debit-bump transaction and then refresh the live ship so
    the new tier takes effect mid-session.
*/

package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/everforgeworks/galaxies-deepspace/internal/config"
	"github.com/everforgeworks/galaxies-deepspace/internal/store"
)

func (r *Router) handleSetProfile(c *Client, data json.RawMessage) {
	var in cosmeticPayload
	if !decode(r, c, data, OutShipError, &in) {
		return
	}
	userID := c.UserID()
	if err := r.store.SetCosmetics(context.Background(), userID, nil, &in.ID); err != nil {
		c.Enqueue(OutShipError, errorPayload{Message: "Update failed"})
		return
	}
	r.engine.UpdateCosmetics(userID, nil, &in.ID)
}

func (r *Router) handleSetColor(c *Client, data json.RawMessage) {
	var in cosmeticPayload
	if !decode(r, c, data, OutShipError, &in) {
		return
	}
	userID := c.UserID()
	if err := r.store.SetCosmetics(context.Background(), userID, &in.ID, nil); err != nil {
		c.Enqueue(OutShipError, errorPayload{Message: "Update failed"})
		return
	}
	r.engine.UpdateCosmetics(userID, &in.ID, nil)
}

func (r *Router) handleUpgrade(c *Client, data json.RawMessage) {
	var in upgradePayload
	if !decode(r, c, data, OutShipError, &in) {
		return
	}
	userID := c.UserID()
	ctx := context.Background()

	ship, err := r.store.ShipByUser(ctx, userID)
	if err != nil {
		c.Enqueue(OutShipError, errorPayload{Message: "Upgrade failed"})
		return
	}
	current := currentTier(ship, in.Component)
	if current >= config.TierMax {
		c.Enqueue(OutShipError, errorPayload{Message: "Component already at maximum tier"})
		return
	}
	target := current + 1
	cost, ok := r.bal.UpgradeCostFor(in.Component, target)
	if !ok {
		c.Enqueue(OutShipError, errorPayload{Message: "Upgrade not available"})
		return
	}

	// Hull and shield upgrades grow the pool; the store writes the new
	// maxima in the same transaction as the debit.
	var newHullMax, newShieldMax float64
	if in.Component == "hull" {
		newHullMax = r.bal.HullMax(target)
	}
	if in.Component == "shield" {
		newShieldMax = r.bal.ShieldMax(target)
	}

	if err := r.store.ApplyUpgrade(ctx, userID, in.Component, target, cost.Credits, cost.Resources, newHullMax, newShieldMax); err != nil {
		c.Enqueue(OutShipError, errorPayload{Message: err.Error()})
		return
	}

	updated, err := r.store.ShipByUser(ctx, userID)
	if err == nil {
		r.engine.RefreshShip(updated)
	}
	c.Enqueue(OutShipUpgraded, map[string]any{
		"component": in.Component,
		"tier":      target,
	})
}

func currentTier(ship *store.Ship, component string) int {
	switch component {
	case "engine":
		return ship.EngineTier
	case "weapon":
		return ship.WeaponTier
	case "shield":
		return ship.ShieldTier
	case "mining":
		return ship.MiningTier
	case "cargo":
		return ship.CargoTier
	case "radar":
		return ship.RadarTier
	case "energyCore":
		return ship.EnergyCoreTier
	case "hull":
		return ship.HullTier
	}
	return config.TierMax // unknown components never upgrade
}

func (r *Router) handleChatSend(c *Client, data json.RawMessage) {
	var in chatPayload
	if !decode(r, c, data, OutChatError, &in) {
		return
	}
	userID := c.UserID()
	if !r.chatAllowed(userID) {
		c.Enqueue(OutChatError, errorPayload{Message: "Rate limited"})
		return
	}
	sender, err := r.store.UserByID(context.Background(), userID)
	if err != nil {
		return
	}
	msg := map[string]any{
		"from":    sender.Username,
		"user_id": userID,
		"message": in.Message,
		"ts":      time.Now().UnixMilli(),
	}
	c.Enqueue(OutChatMessage, msg)
	r.engine.BroadcastFromPlayer(userID, OutChatMessage, msg)
}

func (r *Router) handleEmoteSend(c *Client, data json.RawMessage) {
	var in emotePayload
	if !decode(r, c, data, OutChatError, &in) {
		return
	}
	userID := c.UserID()
	r.engine.BroadcastFromPlayer(userID, OutEmoteShown, map[string]any{
		"user_id": userID,
		"emote":   in.Emote,
	})
}
