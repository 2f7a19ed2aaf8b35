/*
Package api
File: handlers_fleet.go
Description:
    Fleet commands. Membership is durable (store tables); invites and chat
    are ephemeral. Fleet chat is a broadcast to the current member list and
    is never persisted.
*/

package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/everforgeworks/galaxies-deepspace/internal/store"
)

type fleetView struct {
	ID       int64             `json:"id"`
	Name     string            `json:"name"`
	LeaderID int64             `json:"leader_id"`
	Members  []fleetMemberView `json:"members"`
}

type fleetMemberView struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Online   bool   `json:"online"`
}

func (r *Router) viewFleet(info *store.FleetInfo) fleetView {
	v := fleetView{
		ID:       info.Fleet.ID,
		Name:     info.Fleet.Name,
		LeaderID: info.Fleet.LeaderID,
		Members:  make([]fleetMemberView, 0, len(info.Members)),
	}
	for _, m := range info.Members {
		v.Members = append(v.Members, fleetMemberView{
			UserID:   m.UserID,
			Username: m.Username,
			Online:   r.engine.IsOnline(m.UserID),
		})
	}
	return v
}

// pushFleetUpdate refreshes the fleet view for every member.
func (r *Router) pushFleetUpdate(info *store.FleetInfo) {
	view := r.viewFleet(info)
	for _, m := range info.Members {
		r.hub.Send(m.UserID, OutFleetUpdate, view)
	}
}

func (r *Router) handleFleetCreate(c *Client, data json.RawMessage) {
	var in fleetCreatePayload
	if !decode(r, c, data, OutFleetError, &in) {
		return
	}
	fleet, err := r.store.CreateFleet(context.Background(), in.Name, c.UserID())
	if err != nil {
		c.Enqueue(OutFleetError, errorPayload{Message: err.Error()})
		return
	}
	info, err := r.store.FleetByID(context.Background(), fleet.ID)
	if err != nil {
		c.Enqueue(OutFleetError, errorPayload{Message: err.Error()})
		return
	}
	c.Enqueue(OutFleetData, r.viewFleet(info))
}

func (r *Router) handleFleetInvite(c *Client, data json.RawMessage) {
	var in fleetTargetPayload
	if !decode(r, c, data, OutFleetError, &in) {
		return
	}
	userID := c.UserID()
	ctx := context.Background()

	info, err := r.store.FleetOf(ctx, userID)
	if err != nil {
		c.Enqueue(OutFleetError, errorPayload{Message: err.Error()})
		return
	}
	if info.Fleet.LeaderID != userID {
		c.Enqueue(OutFleetError, errorPayload{Message: "Only the fleet leader can invite"})
		return
	}
	if len(info.Members) >= store.MaxFleetSize {
		c.Enqueue(OutFleetError, errorPayload{Message: store.ErrFleetFull.Error()})
		return
	}
	if !r.engine.IsOnline(in.UserID) {
		c.Enqueue(OutFleetError, errorPayload{Message: "Player is not online"})
		return
	}
	inviter, err := r.store.UserByID(ctx, userID)
	if err != nil {
		c.Enqueue(OutFleetError, errorPayload{Message: "Invite failed"})
		return
	}

	r.invites.add(in.UserID, info.Fleet.ID, userID)
	r.hub.Send(in.UserID, OutFleetInvite, map[string]any{
		"fleet_id":   info.Fleet.ID,
		"fleet_name": info.Fleet.Name,
		"from":       inviter.Username,
	})
}

type fleetInviteReply struct {
	FleetID int64 `json:"fleet_id" validate:"required,gt=0"`
}

func (r *Router) handleFleetAccept(c *Client, data json.RawMessage) {
	var in fleetInviteReply
	if !decode(r, c, data, OutFleetError, &in) {
		return
	}
	userID := c.UserID()
	if !r.invites.take(userID, in.FleetID) {
		c.Enqueue(OutFleetError, errorPayload{Message: "Invite not found"})
		return
	}
	if err := r.store.AddFleetMember(context.Background(), in.FleetID, userID); err != nil {
		c.Enqueue(OutFleetError, errorPayload{Message: err.Error()})
		return
	}
	info, err := r.store.FleetByID(context.Background(), in.FleetID)
	if err != nil {
		c.Enqueue(OutFleetError, errorPayload{Message: err.Error()})
		return
	}
	r.pushFleetUpdate(info)
}

func (r *Router) handleFleetDecline(c *Client, data json.RawMessage) {
	var in fleetInviteReply
	if !decode(r, c, data, OutFleetError, &in) {
		return
	}
	r.invites.take(c.UserID(), in.FleetID)
}

func (r *Router) handleFleetKick(c *Client, data json.RawMessage) {
	var in fleetTargetPayload
	if !decode(r, c, data, OutFleetError, &in) {
		return
	}
	userID := c.UserID()
	ctx := context.Background()

	info, err := r.store.FleetOf(ctx, userID)
	if err != nil {
		c.Enqueue(OutFleetError, errorPayload{Message: err.Error()})
		return
	}
	if info.Fleet.LeaderID != userID || in.UserID == userID {
		c.Enqueue(OutFleetError, errorPayload{Message: "Only the fleet leader can kick"})
		return
	}
	if err := r.store.RemoveFleetMember(ctx, info.Fleet.ID, in.UserID); err != nil {
		c.Enqueue(OutFleetError, errorPayload{Message: err.Error()})
		return
	}
	r.hub.Send(in.UserID, OutFleetUpdate, map[string]any{"kicked": true, "fleet_id": info.Fleet.ID})
	if refreshed, err := r.store.FleetByID(ctx, info.Fleet.ID); err == nil {
		r.pushFleetUpdate(refreshed)
	}
}

func (r *Router) handleFleetLeave(c *Client, data json.RawMessage) {
	userID := c.UserID()
	ctx := context.Background()

	info, err := r.store.FleetOf(ctx, userID)
	if err != nil {
		c.Enqueue(OutFleetError, errorPayload{Message: err.Error()})
		return
	}
	if err := r.store.RemoveFleetMember(ctx, info.Fleet.ID, userID); err != nil {
		c.Enqueue(OutFleetError, errorPayload{Message: err.Error()})
		return
	}
	c.Enqueue(OutFleetUpdate, map[string]any{"left": true, "fleet_id": info.Fleet.ID})
	if refreshed, err := r.store.FleetByID(ctx, info.Fleet.ID); err == nil {
		r.pushFleetUpdate(refreshed)
	}
}

func (r *Router) handleFleetChat(c *Client, data json.RawMessage) {
	var in fleetChatPayload
	if !decode(r, c, data, OutFleetError, &in) {
		return
	}
	userID := c.UserID()
	if !r.chatAllowed(userID) {
		c.Enqueue(OutFleetError, errorPayload{Message: "Rate limited"})
		return
	}
	ctx := context.Background()
	info, err := r.store.FleetOf(ctx, userID)
	if err != nil {
		c.Enqueue(OutFleetError, errorPayload{Message: err.Error()})
		return
	}
	sender, err := r.store.UserByID(ctx, userID)
	if err != nil {
		return
	}
	msg := map[string]any{
		"fleet_id": info.Fleet.ID,
		"from":     sender.Username,
		"message":  in.Message,
		"ts":       time.Now().UnixMilli(),
	}
	for _, m := range info.Members {
		r.hub.Send(m.UserID, OutFleetChat, msg)
	}
}

func (r *Router) handleFleetGetData(c *Client, data json.RawMessage) {
	info, err := r.store.FleetOf(context.Background(), c.UserID())
	if err != nil {
		c.Enqueue(OutFleetError, errorPayload{Message: err.Error()})
		return
	}
	c.Enqueue(OutFleetData, r.viewFleet(info))
}
