/*
Package api
File: handlers_auth.go
Description:
    The auth handshake. Success binds the socket to the user, pulls the
    ship into the live simulation and answers with the full player payload.
    All failures collapse into auth:error with a stable message.
*/

package api

import (
	"context"
	"encoding/json"

	"github.com/everforgeworks/galaxies-deepspace/internal/auth"
)

type authSuccess struct {
	Token  string              `json:"token,omitempty"`
	Player *auth.PlayerPayload `json:"player"`
}

func (r *Router) handleRegister(c *Client, data json.RawMessage) {
	var in credentialsPayload
	if !decode(r, c, data, OutAuthError, &in) {
		return
	}
	token, payload, err := r.auth.Register(context.Background(), c.IP(), in.Username, in.Password)
	if err != nil {
		c.Enqueue(OutAuthError, errorPayload{Message: err.Error()})
		return
	}
	r.admit(c, token, payload)
}

func (r *Router) handleLogin(c *Client, data json.RawMessage) {
	var in credentialsPayload
	if !decode(r, c, data, OutAuthError, &in) {
		return
	}
	token, payload, err := r.auth.Login(context.Background(), c.IP(), in.Username, in.Password)
	if err != nil {
		c.Enqueue(OutAuthError, errorPayload{Message: err.Error()})
		return
	}
	r.admit(c, token, payload)
}

func (r *Router) handleValidate(c *Client, data json.RawMessage) {
	var in validatePayload
	if !decode(r, c, data, OutAuthError, &in) {
		return
	}
	_, payload, err := r.auth.Validate(context.Background(), in.Token)
	if err != nil {
		c.Enqueue(OutAuthError, errorPayload{Message: err.Error()})
		return
	}
	r.admitValidated(c, payload)
}

// admit completes a successful register/login.
func (r *Router) admit(c *Client, token string, payload *auth.PlayerPayload) {
	r.hub.BindUser(c, payload.ID)
	r.joinSimulation(c, payload)
	c.Enqueue(OutAuthSuccess, authSuccess{Token: token, Player: payload})
}

// admitValidated completes a token resume; no fresh token is issued.
func (r *Router) admitValidated(c *Client, payload *auth.PlayerPayload) {
	r.hub.BindUser(c, payload.ID)
	r.joinSimulation(c, payload)
	c.Enqueue(OutAuthSuccess, authSuccess{Player: payload})
}

func (r *Router) joinSimulation(c *Client, payload *auth.PlayerPayload) {
	ship, err := r.store.ShipByUser(context.Background(), payload.ID)
	if err != nil {
		r.log.Error().Err(err).Int64("user_id", payload.ID).Msg("ship load on admit failed")
		return
	}
	r.engine.Join(ship, payload.Username)
}
