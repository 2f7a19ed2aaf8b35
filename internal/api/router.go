/*
Package api
File: router.go
Description:
    Per-connection command dispatch. The dispatch table is an explicit map
    keyed by event name so the protocol audit can diff it against the
    closed incoming set. Unauthenticated sockets may only speak the auth
    handshake and ping; anything else is logged and ignored, never
    answered, so probing yields nothing. A panicking handler is contained
    to the offending command.
*/

package api

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/everforgeworks/galaxies-deepspace/internal/auth"
	"github.com/everforgeworks/galaxies-deepspace/internal/config"
	"github.com/everforgeworks/galaxies-deepspace/internal/game"
	"github.com/everforgeworks/galaxies-deepspace/internal/store"
)

type handlerFunc func(c *Client, data json.RawMessage)

// Router owns the dispatch table and the handler dependencies. Handlers
// reach shared state only through these fields; there are no package-level
// mutables.
type Router struct {
	auth   *auth.Service
	engine *game.Engine
	store  *store.Store
	bal    *config.Balance
	hub    *Hub
	log    zerolog.Logger

	validate *validator.Validate
	handlers map[string]handlerFunc

	invites *inviteTable

	chatMu       sync.Mutex
	chatLimiters map[int64]*rate.Limiter
}

func NewRouter(authSvc *auth.Service, engine *game.Engine, st *store.Store, bal *config.Balance, log zerolog.Logger) *Router {
	r := &Router{
		auth:         authSvc,
		engine:       engine,
		store:        st,
		bal:          bal,
		log:          log.With().Str("category", "router").Logger(),
		validate:     validator.New(),
		invites:      newInviteTable(),
		chatLimiters: make(map[int64]*rate.Limiter),
	}
	r.handlers = map[string]handlerFunc{
		InAuthRegister: r.handleRegister,
		InAuthLogin:    r.handleLogin,
		InAuthValidate: r.handleValidate,
		InPing:         r.handlePing,

		InMovementUpdate: r.handleMovement,
		InWeaponFire:     r.handleFire,

		InMiningStart:  r.handleMiningStart,
		InMiningCancel: r.handleMiningCancel,
		InLootCollect:  r.handleLootCollect,

		InMarketList:          r.handleMarketList,
		InMarketBuy:           r.handleMarketBuy,
		InMarketCancel:        r.handleMarketCancel,
		InMarketGetListings:   r.handleMarketGetListings,
		InMarketGetMyListings: r.handleMarketGetMyListings,

		InWormholeEnter:      r.handleWormholeEnter,
		InWormholeSelect:     r.handleWormholeSelect,
		InWormholeCancel:     r.handleWormholeCancel,
		InWormholeProgress:   r.handleWormholeProgress,
		InWormholeNearestPos: r.handleWormholeNearest,

		InFleetCreate:  r.handleFleetCreate,
		InFleetInvite:  r.handleFleetInvite,
		InFleetAccept:  r.handleFleetAccept,
		InFleetDecline: r.handleFleetDecline,
		InFleetKick:    r.handleFleetKick,
		InFleetLeave:   r.handleFleetLeave,
		InFleetChat:    r.handleFleetChat,
		InFleetGetData: r.handleFleetGetData,

		InShipSetProfile: r.handleSetProfile,
		InShipSetColor:   r.handleSetColor,
		InShipUpgrade:    r.handleUpgrade,

		InChatSend:  r.handleChatSend,
		InEmoteSend: r.handleEmoteSend,

		InWorldGetNearby: r.handleWorldGetNearby,
	}
	return r
}

// Handlers exposes the dispatch table for the protocol audit.
func (r *Router) Handlers() map[string]handlerFunc {
	return r.handlers
}

// dispatch routes one decoded envelope. Called from the client's readPump.
func (r *Router) dispatch(c *Client, env Envelope) {
	handler, known := r.handlers[env.Event]
	if !known {
		// Protocol error: logged, never answered.
		r.log.Debug().Str("socket_id", c.ID()).Str("event", env.Event).Msg("unknown event ignored")
		return
	}
	if c.UserID() == 0 {
		if _, allowed := unauthEvents[env.Event]; !allowed {
			r.log.Debug().Str("socket_id", c.ID()).Str("event", env.Event).Msg("unauthenticated command ignored")
			return
		}
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Str("socket_id", c.ID()).Str("event", env.Event).Interface("panic", rec).Msg("handler fault")
		}
	}()
	handler(c, env.Data)
}

// onDisconnect runs after the socket is gone: the simulation sees the
// departure, pending invites are dropped.
func (r *Router) onDisconnect(userID int64) {
	r.engine.Leave(userID)
	r.invites.dropUser(userID)

	r.chatMu.Lock()
	delete(r.chatLimiters, userID)
	r.chatMu.Unlock()
}

// decode unmarshals and validates an incoming payload. A false return means
// the caller should stop; the offender already got its error.
func decode[T any](r *Router, c *Client, data json.RawMessage, errEvent string, out *T) bool {
	if len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			c.Enqueue(errEvent, errorPayload{Message: "Malformed payload"})
			return false
		}
	}
	if err := r.validate.Struct(out); err != nil {
		c.Enqueue(errEvent, errorPayload{Message: "Invalid payload"})
		return false
	}
	return true
}

// chatAllowed enforces the per-sender chat rate limit: 4 messages per
// second sustained, burst of 8.
func (r *Router) chatAllowed(userID int64) bool {
	r.chatMu.Lock()
	defer r.chatMu.Unlock()
	lim, ok := r.chatLimiters[userID]
	if !ok {
		lim = rate.NewLimiter(4, 8)
		r.chatLimiters[userID] = lim
	}
	return lim.Allow()
}

// inviteTable is the in-memory fleet invite book. Invites are ephemeral:
// they do not survive a disconnect of either side.
type inviteTable struct {
	mu sync.Mutex
	// invitee -> fleetID -> inviter
	pending map[int64]map[int64]int64
}

func newInviteTable() *inviteTable {
	return &inviteTable{pending: make(map[int64]map[int64]int64)}
}

func (t *inviteTable) add(invitee, fleetID, inviter int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending[invitee] == nil {
		t.pending[invitee] = make(map[int64]int64)
	}
	t.pending[invitee][fleetID] = inviter
}

// take consumes an invite, reporting whether it existed.
func (t *inviteTable) take(invitee, fleetID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pending[invitee][fleetID]; !ok {
		return false
	}
	delete(t.pending[invitee], fleetID)
	if len(t.pending[invitee]) == 0 {
		delete(t.pending, invitee)
	}
	return true
}

func (t *inviteTable) dropUser(userID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, userID)
}

// pingResponse echoes the client timestamp with the server's.
type pingResponse struct {
	Timestamp int64 `json:"timestamp"`
	ServerTS  int64 `json:"server_ts"`
}

func (r *Router) handlePing(c *Client, data json.RawMessage) {
	var in pingPayload
	if len(data) > 0 {
		_ = json.Unmarshal(data, &in) // a bare ping is fine
	}
	c.Enqueue(OutPong, pingResponse{Timestamp: in.Timestamp, ServerTS: time.Now().UnixMilli()})
}
