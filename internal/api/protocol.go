/*
Package api
File: protocol.go
Description:
    The wire protocol: one JSON envelope shape in both directions and two
    closed event sets. IncomingEvents is exactly the set the router
    dispatches; OutgoingEvents is everything the server may emit. The pair
    audit test in this package checks both lists against the dispatch table
    and the emit sites, so adding an event without registering it here
    fails the build's test run, not a client in production.
*/

package api

import (
	"encoding/json"

	"github.com/everforgeworks/galaxies-deepspace/internal/game"
)

// Envelope frames every message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Incoming event names. The router's dispatch table must cover exactly
// this set.
const (
	InAuthRegister = "auth:register"
	InAuthLogin    = "auth:login"
	InAuthValidate = "auth:validate"
	InPing         = "ping"

	InMovementUpdate = "movement:update"
	InWeaponFire     = "weapon:fire"

	InMiningStart  = "mining:start"
	InMiningCancel = "mining:cancel"
	InLootCollect  = "loot:collect"

	InMarketList          = "market:list"
	InMarketBuy           = "market:buy"
	InMarketCancel        = "market:cancel"
	InMarketGetListings   = "market:getListings"
	InMarketGetMyListings = "market:getMyListings"

	InWormholeEnter      = "wormhole:enter"
	InWormholeSelect     = "wormhole:selectDestination"
	InWormholeCancel     = "wormhole:cancel"
	InWormholeProgress   = "wormhole:getProgress"
	InWormholeNearestPos = "wormhole:getNearestPosition"

	InFleetCreate  = "fleet:create"
	InFleetInvite  = "fleet:invite"
	InFleetAccept  = "fleet:accept"
	InFleetDecline = "fleet:decline"
	InFleetKick    = "fleet:kick"
	InFleetLeave   = "fleet:leave"
	InFleetChat    = "fleet:chat"
	InFleetGetData = "fleet:getData"

	InShipSetProfile = "ship:setProfile"
	InShipSetColor   = "ship:setColor"
	InShipUpgrade    = "ship:upgrade"

	InChatSend  = "chat:send"
	InEmoteSend = "emote:send"

	InWorldGetNearby = "world:getNearby"
)

// IncomingEvents is the closed set of client-to-server events.
var IncomingEvents = []string{
	InAuthRegister, InAuthLogin, InAuthValidate, InPing,
	InMovementUpdate, InWeaponFire,
	InMiningStart, InMiningCancel, InLootCollect,
	InMarketList, InMarketBuy, InMarketCancel, InMarketGetListings, InMarketGetMyListings,
	InWormholeEnter, InWormholeSelect, InWormholeCancel, InWormholeProgress, InWormholeNearestPos,
	InFleetCreate, InFleetInvite, InFleetAccept, InFleetDecline, InFleetKick, InFleetLeave, InFleetChat, InFleetGetData,
	InShipSetProfile, InShipSetColor, InShipUpgrade,
	InChatSend, InEmoteSend,
	InWorldGetNearby,
}

// unauthEvents may arrive before authentication. Everything else on an
// unauthenticated socket is a protocol error: logged, never answered.
var unauthEvents = map[string]struct{}{
	InAuthRegister: {},
	InAuthLogin:    {},
	InAuthValidate: {},
	InPing:         {},
}

// Outgoing event names owned by the api layer; the engine's live under
// the game package.
const (
	OutAuthSuccess = "auth:success"
	OutAuthError   = "auth:error"
	OutPong        = "pong"

	OutChatMessage = "chat:message"
	OutChatError   = "chat:error"
	OutEmoteShown  = "emote:shown"

	OutMarketListings   = "market:listings"
	OutMarketMyListings = "market:myListings"
	OutMarketListed     = "market:listed"
	OutMarketBought     = "market:bought"
	OutMarketCancelled  = "market:cancelled"
	OutMarketUpdate     = "market:update"
	OutMarketError      = "market:error"

	OutFleetData   = "fleet:data"
	OutFleetUpdate = "fleet:update"
	OutFleetInvite = "fleet:invite"
	OutFleetChat   = "fleet:chat"
	OutFleetError  = "fleet:error"

	OutShipUpgraded = "ship:upgraded"
	OutShipError    = "ship:error"

	OutWorldNearby = "world:nearby"
	OutWorldError  = "world:error"
)

// OutgoingEvents is the closed set of server-to-client events, api-owned
// responses plus everything the engine emits.
var OutgoingEvents = []string{
	OutAuthSuccess, OutAuthError, OutPong,
	OutChatMessage, OutChatError, OutEmoteShown,
	OutMarketListings, OutMarketMyListings, OutMarketListed, OutMarketBought,
	OutMarketCancelled, OutMarketUpdate, OutMarketError,
	OutFleetData, OutFleetUpdate, OutFleetInvite, OutFleetChat, OutFleetError,
	OutShipUpgraded, OutShipError,
	OutWorldNearby, OutWorldError,

	game.EvPlayerJoined, game.EvPlayerLeave, game.EvPlayerMoved,
	game.EvPlayerDeath, game.EvPlayerRespawn,
	game.EvShipUpdate,
	game.EvWeaponFired, game.EvCombatHit, game.EvCombatExplosion,
	game.EvNPCSpawn, game.EvNPCMoved, game.EvNPCDeath,
	game.EvEffectSpawn, game.EvEffectRemove,
	game.EvMiningStarted, game.EvMiningComplete, game.EvMiningError,
	game.EvLootStarted, game.EvLootComplete, game.EvLootError,
	game.EvObjectDepleted, game.EvWreckageSpawned, game.EvWreckageRemoved,
	game.EvWormholeDestinations, game.EvWormholeSelected, game.EvWormholeEntered,
	game.EvWormholeExitComplete, game.EvWormholeCancelled, game.EvWormholeProgress,
	game.EvWormholeNearest, game.EvWormholeError,
}

// oneWayBroadcasts are outgoing events with no matching client command;
// the pair audit treats them as known exceptions.
var oneWayBroadcasts = map[string]struct{}{
	game.EvPlayerJoined:    {},
	game.EvPlayerLeave:     {},
	game.EvPlayerMoved:     {},
	game.EvPlayerDeath:     {},
	game.EvPlayerRespawn:   {},
	game.EvShipUpdate:      {},
	game.EvCombatHit:       {},
	game.EvCombatExplosion: {},
	game.EvNPCSpawn:        {},
	game.EvNPCMoved:        {},
	game.EvNPCDeath:        {},
	game.EvEffectSpawn:     {},
	game.EvEffectRemove:    {},
	game.EvObjectDepleted:  {},
	game.EvWreckageSpawned: {},
	game.EvWreckageRemoved: {},
	game.EvWormholeEntered: {},
	OutMarketUpdate:        {},
	OutFleetInvite:         {},
	OutFleetUpdate:         {},
	OutFleetChat:           {},
	OutChatMessage:         {},
	OutEmoteShown:          {},
}

// --- incoming payloads ---

type credentialsPayload struct {
	Username string `json:"username" validate:"required,min=3,max=20"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type validatePayload struct {
	Token string `json:"token" validate:"required,uuid4"`
}

type pingPayload struct {
	Timestamp int64 `json:"timestamp"`
}

type movementPayload struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	VX       float64 `json:"vx"`
	VY       float64 `json:"vy"`
	Rotation float64 `json:"rotation"`
	Boost    bool    `json:"boost"`
}

type firePayload struct {
	Rotation float64 `json:"rotation"`
}

type miningStartPayload struct {
	ObjectID string `json:"object_id" validate:"required,max=64"`
}

type lootCollectPayload struct {
	WreckageID string `json:"wreckage_id" validate:"required,max=64"`
}

type marketListPayload struct {
	ResourceType string `json:"resource_type" validate:"required,oneof=IRON CARBON TITANIUM PLATINUM CRYSTAL"`
	Quantity     int64  `json:"quantity" validate:"required,gt=0"`
	PricePerUnit int64  `json:"price_per_unit" validate:"required,gt=0"`
}

type marketBuyPayload struct {
	ListingID int64 `json:"listing_id" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"required,gt=0"`
}

type marketCancelPayload struct {
	ListingID int64 `json:"listing_id" validate:"required,gt=0"`
}

type wormholeEnterPayload struct {
	WormholeID string `json:"wormhole_id" validate:"required,max=64"`
}

type wormholeSelectPayload struct {
	DestinationID string `json:"destination_id" validate:"required,max=64"`
}

type fleetCreatePayload struct {
	Name string `json:"name" validate:"required,min=2,max=32"`
}

type fleetTargetPayload struct {
	UserID int64 `json:"user_id" validate:"required,gt=0"`
}

type fleetChatPayload struct {
	Message string `json:"message" validate:"required,max=256"`
}

type cosmeticPayload struct {
	ID int `json:"id" validate:"gte=0,lte=63"`
}

type upgradePayload struct {
	Component string `json:"component" validate:"required,oneof=engine weapon shield mining cargo radar energyCore hull"`
}

type chatPayload struct {
	Message string `json:"message" validate:"required,max=256"`
}

type emotePayload struct {
	Emote string `json:"emote" validate:"required,max=16"`
}

type errorPayload struct {
	Message string `json:"message"`
}
