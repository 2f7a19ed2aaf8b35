/*
Package game
File: protocol.go
Description: Names of the events the engine emits. The api package owns the
full outgoing set and its pair audit; keeping the engine's names as constants
here lets that audit see them without string scraping.
*/

package game

const (
	EvPlayerJoined  = "player:joined"
	EvPlayerLeave   = "player:leave"
	EvPlayerMoved   = "player:moved"
	EvPlayerDeath   = "player:death"
	EvPlayerRespawn = "player:respawn"

	EvShipUpdate = "ship:update"

	EvWeaponFired     = "weapon:fired"
	EvCombatHit       = "combat:hit"
	EvCombatExplosion = "combat:explosion"

	EvNPCSpawn = "npc:spawn"
	EvNPCMoved = "npc:moved"
	EvNPCDeath = "npc:death"

	EvEffectSpawn  = "world:effectSpawned"
	EvEffectRemove = "world:effectRemoved"

	EvMiningStarted  = "mining:started"
	EvMiningComplete = "mining:complete"
	EvMiningError    = "mining:error"

	EvLootStarted  = "loot:started"
	EvLootComplete = "loot:complete"
	EvLootError    = "loot:error"

	EvObjectDepleted  = "world:objectDepleted"
	EvWreckageSpawned = "world:wreckageSpawned"
	EvWreckageRemoved = "world:wreckageRemoved"

	EvWormholeDestinations = "wormhole:destinations"
	EvWormholeSelected     = "wormhole:selected"
	EvWormholeEntered      = "wormhole:entered"
	EvWormholeExitComplete = "wormhole:exitComplete"
	EvWormholeCancelled    = "wormhole:cancelled"
	EvWormholeProgress     = "wormhole:progress"
	EvWormholeNearest      = "wormhole:nearest"
	EvWormholeError        = "wormhole:error"
)
