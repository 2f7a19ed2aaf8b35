/*
Package game
File: errors.go
Description: Stable user-visible failures for simulation commands. These
strings show up in client toasts and must not drift.
*/

package game

import "errors"

var (
	ErrNotConnected   = errors.New("Not connected")
	ErrDead           = errors.New("Cannot act while destroyed")
	ErrBusy           = errors.New("Another action is in progress")
	ErrObjectNotFound = errors.New("Object not found")
	ErrTooFar         = errors.New("Too far from resource")
	ErrDepleted       = errors.New("Resource depleted")
	ErrAlreadyMining  = errors.New("Already mining")
	ErrNotMineable    = errors.New("Nothing to mine here")

	ErrWreckageGone   = errors.New("Wreckage not found")
	ErrTooFarWreckage = errors.New("Too far from wreckage")
	ErrAlreadyLooting = errors.New("Already collecting")

	ErrGemRequired        = errors.New("Wormhole gem required")
	ErrAlreadyInTransit   = errors.New("Already in wormhole transit")
	ErrTooFarWormhole     = errors.New("Too far from wormhole")
	ErrNoDestinations     = errors.New("No destination wormholes available")
	ErrInvalidDestination = errors.New("Invalid destination")
	ErrNoTransit          = errors.New("No transit in progress")
	ErrTransitLocked      = errors.New("Cannot cancel during transit")

	ErrWeaponCooling = errors.New("Weapon still cooling down")
)
