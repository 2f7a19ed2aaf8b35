/*
Package game
File: combat.go
Description:
    The damage model. Shields absorb at 100% up to their current value and
    the overflow lands on hull. A hit counts as a shield hit whenever the
    shield absorbed any non-zero share, including partial absorbs.
*/

package game

// DamageResult is what a single hit did to a target.
type DamageResult struct {
	HullAfter   float64 `json:"hull_after"`
	ShieldAfter float64 `json:"shield_after"`
	ShieldHit   bool    `json:"is_shield_hit"`
}

// ApplyDamage resolves damage against a (hull, shield) pair.
func ApplyDamage(hull, shield, damage float64) DamageResult {
	if damage < 0 {
		damage = 0
	}
	absorbed := damage
	if absorbed > shield {
		absorbed = shield
	}
	shieldAfter := shield - absorbed
	hullAfter := hull - (damage - absorbed)
	if hullAfter < 0 {
		hullAfter = 0
	}
	return DamageResult{
		HullAfter:   hullAfter,
		ShieldAfter: shieldAfter,
		ShieldHit:   absorbed > 0,
	}
}
