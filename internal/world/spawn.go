/*
Package world
File: spawn.go
Description: Deep-space spawn picking for new ships, respawns and relocation.
*/

package world

import (
	"math/rand"
	"time"
)

// starClearance is how far (in multiples of the biggest star size) a spawn
// point must sit from any star.
const starClearance = 2.0

// DeepSpaceSpawn returns a point clear of every star. It samples inside the
// origin exclusion zone, where sectors never generate stars, and verifies
// the neighbouring sectors anyway in case the exclusion is configured small.
func DeepSpaceSpawn(src SectorSource, starSizeMax float64, rng *rand.Rand) (float64, float64) {
	size := src.SectorSize()
	span := size * 1.5
	for attempt := 0; attempt < 64; attempt++ {
		x := (rng.Float64()*2 - 1) * span
		y := (rng.Float64()*2 - 1) * span
		if ClearOfStars(src, x, y, starSizeMax) {
			return x, y
		}
	}
	// The origin sector itself is star-free by construction.
	return 0, 0
}

// ClearOfStars reports whether (x, y) is beyond the clearance distance from
// every star in the surrounding sectors.
func ClearOfStars(src SectorSource, x, y, starSizeMax float64) bool {
	limit := starSizeMax * starClearance
	sx, sy := SectorOf(x, y, src.SectorSize())
	now := time.Now()
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			s := src.Sector(sx+dx, sy+dy)
			if s.Star == nil {
				continue
			}
			ox, oy := s.Star.PositionAt(now)
			if dist(x, y, ox, oy) <= limit {
				return false
			}
		}
	}
	return true
}
