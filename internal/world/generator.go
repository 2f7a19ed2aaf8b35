/*
Package world
File: generator.go
Description:
    Deterministic procedural galaxy. A sector's content is a pure function
    of (seed, sx, sy): the same inputs yield bit-identical object ids,
    sizes, resource tables and orbital parameters on every process. The
    randomness comes from a splitmix64 mixing hash seeding one PRNG per
    object family, so adding an object kind never disturbs the others.
*/

package world

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/everforgeworks/galaxies-deepspace/internal/config"
)

// ObjectKind tags a generated world object.
type ObjectKind string

const (
	KindStar     ObjectKind = "star"
	KindPlanet   ObjectKind = "planet"
	KindAsteroid ObjectKind = "ast"
	KindWormhole ObjectKind = "wormhole"
	KindStation  ObjectKind = "station"
)

// Object is one procedural world object. Orbitals store their parameters and
// compute their position on demand; nothing here is ever persisted.
type Object struct {
	ID     string
	Kind   ObjectKind
	SX, SY int

	// Base position in world units. For orbitals this is the parent anchor.
	X, Y float64

	Size      float64
	Resources []string

	Orbital     bool
	OrbitRadius float64
	AngularVel  float64 // radians per second
	Phase       float64

	// Wormholes carry a destination sector hint for lore. Selection at entry
	// time uses nearest-by-distance, so the hint has no runtime effect.
	DestHintSX, DestHintSY int
}

// PositionAt resolves the object's world position at time t.
func (o *Object) PositionAt(t time.Time) (float64, float64) {
	if !o.Orbital {
		return o.X, o.Y
	}
	theta := o.Phase + o.AngularVel*float64(t.UnixMilli())/1000.0
	return o.X + math.Cos(theta)*o.OrbitRadius, o.Y + math.Sin(theta)*o.OrbitRadius
}

// Sector is the generated content of one grid square.
type Sector struct {
	SX, SY  int
	Star    *Object
	Objects []*Object // all objects including the star
}

// Wormhole returns the sector's wormhole, or nil.
func (s *Sector) Wormhole() *Object {
	for _, o := range s.Objects {
		if o.Kind == KindWormhole {
			return o
		}
	}
	return nil
}

// SectorSource is what the simulation needs from a generator. Tests swap in
// fixed fixtures.
type SectorSource interface {
	Sector(sx, sy int) *Sector
	SectorSize() float64
}

// Generator produces sectors for one galaxy seed. Sectors are immutable once
// generated, so they are cached behind a read-mostly lock.
type Generator struct {
	seed  int64
	world config.WorldTuning

	mu    sync.RWMutex
	cache map[[2]int]*Sector
}

func NewGenerator(seed int64, world config.WorldTuning) *Generator {
	return &Generator{
		seed:  seed,
		world: world,
		cache: make(map[[2]int]*Sector),
	}
}

func (g *Generator) SectorSize() float64 { return g.world.SectorSize }

// Sector returns the deterministic content for (sx, sy).
func (g *Generator) Sector(sx, sy int) *Sector {
	key := [2]int{sx, sy}
	g.mu.RLock()
	if s, ok := g.cache[key]; ok {
		g.mu.RUnlock()
		return s
	}
	g.mu.RUnlock()

	s := g.generate(sx, sy)

	g.mu.Lock()
	g.cache[key] = s
	g.mu.Unlock()
	return s
}

// splitmix64 is the mixing hash behind every object's PRNG seed.
func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

func (g *Generator) rng(sx, sy int, kind ObjectKind, index int) *rand.Rand {
	h := splitmix64(uint64(g.seed))
	h = splitmix64(h ^ uint64(int64(sx)))
	h = splitmix64(h ^ uint64(int64(sy))<<1)
	for _, c := range []byte(kind) {
		h = splitmix64(h ^ uint64(c))
	}
	h = splitmix64(h ^ uint64(int64(index)))
	return rand.New(rand.NewSource(int64(h)))
}

func (g *Generator) objectID(sx, sy int, kind ObjectKind, index int) string {
	return fmt.Sprintf("sector_%d_%d_%s_%d", sx, sy, kind, index)
}

var asteroidResources = [][]string{
	{"IRON"},
	{"IRON", "TITANIUM"},
	{"TITANIUM", "PLATINUM"},
	{"PLATINUM", "CRYSTAL"},
}

var planetResources = [][]string{
	{"IRON", "CARBON"},
	{"CARBON", "TITANIUM"},
	{"TITANIUM", "CRYSTAL"},
}

func (g *Generator) generate(sx, sy int) *Sector {
	s := &Sector{SX: sx, SY: sy}
	size := g.world.SectorSize
	baseX := float64(sx) * size
	baseY := float64(sy) * size

	// Star. Sectors near the origin never roll one so deep-space spawn has
	// guaranteed clear room.
	excl := g.world.StarOriginExclusion
	if abs(sx) > excl || abs(sy) > excl {
		r := g.rng(sx, sy, KindStar, 0)
		if r.Float64() < g.world.StarChance {
			star := &Object{
				ID:   g.objectID(sx, sy, KindStar, 0),
				Kind: KindStar,
				SX:   sx, SY: sy,
				X:    baseX + size*(0.25+0.5*r.Float64()),
				Y:    baseY + size*(0.25+0.5*r.Float64()),
				Size: g.world.StarSizeMax * (0.5 + 0.5*r.Float64()),
			}
			s.Star = star
			s.Objects = append(s.Objects, star)
		}
	}

	// Planets orbit the star on fixed ellipses.
	if s.Star != nil {
		r := g.rng(sx, sy, KindPlanet, 0)
		n := r.Intn(g.world.PlanetsMax + 1)
		for i := 0; i < n; i++ {
			pr := g.rng(sx, sy, KindPlanet, i+1)
			planet := &Object{
				ID:   g.objectID(sx, sy, KindPlanet, i),
				Kind: KindPlanet,
				SX:   sx, SY: sy,
				X:    s.Star.X,
				Y:    s.Star.Y,
				Size: 30 + 50*pr.Float64(),
				Resources: planetResources[pr.Intn(len(planetResources))],
				Orbital:     true,
				OrbitRadius: s.Star.Size*2 + (120+pr.Float64()*300)*float64(i+1),
				AngularVel:  (0.02 + 0.06*pr.Float64()) / float64(i+1),
				Phase:       pr.Float64() * 2 * math.Pi,
			}
			s.Objects = append(s.Objects, planet)
		}
	}

	// Asteroids: belt-like orbitals around a star, free-floating otherwise.
	ar := g.rng(sx, sy, KindAsteroid, 0)
	count := g.world.AsteroidsMin
	if span := g.world.AsteroidsMax - g.world.AsteroidsMin; span > 0 {
		count += ar.Intn(span + 1)
	}
	for i := 0; i < count; i++ {
		rr := g.rng(sx, sy, KindAsteroid, i+1)
		a := &Object{
			ID:   g.objectID(sx, sy, KindAsteroid, i),
			Kind: KindAsteroid,
			SX:   sx, SY: sy,
			Size: 8 + 16*rr.Float64(),
			Resources: asteroidResources[rr.Intn(len(asteroidResources))],
		}
		if s.Star != nil && rr.Float64() < 0.6 {
			a.Orbital = true
			a.X = s.Star.X
			a.Y = s.Star.Y
			a.OrbitRadius = s.Star.Size*3 + rr.Float64()*size*0.4
			a.AngularVel = 0.01 + 0.05*rr.Float64()
			a.Phase = rr.Float64() * 2 * math.Pi
		} else {
			a.X = baseX + size*rr.Float64()
			a.Y = baseY + size*rr.Float64()
		}
		s.Objects = append(s.Objects, a)
	}

	// Wormhole.
	wr := g.rng(sx, sy, KindWormhole, 0)
	if wr.Float64() < g.world.WormholeChance {
		w := &Object{
			ID:   g.objectID(sx, sy, KindWormhole, 0),
			Kind: KindWormhole,
			SX:   sx, SY: sy,
			X:    baseX + size*(0.1+0.8*wr.Float64()),
			Y:    baseY + size*(0.1+0.8*wr.Float64()),
			Size: 20 + 20*wr.Float64(),
			DestHintSX: sx + wr.Intn(41) - 20,
			DestHintSY: sy + wr.Intn(41) - 20,
		}
		s.Objects = append(s.Objects, w)
	}

	// Trade station.
	tr := g.rng(sx, sy, KindStation, 0)
	if tr.Float64() < g.world.StationChance {
		st := &Object{
			ID:   g.objectID(sx, sy, KindStation, 0),
			Kind: KindStation,
			SX:   sx, SY: sy,
			X:    baseX + size*(0.2+0.6*tr.Float64()),
			Y:    baseY + size*(0.2+0.6*tr.Float64()),
			Size: 40,
		}
		s.Objects = append(s.Objects, st)
	}

	return s
}

// SectorOf maps a world position to sector coordinates.
func SectorOf(x, y, sectorSize float64) (int, int) {
	return int(math.Floor(x / sectorSize)), int(math.Floor(y / sectorSize))
}

// VisibleObjects enumerates generated objects within radius of (x, y) at
// time t. It walks the sectors intersecting the query's bounding box and
// distance-filters, resolving orbital positions as it goes.
func VisibleObjects(src SectorSource, x, y, radius float64, t time.Time) []*Object {
	size := src.SectorSize()
	minSX, minSY := SectorOf(x-radius, y-radius, size)
	maxSX, maxSY := SectorOf(x+radius, y+radius, size)

	var out []*Object
	for sx := minSX; sx <= maxSX; sx++ {
		for sy := minSY; sy <= maxSY; sy++ {
			for _, o := range src.Sector(sx, sy).Objects {
				ox, oy := o.PositionAt(t)
				if dist(x, y, ox, oy) <= radius+o.Size {
					out = append(out, o)
				}
			}
		}
	}
	return out
}

// FindObject resolves an object id back to its instance, or nil. The sector
// coordinates are embedded in the id, so only one sector is generated.
func FindObject(src SectorSource, id string) *Object {
	var sx, sy int
	var rest string
	if _, err := fmt.Sscanf(id, "sector_%d_%d_%s", &sx, &sy, &rest); err != nil {
		return nil
	}
	for _, o := range src.Sector(sx, sy).Objects {
		if o.ID == id {
			return o
		}
	}
	return nil
}

func dist(x1, y1, x2, y2 float64) float64 {
	dx, dy := x2-x1, y2-y1
	return math.Sqrt(dx*dx + dy*dy)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
