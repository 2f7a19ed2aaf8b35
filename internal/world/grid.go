/*
Package world
File: grid.go
Description:
    Uniform-grid spatial index over live entities (players, NPCs,
    projectiles, area effects). Cell size equals the sector size, so the
    entity index and the procedural query share a coordinate system.
    Mutations happen on the simulation thread; queries may come from
    API handlers, hence the read-write lock.
*/

package world

import (
	"math"
	"sort"
	"sync"
)

// EntityKind tags an entry in the entity index.
type EntityKind uint8

const (
	EntityPlayer EntityKind = iota
	EntityNPC
	EntityProjectile
	EntityEffect
	EntityWreckage
)

type cellKey struct{ sx, sy int }

type entityRec struct {
	kind EntityKind
	x, y float64
	cell cellKey
}

// Grid is the uniform-grid entity index.
type Grid struct {
	cellSize float64

	mu       sync.RWMutex
	cells    map[cellKey]map[string]struct{}
	entities map[string]entityRec
}

func NewGrid(cellSize float64) *Grid {
	return &Grid{
		cellSize: cellSize,
		cells:    make(map[cellKey]map[string]struct{}),
		entities: make(map[string]entityRec),
	}
}

func (g *Grid) cellFor(x, y float64) cellKey {
	return cellKey{int(math.Floor(x / g.cellSize)), int(math.Floor(y / g.cellSize))}
}

// Insert registers an entity. Inserting an existing id rebuckets it.
func (g *Grid) Insert(id string, kind EntityKind, x, y float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if old, ok := g.entities[id]; ok {
		delete(g.cells[old.cell], id)
	}
	c := g.cellFor(x, y)
	if g.cells[c] == nil {
		g.cells[c] = make(map[string]struct{})
	}
	g.cells[c][id] = struct{}{}
	g.entities[id] = entityRec{kind: kind, x: x, y: y, cell: c}
}

// Move updates an entity position, rebucketing only on a cell change.
func (g *Grid) Move(id string, x, y float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.entities[id]
	if !ok {
		return
	}
	c := g.cellFor(x, y)
	if c != rec.cell {
		delete(g.cells[rec.cell], id)
		if g.cells[c] == nil {
			g.cells[c] = make(map[string]struct{})
		}
		g.cells[c][id] = struct{}{}
	}
	rec.x, rec.y, rec.cell = x, y, c
	g.entities[id] = rec
}

// Remove drops an entity from the index.
func (g *Grid) Remove(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.entities[id]
	if !ok {
		return
	}
	delete(g.cells[rec.cell], id)
	if len(g.cells[rec.cell]) == 0 {
		delete(g.cells, rec.cell)
	}
	delete(g.entities, id)
}

// Position reports the indexed position of an entity.
func (g *Grid) Position(id string) (x, y float64, ok bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rec, found := g.entities[id]
	return rec.x, rec.y, found
}

// Query returns ids within radius of (x, y), sorted by id so equal-distance
// results are reproducible.
func (g *Grid) Query(x, y, radius float64) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	minC := g.cellFor(x-radius, y-radius)
	maxC := g.cellFor(x+radius, y+radius)
	r2 := radius * radius

	var out []string
	for sx := minC.sx; sx <= maxC.sx; sx++ {
		for sy := minC.sy; sy <= maxC.sy; sy++ {
			for id := range g.cells[cellKey{sx, sy}] {
				rec := g.entities[id]
				dx, dy := rec.x-x, rec.y-y
				if dx*dx+dy*dy <= r2 {
					out = append(out, id)
				}
			}
		}
	}
	sort.Strings(out)
	return out
}

// QueryKind is Query filtered to one entity kind.
func (g *Grid) QueryKind(x, y, radius float64, kind EntityKind) []string {
	ids := g.Query(x, y, radius)
	out := ids[:0]
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, id := range ids {
		if g.entities[id].kind == kind {
			out = append(out, id)
		}
	}
	return out
}

// Nearest expands Moore rings outward from (x, y) until it finds an entity
// of the requested kind or exhausts maxRings. Ties break on id ascending.
func (g *Grid) Nearest(x, y float64, kind EntityKind, maxRings int) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	center := g.cellFor(x, y)
	bestID := ""
	bestD2 := math.MaxFloat64

	consider := func(c cellKey) {
		for id := range g.cells[c] {
			rec := g.entities[id]
			if rec.kind != kind {
				continue
			}
			dx, dy := rec.x-x, rec.y-y
			d2 := dx*dx + dy*dy
			if d2 < bestD2 || (d2 == bestD2 && id < bestID) {
				bestD2 = d2
				bestID = id
			}
		}
	}

	foundRing := -1
	for ring := 0; ring <= maxRings; ring++ {
		// A hit inside ring N can still be beaten by ring N+1 along the
		// diagonal, so scan one extra ring before settling.
		if foundRing >= 0 && ring > foundRing+1 {
			break
		}
		if ring == 0 {
			consider(center)
		} else {
			for dx := -ring; dx <= ring; dx++ {
				for dy := -ring; dy <= ring; dy++ {
					if max(abs(dx), abs(dy)) != ring {
						continue
					}
					consider(cellKey{center.sx + dx, center.sy + dy})
				}
			}
		}
		if bestID != "" && foundRing < 0 {
			foundRing = ring
		}
	}
	return bestID, bestID != ""
}

// Len reports the number of indexed entities.
func (g *Grid) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entities)
}
