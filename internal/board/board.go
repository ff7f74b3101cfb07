// Package board holds the player's construction: placed segments, the
// segment inventory and the running build cost. All edits go through
// Place, Remove and Rotate, which keep inventory and cost consistent.
package board

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/samber/lo"

	"github.com/talgya/gridtransit/internal/segment"
	"github.com/talgya/gridtransit/internal/world"
)

// Placement errors.
var (
	ErrOutOfBounds      = errors.New("out of bounds")
	ErrOccupied         = errors.New("tile occupied")
	ErrTerrainForbidden = errors.New("terrain forbids segment")
	ErrInventoryEmpty   = errors.New("no segments of that type left")
	ErrInvalidRotation  = errors.New("rotation must be a multiple of 90")
	ErrNoSegment        = errors.New("no segment on tile")
	ErrLocked           = errors.New("segment is locked")
)

// PlacementError describes a rejected board edit.
type PlacementError struct {
	Op   string // "place", "remove" or "rotate"
	Pos  world.GridPos
	Type segment.Type
	Err  error
}

func (e *PlacementError) Error() string {
	if e.Op == "place" {
		return fmt.Sprintf("%s %s at %s: %v", e.Op, e.Type, e.Pos, e.Err)
	}
	return fmt.Sprintf("%s at %s: %v", e.Op, e.Pos, e.Err)
}

func (e *PlacementError) Unwrap() error { return e.Err }

// Placed is a segment sitting on a tile.
type Placed struct {
	Pos       world.GridPos `json:"pos"`
	Type      segment.Type  `json:"type"`
	Rotation  int           `json:"rotation"`
	Cost      int           `json:"cost"`
	Active    bool          `json:"active"`    // False while a failure event disables it
	Removable bool          `json:"removable"` // False for locked presets
}

// Ports returns the tiles the segment is wired toward.
func (p *Placed) Ports() []world.GridPos {
	return segment.ConnectionPositions(p.Pos, p.Type, p.Rotation)
}

// Board is the mutable construction state of a level.
type Board struct {
	Map *world.Map

	segments  map[world.GridPos]*Placed
	inventory map[segment.Type]int
	initial   map[segment.Type]int
	totalCost int
}

// New creates an empty board over m with the given player stock.
func New(m *world.Map, stock map[segment.Type]int) *Board {
	b := &Board{
		Map:       m,
		segments:  make(map[world.GridPos]*Placed),
		inventory: make(map[segment.Type]int),
		initial:   make(map[segment.Type]int),
	}
	for t, n := range stock {
		b.inventory[t] = n
		b.initial[t] = n
	}
	return b
}

// Preset places a level-authored segment without drawing from the
// player's stock. It still counts toward the initial inventory and the
// total cost so the conservation rules hold.
func (b *Board) Preset(pos world.GridPos, t segment.Type, rot int, removable bool) error {
	if err := b.check(pos, t, rot); err != nil {
		return &PlacementError{Op: "preset", Pos: pos, Type: t, Err: err}
	}
	b.put(pos, t, rot, removable)
	b.initial[t]++
	return nil
}

// Place puts a segment from the inventory onto a tile.
func (b *Board) Place(pos world.GridPos, t segment.Type, rot int) (*Placed, error) {
	if err := b.check(pos, t, rot); err != nil {
		return nil, &PlacementError{Op: "place", Pos: pos, Type: t, Err: err}
	}
	if b.inventory[t] <= 0 {
		return nil, &PlacementError{Op: "place", Pos: pos, Type: t, Err: ErrInventoryEmpty}
	}
	b.inventory[t]--
	return b.put(pos, t, rot, true), nil
}

// Remove takes a segment off the board and returns it to the inventory.
func (b *Board) Remove(pos world.GridPos) (*Placed, error) {
	p, ok := b.segments[pos]
	if !ok {
		return nil, &PlacementError{Op: "remove", Pos: pos, Err: ErrNoSegment}
	}
	if !p.Removable {
		return nil, &PlacementError{Op: "remove", Pos: pos, Type: p.Type, Err: ErrLocked}
	}
	delete(b.segments, pos)
	b.inventory[p.Type]++
	b.totalCost -= p.Cost
	return p, nil
}

// Rotate turns a segment a quarter turn clockwise.
func (b *Board) Rotate(pos world.GridPos) (*Placed, error) {
	p, ok := b.segments[pos]
	if !ok {
		return nil, &PlacementError{Op: "rotate", Pos: pos, Err: ErrNoSegment}
	}
	if !p.Removable {
		return nil, &PlacementError{Op: "rotate", Pos: pos, Type: p.Type, Err: ErrLocked}
	}
	p.Rotation = (p.Rotation + 90) % 360
	return p, nil
}

// SetActive enables or disables a segment. It returns false if there is
// no segment at pos or its state is already as requested.
func (b *Board) SetActive(pos world.GridPos, active bool) bool {
	p, ok := b.segments[pos]
	if !ok || p.Active == active {
		return false
	}
	p.Active = active
	return true
}

// At returns the segment at pos, or nil.
func (b *Board) At(pos world.GridPos) *Placed {
	return b.segments[pos]
}

// Segments returns every placed segment ordered by row then column.
func (b *Board) Segments() []*Placed {
	out := lo.Values(b.segments)
	slices.SortFunc(out, func(a, c *Placed) int {
		if a.Pos.Y != c.Pos.Y {
			return a.Pos.Y - c.Pos.Y
		}
		return a.Pos.X - c.Pos.X
	})
	return out
}

// Count returns the number of placed segments.
func (b *Board) Count() int {
	return len(b.segments)
}

// CountOf returns the number of placed segments of type t.
func (b *Board) CountOf(t segment.Type) int {
	return lo.CountBy(lo.Values(b.segments), func(p *Placed) bool { return p.Type == t })
}

// TotalCost returns the sum of placed segment costs.
func (b *Board) TotalCost() int {
	return b.totalCost
}

// Inventory returns the remaining count of segment type t.
func (b *Board) Inventory(t segment.Type) int {
	return b.inventory[t]
}

// InventorySnapshot returns a copy of the remaining stock.
func (b *Board) InventorySnapshot() map[segment.Type]int {
	return maps.Clone(b.inventory)
}

// InitialInventory returns the count of type t the level started with,
// presets included.
func (b *Board) InitialInventory(t segment.Type) int {
	return b.initial[t]
}

func (b *Board) check(pos world.GridPos, t segment.Type, rot int) error {
	if !b.Map.InBounds(pos) {
		return ErrOutOfBounds
	}
	if !world.ValidRotation(rot) {
		return ErrInvalidRotation
	}
	if _, ok := b.segments[pos]; ok {
		return ErrOccupied
	}
	if b.Map.StationAt(pos) != nil {
		return ErrOccupied
	}
	if !t.PermittedOn(b.Map.TerrainAt(pos)) {
		return ErrTerrainForbidden
	}
	return nil
}

func (b *Board) put(pos world.GridPos, t segment.Type, rot int, removable bool) *Placed {
	p := &Placed{
		Pos:       pos,
		Type:      t,
		Rotation:  world.NormalizeRotation(rot),
		Cost:      t.Cost(),
		Active:    true,
		Removable: removable,
	}
	b.segments[pos] = p
	b.totalCost += p.Cost
	return p
}
