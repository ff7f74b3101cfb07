// Package world provides the tile grid, terrain, stations and the
// geometry shared by every other package: directions, rotation algebra
// and grid/world coordinate conversion.
package world

import "fmt"

// GridPos is a tile coordinate. X grows east, Y grows south.
type GridPos struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// Add returns p shifted by o.
func (p GridPos) Add(o Offset) GridPos {
	return GridPos{X: p.X + o.DX, Y: p.Y + o.DY}
}

// Sub returns the offset leading from q to p.
func (p GridPos) Sub(q GridPos) Offset {
	return Offset{DX: p.X - q.X, DY: p.Y - q.Y}
}

// Manhattan returns the L1 distance between p and q in tiles.
func (p GridPos) Manhattan(q GridPos) int {
	return abs(p.X-q.X) + abs(p.Y-q.Y)
}

// Neighbors returns the four edge-adjacent tiles in N, S, E, W order.
func (p GridPos) Neighbors() [4]GridPos {
	var out [4]GridPos
	for i, d := range Directions {
		out[i] = p.Add(d.Offset())
	}
	return out
}

func (p GridPos) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// Offset is a relative tile displacement.
type Offset struct {
	DX int `json:"dx"`
	DY int `json:"dy"`
}

// RotateCW rotates the offset by 90° clockwise: (dx,dy) → (-dy,dx).
func (o Offset) RotateCW() Offset {
	return Offset{DX: -o.DY, DY: o.DX}
}

// Rotate applies rot/90 clockwise quarter turns. Any multiple of 90,
// including negative ones, is accepted.
func (o Offset) Rotate(rot int) Offset {
	steps := NormalizeRotation(rot) / 90
	for i := 0; i < steps; i++ {
		o = o.RotateCW()
	}
	return o
}

// Direction returns the cardinal direction matching a unit offset.
func (o Offset) Direction() (Direction, bool) {
	for _, d := range Directions {
		if d.Offset() == o {
			return d, true
		}
	}
	return 0, false
}

// RotateOffset rotates (dx,dy) clockwise by rot degrees.
func RotateOffset(dx, dy, rot int) (int, int) {
	o := Offset{DX: dx, DY: dy}.Rotate(rot)
	return o.DX, o.DY
}

// NormalizeRotation maps any angle onto [0,360).
func NormalizeRotation(rot int) int {
	return ((rot % 360) + 360) % 360
}

// ValidRotation reports whether rot is one of 0, 90, 180, 270 after normalization.
func ValidRotation(rot int) bool {
	return NormalizeRotation(rot)%90 == 0
}

// Direction is one of the four cardinal directions.
type Direction uint8

const (
	North Direction = iota
	South
	East
	West
)

// Directions lists every direction in declaration order.
var Directions = [4]Direction{North, South, East, West}

var directionOffsets = [4]Offset{
	North: {DX: 0, DY: -1},
	South: {DX: 0, DY: 1},
	East:  {DX: 1, DY: 0},
	West:  {DX: -1, DY: 0},
}

// Offset returns the unit displacement for d.
func (d Direction) Offset() Offset {
	return directionOffsets[d]
}

// Opposite returns the direction facing away from d.
func (d Direction) Opposite() Direction {
	switch d {
	case North:
		return South
	case South:
		return North
	case East:
		return West
	default:
		return East
	}
}

// RotateCW returns the direction a quarter turn clockwise from d.
func (d Direction) RotateCW() Direction {
	switch d {
	case North:
		return East
	case East:
		return South
	case South:
		return West
	default:
		return North
	}
}

func (d Direction) String() string {
	return [...]string{"N", "S", "E", "W"}[d]
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
