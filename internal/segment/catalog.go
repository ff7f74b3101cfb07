// Package segment is the catalog of road pieces: their costs, their
// connection ports at each rotation and the terrain they may sit on.
// Every other package derives connectivity from Offsets; nothing else
// re-computes ports.
package segment

import (
	"fmt"
	"strings"

	"github.com/talgya/gridtransit/internal/world"
)

// Type is a kind of road piece.
type Type uint8

const (
	Straight Type = iota
	Curve
	TSplit
	Cross
	Bridge
	Tunnel
)

// Types lists every segment type in catalog order.
var Types = []Type{Straight, Curve, TSplit, Cross, Bridge, Tunnel}

var typeNames = [...]string{"straight", "curve", "t_split", "cross", "bridge", "tunnel"}

var (
	horizontal = []world.Offset{{DX: -1, DY: 0}, {DX: 1, DY: 0}}
	vertical   = []world.Offset{{DX: 0, DY: -1}, {DX: 0, DY: 1}}

	// Base ports at rotation 0.
	baseOffsets = map[Type][]world.Offset{
		Straight: horizontal,
		Bridge:   horizontal,
		Tunnel:   horizontal,
		Curve:    {{DX: -1, DY: 0}, {DX: 0, DY: -1}},
		TSplit:   {{DX: 0, DY: -1}, {DX: 0, DY: 1}, {DX: 1, DY: 0}},
		Cross:    {{DX: -1, DY: 0}, {DX: 1, DY: 0}, {DX: 0, DY: -1}, {DX: 0, DY: 1}},
	}
)

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("segment(%d)", t)
}

// MarshalText encodes the type by name so it can key JSON maps.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes a type name.
func (t *Type) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Parse converts a segment name to its type. Hyphens, spaces and case
// are ignored ("T-Split", "tsplit" and "t_split" all parse).
func Parse(s string) (Type, error) {
	norm := strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToLower(s))
	for i, name := range typeNames {
		if strings.ReplaceAll(name, "_", "") == norm {
			return Type(i), nil
		}
	}
	return 0, fmt.Errorf("unknown segment type %q", s)
}

// Valid reports whether t is a catalog type.
func (t Type) Valid() bool {
	return int(t) < len(typeNames)
}

// Cost returns the build cost of the segment type (1 through 6).
func (t Type) Cost() int {
	return int(t) + 1
}

// IsIntersection reports whether the piece joins more than two ports.
func (t Type) IsIntersection() bool {
	return t == Cross || t == TSplit
}

// PermittedOn reports whether the piece can be built on terrain tr.
func (t Type) PermittedOn(tr world.Terrain) bool {
	switch tr {
	case world.TerrainBuilding:
		return false
	case world.TerrainWater:
		return t == Bridge
	case world.TerrainMountain:
		return t == Tunnel
	default:
		return true
	}
}

// Offsets returns the outward ports of a piece at the given rotation.
// Straight-like pieces are horizontal at 0/180 and vertical at 90/270;
// Curve and TSplit rotate their base ports clockwise; Cross is invariant.
// The returned slice is freshly allocated.
func Offsets(t Type, rot int) []world.Offset {
	rot = world.NormalizeRotation(rot)
	switch t {
	case Straight, Bridge, Tunnel:
		if rot == 90 || rot == 270 {
			return append([]world.Offset(nil), vertical...)
		}
		return append([]world.Offset(nil), horizontal...)
	case Cross:
		return append([]world.Offset(nil), baseOffsets[Cross]...)
	}

	base := baseOffsets[t]
	out := make([]world.Offset, len(base))
	for i, o := range base {
		out[i] = o.Rotate(rot)
	}
	return out
}

// Ports returns the directions a piece faces at the given rotation.
func Ports(t Type, rot int) []world.Direction {
	offs := Offsets(t, rot)
	dirs := make([]world.Direction, 0, len(offs))
	for _, o := range offs {
		if d, ok := o.Direction(); ok {
			dirs = append(dirs, d)
		}
	}
	return dirs
}

// ConnectionPositions returns the tiles a piece at pos is wired toward.
func ConnectionPositions(pos world.GridPos, t Type, rot int) []world.GridPos {
	offs := Offsets(t, rot)
	out := make([]world.GridPos, len(offs))
	for i, o := range offs {
		out[i] = pos.Add(o)
	}
	return out
}

// HasConnectionTo reports whether a piece at pos has a port facing target.
func HasConnectionTo(pos, target world.GridPos, t Type, rot int) bool {
	want := target.Sub(pos)
	for _, o := range Offsets(t, rot) {
		if o == want {
			return true
		}
	}
	return false
}
