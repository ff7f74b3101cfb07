package routing

import (
	"github.com/talgya/gridtransit/internal/board"
	"github.com/talgya/gridtransit/internal/segment"
	"github.com/talgya/gridtransit/internal/world"
)

// Tile is what occupies a grid position from the resolver's point of
// view: a station, an active segment, or nothing.
type Tile struct {
	Pos     world.GridPos
	Station *world.Station
	Segment *board.Placed
}

// Empty reports whether the tile carries nothing routable.
func (t Tile) Empty() bool {
	return t.Station == nil && (t.Segment == nil || !t.Segment.Active)
}

// TileAt reads the routable content of a tile from the board.
func TileAt(b *board.Board, pos world.GridPos) Tile {
	return Tile{Pos: pos, Station: b.Map.StationAt(pos), Segment: b.At(pos)}
}

// Connected decides whether a routing edge joins tiles a and b.
// Tiles must be edge-adjacent. Two segments need ports facing each other;
// a station only needs the segment's port, since stations accept traffic
// from every side. Stations never connect directly, and inactive segments
// connect to nothing.
func Connected(a, b Tile) bool {
	if a.Pos.Manhattan(b.Pos) != 1 {
		return false
	}
	if a.Empty() || b.Empty() {
		return false
	}

	switch {
	case a.Station != nil && b.Station != nil:
		return false
	case a.Station != nil:
		return faces(b.Segment, a.Pos)
	case b.Station != nil:
		return faces(a.Segment, b.Pos)
	default:
		return faces(a.Segment, b.Pos) && faces(b.Segment, a.Pos)
	}
}

func faces(p *board.Placed, target world.GridPos) bool {
	return p != nil && p.Active && segment.HasConnectionTo(p.Pos, target, p.Type, p.Rotation)
}
