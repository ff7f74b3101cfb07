package world

import (
	"math"

	"github.com/paulmach/orb"
)

// DefaultTileSize is the edge length of a tile in world units.
const DefaultTileSize = 64.0

// WorldOf returns the world-space center of a tile. The map is centered
// on the origin.
func WorldOf(p GridPos, tileSize float64, width, height int) orb.Point {
	x := float64(p.X)*tileSize - float64(width-1)*tileSize/2
	y := float64(p.Y)*tileSize - float64(height-1)*tileSize/2
	return orb.Point{x, y}
}

// GridOf is the inverse of WorldOf. Points snap to the nearest tile center.
func GridOf(pt orb.Point, tileSize float64, width, height int) GridPos {
	x := (pt.X() + float64(width-1)*tileSize/2) / tileSize
	y := (pt.Y() + float64(height-1)*tileSize/2) / tileSize
	return GridPos{X: int(math.Round(x)), Y: int(math.Round(y))}
}

// WorldOf returns the world-space center of p on this map.
func (m *Map) WorldOf(p GridPos, tileSize float64) orb.Point {
	return WorldOf(p, tileSize, m.Width, m.Height)
}

// GridOf snaps a world-space point to a tile of this map.
func (m *Map) GridOf(pt orb.Point, tileSize float64) GridPos {
	return GridOf(pt, tileSize, m.Width, m.Height)
}
