package world

import (
	"fmt"
	"strings"
)

// Terrain types for grid tiles.
type Terrain uint8

const (
	TerrainEmpty    Terrain = iota
	TerrainBuilding         // Blocks every segment
	TerrainWater            // Bridges only
	TerrainPark
	TerrainMountain // Tunnels only
)

var terrainNames = [...]string{"empty", "building", "water", "park", "mountain"}

func (t Terrain) String() string {
	if int(t) < len(terrainNames) {
		return terrainNames[t]
	}
	return fmt.Sprintf("terrain(%d)", t)
}

// MarshalText encodes the terrain by name.
func (t Terrain) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes a terrain name.
func (t *Terrain) UnmarshalText(b []byte) error {
	v, err := ParseTerrain(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ParseTerrain converts a terrain name to its value.
func ParseTerrain(s string) (Terrain, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range terrainNames {
		if name == s {
			return Terrain(i), nil
		}
	}
	return 0, fmt.Errorf("unknown terrain %q", s)
}

// Map holds the level grid: its dimensions, non-empty terrain and stations.
type Map struct {
	Width    int                 `json:"width"`
	Height   int                 `json:"height"`
	Terrain  map[GridPos]Terrain `json:"-"` // Only non-empty tiles are stored
	Stations []*Station          `json:"stations"`

	stationAt map[GridPos]*Station
	byName    map[string]*Station
}

// NewMap creates an empty map with the given dimensions.
func NewMap(width, height int) *Map {
	return &Map{
		Width:     width,
		Height:    height,
		Terrain:   make(map[GridPos]Terrain),
		stationAt: make(map[GridPos]*Station),
		byName:    make(map[string]*Station),
	}
}

// InBounds returns true if p lies inside the grid.
func (m *Map) InBounds(p GridPos) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < m.Width && p.Y < m.Height
}

// TerrainAt returns the terrain of a tile. Unset tiles are empty.
func (m *Map) TerrainAt(p GridPos) Terrain {
	return m.Terrain[p]
}

// SetTerrain overrides the terrain of a tile.
func (m *Map) SetTerrain(p GridPos, t Terrain) {
	if t == TerrainEmpty {
		delete(m.Terrain, p)
		return
	}
	m.Terrain[p] = t
}

// AddStation registers a station. Names and positions must be unique.
func (m *Map) AddStation(st *Station) error {
	if !m.InBounds(st.Pos) {
		return fmt.Errorf("station %s at %s: out of bounds", st.Name, st.Pos)
	}
	if _, ok := m.byName[st.Name]; ok {
		return fmt.Errorf("station %s: duplicate name", st.Name)
	}
	if other, ok := m.stationAt[st.Pos]; ok {
		return fmt.Errorf("station %s at %s: tile already holds %s", st.Name, st.Pos, other.Name)
	}
	m.Stations = append(m.Stations, st)
	m.stationAt[st.Pos] = st
	m.byName[st.Name] = st
	return nil
}

// StationAt returns the station occupying p, or nil.
func (m *Map) StationAt(p GridPos) *Station {
	return m.stationAt[p]
}

// Station returns the station with the given name, or nil.
func (m *Map) Station(name string) *Station {
	return m.byName[name]
}

// TileCount returns the number of tiles in the grid.
func (m *Map) TileCount() int {
	return m.Width * m.Height
}

// String returns a summary of the map.
func (m *Map) String() string {
	return fmt.Sprintf("Map(%dx%d, stations=%d)", m.Width, m.Height, len(m.Stations))
}
