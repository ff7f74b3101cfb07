package level

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/talgya/gridtransit/internal/segment"
	"github.com/talgya/gridtransit/internal/world"
)

// Load errors.
var (
	ErrUndefinedStation  = errors.New("undefined station")
	ErrCountInconsistent = errors.New("spawned_count exceeds total_count")
	ErrUnknownTerrain    = errors.New("unknown terrain type")
	ErrUnknownSegment    = errors.New("unknown segment type")
	ErrUnknownObjective  = errors.New("unknown objective condition")
	ErrUnknownEvent      = errors.New("unknown dynamic event")
	ErrInvalidValue      = errors.New("invalid value")
)

// LoadError locates a problem in a level file.
type LoadError struct {
	Field string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

type rawLevel struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Difficulty  int            `yaml:"difficulty"`
	GridSize    [2]int         `yaml:"grid_size"`
	Terrain     []rawTerrain   `yaml:"terrain"`
	Stations    []rawStation   `yaml:"stations"`
	Demands     []rawDemand    `yaml:"passenger_demands"`
	Segments    []rawStock     `yaml:"available_segments"`
	Objectives  []rawObjective `yaml:"objectives"`
	Presets     []rawPreset    `yaml:"preset_routes"`
	Events      []rawEvent     `yaml:"dynamic_events"`
	Scoring     Scoring        `yaml:"scoring"`
}

type rawTerrain struct {
	Pos  [2]int `yaml:"pos"`
	Type string `yaml:"type"`
}

type rawStation struct {
	Name           string   `yaml:"name"`
	Pos            [2]int   `yaml:"pos"`
	Kind           string   `yaml:"kind"`
	Capacity       int      `yaml:"capacity"`
	AcceptedColors []string `yaml:"accepted_colors"`
}

type rawDemand struct {
	Color          string      `yaml:"color"`
	Origin         string      `yaml:"origin"`
	Destination    string      `yaml:"destination"`
	SpawnRate      float64     `yaml:"spawn_rate"`
	Patience       float64     `yaml:"patience"`
	SpawnTimeRange *[2]float64 `yaml:"spawn_time_range"`
	TotalCount     int         `yaml:"total_count"`
	SpawnedCount   int         `yaml:"spawned_count"`
}

type rawStock struct {
	Type  string `yaml:"type"`
	Count int    `yaml:"count"`
	Cost  int    `yaml:"cost"`
}

type rawObjective struct {
	Description string  `yaml:"description"`
	Condition   string  `yaml:"condition"`
	Value       float64 `yaml:"value"`
}

type rawPreset struct {
	Removable bool `yaml:"removable"`
	Segments  []struct {
		Pos      [2]int `yaml:"pos"`
		Type     string `yaml:"type"`
		Rotation int    `yaml:"rotation"`
	} `yaml:"segments"`
}

type rawEvent struct {
	TriggerTime float64    `yaml:"trigger_time"`
	Event       string     `yaml:"event"`
	Duration    float64    `yaml:"duration"`
	Pos         [2]int     `yaml:"pos"`
	Color       string     `yaml:"color"`
	Multiplier  float64    `yaml:"multiplier"`
	Demand      *rawDemand `yaml:"demand"`
	Station     string     `yaml:"station"`
}

// LoadFile reads and validates a level file.
func LoadFile(path string) (*Level, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read level: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML level. All problems found are
// reported together.
func Parse(data []byte) (*Level, error) {
	var raw rawLevel
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode level: %w", err)
	}
	c := &converter{}
	l := c.level(&raw)
	if err := errors.Join(c.errs...); err != nil {
		return nil, fmt.Errorf("level %q: %w", raw.ID, err)
	}
	return l, nil
}

type converter struct {
	errs     []error
	stations map[string]world.Station
}

func (c *converter) fail(field string, err error) {
	c.errs = append(c.errs, &LoadError{Field: field, Err: err})
}

func pos(p [2]int) world.GridPos {
	return world.GridPos{X: p[0], Y: p[1]}
}

func (c *converter) level(raw *rawLevel) *Level {
	l := &Level{
		ID:          raw.ID,
		Name:        raw.Name,
		Description: raw.Description,
		Difficulty:  raw.Difficulty,
		Width:       raw.GridSize[0],
		Height:      raw.GridSize[1],
		Terrain:     make(map[world.GridPos]world.Terrain),
		Scoring:     raw.Scoring,
	}
	if l.ID == "" {
		c.fail("id", fmt.Errorf("%w: empty", ErrInvalidValue))
	}
	if l.Width <= 0 || l.Height <= 0 {
		c.fail("grid_size", fmt.Errorf("%w: %dx%d", ErrInvalidValue, l.Width, l.Height))
	}
	if l.Difficulty < 1 || l.Difficulty > 5 {
		c.fail("difficulty", fmt.Errorf("%w: %d not in 1..5", ErrInvalidValue, l.Difficulty))
	}
	if l.Scoring.CostThreshold == 0 {
		l.Scoring.CostThreshold = DefaultCostThreshold
	}
	inBounds := func(p world.GridPos) bool {
		return p.X >= 0 && p.Y >= 0 && p.X < l.Width && p.Y < l.Height
	}

	for i, rt := range raw.Terrain {
		t, err := world.ParseTerrain(rt.Type)
		if err != nil {
			c.fail(fmt.Sprintf("terrain[%d]", i), fmt.Errorf("%w: %q", ErrUnknownTerrain, rt.Type))
			continue
		}
		if !inBounds(pos(rt.Pos)) {
			c.fail(fmt.Sprintf("terrain[%d]", i), fmt.Errorf("%w: %v out of bounds", ErrInvalidValue, rt.Pos))
			continue
		}
		l.Terrain[pos(rt.Pos)] = t
	}

	c.stations = make(map[string]world.Station)
	for i, rs := range raw.Stations {
		field := fmt.Sprintf("stations[%d]", i)
		kind := world.BusStop
		if rs.Kind != "" {
			k, err := world.ParseStationKind(rs.Kind)
			if err != nil {
				c.fail(field, fmt.Errorf("%w: %v", ErrInvalidValue, err))
			}
			kind = k
		}
		st := world.Station{Name: rs.Name, Pos: pos(rs.Pos), Kind: kind, Capacity: rs.Capacity}
		for _, cs := range rs.AcceptedColors {
			col, err := world.ParseColor(cs)
			if err != nil {
				c.fail(field, fmt.Errorf("%w: %v", ErrInvalidValue, err))
				continue
			}
			st.AcceptedColors = append(st.AcceptedColors, col)
		}
		if st.Name == "" {
			c.fail(field, fmt.Errorf("%w: empty station name", ErrInvalidValue))
			continue
		}
		if _, dup := c.stations[st.Name]; dup {
			c.fail(field, fmt.Errorf("%w: duplicate station %q", ErrInvalidValue, st.Name))
			continue
		}
		if !inBounds(st.Pos) {
			c.fail(field, fmt.Errorf("%w: %s out of bounds", ErrInvalidValue, st.Pos))
		}
		if l.Terrain[st.Pos] == world.TerrainBuilding || l.Terrain[st.Pos] == world.TerrainWater {
			c.fail(field, fmt.Errorf("%w: station %q on %s", ErrInvalidValue, st.Name, l.Terrain[st.Pos]))
		}
		c.stations[st.Name] = st
		l.Stations = append(l.Stations, st)
	}

	for i := range raw.Demands {
		if d, ok := c.demand(fmt.Sprintf("passenger_demands[%d]", i), &raw.Demands[i]); ok {
			l.Demands = append(l.Demands, d)
		}
	}

	for i, rs := range raw.Segments {
		field := fmt.Sprintf("available_segments[%d]", i)
		t, err := segment.Parse(rs.Type)
		if err != nil {
			c.fail(field, fmt.Errorf("%w: %q", ErrUnknownSegment, rs.Type))
			continue
		}
		if rs.Count < 0 {
			c.fail(field, fmt.Errorf("%w: negative count", ErrInvalidValue))
			continue
		}
		if rs.Cost != 0 && rs.Cost != t.Cost() {
			c.fail(field, fmt.Errorf("%w: %s costs %d, not %d", ErrInvalidValue, t, t.Cost(), rs.Cost))
			continue
		}
		l.Segments = append(l.Segments, SegmentStock{Type: t, Count: rs.Count, Cost: t.Cost()})
	}

	for i, ro := range raw.Objectives {
		field := fmt.Sprintf("objectives[%d]", i)
		kind, ok := parseObjectiveKind(ro.Condition)
		if !ok {
			c.fail(field, fmt.Errorf("%w: %q", ErrUnknownObjective, ro.Condition))
			continue
		}
		if kind != ConnectAllPassengers && ro.Value < 0 {
			c.fail(field, fmt.Errorf("%w: negative limit", ErrInvalidValue))
			continue
		}
		l.Objectives = append(l.Objectives, Objective{Description: ro.Description, Kind: kind, Value: ro.Value})
	}

	for i, rp := range raw.Presets {
		pr := PresetRoute{Removable: rp.Removable}
		for j, rs := range rp.Segments {
			t, err := segment.Parse(rs.Type)
			if err != nil {
				c.fail(fmt.Sprintf("preset_routes[%d].segments[%d]", i, j), fmt.Errorf("%w: %q", ErrUnknownSegment, rs.Type))
				continue
			}
			pr.Segments = append(pr.Segments, PresetSegment{Pos: pos(rs.Pos), Type: t, Rotation: rs.Rotation})
		}
		l.Presets = append(l.Presets, pr)
	}

	for i := range raw.Events {
		if ev, ok := c.event(fmt.Sprintf("dynamic_events[%d]", i), &raw.Events[i], inBounds); ok {
			l.Events = append(l.Events, ev)
		}
	}
	return l
}

func (c *converter) demand(field string, rd *rawDemand) (Demand, bool) {
	ok := true
	col, err := world.ParseColor(rd.Color)
	if err != nil {
		c.fail(field, fmt.Errorf("%w: %v", ErrInvalidValue, err))
		ok = false
	}
	origin, known := c.stations[rd.Origin]
	if !known {
		c.fail(field, fmt.Errorf("%w: origin %q", ErrUndefinedStation, rd.Origin))
		ok = false
	}
	dest, destKnown := c.stations[rd.Destination]
	if !destKnown {
		c.fail(field, fmt.Errorf("%w: destination %q", ErrUndefinedStation, rd.Destination))
		ok = false
	}
	if known && col != "" && !origin.Accepts(col) {
		c.fail(field, fmt.Errorf("%w: station %q does not accept %s", ErrInvalidValue, rd.Origin, col))
		ok = false
	}
	if destKnown && col != "" && !dest.Accepts(col) {
		c.fail(field, fmt.Errorf("%w: station %q does not accept %s", ErrInvalidValue, rd.Destination, col))
		ok = false
	}
	if rd.Origin == rd.Destination {
		c.fail(field, fmt.Errorf("%w: origin equals destination", ErrInvalidValue))
		ok = false
	}
	if rd.SpawnRate < 0 || rd.Patience <= 0 {
		c.fail(field, fmt.Errorf("%w: spawn_rate must be >= 0 and patience > 0", ErrInvalidValue))
		ok = false
	}
	if rd.TotalCount < 0 || rd.SpawnedCount < 0 || (rd.TotalCount > 0 && rd.SpawnedCount > rd.TotalCount) {
		c.fail(field, fmt.Errorf("%w: spawned %d of %d", ErrCountInconsistent, rd.SpawnedCount, rd.TotalCount))
		ok = false
	}
	d := Demand{
		Color:        col,
		Origin:       rd.Origin,
		Destination:  rd.Destination,
		SpawnRate:    rd.SpawnRate,
		Patience:     rd.Patience,
		TotalCount:   rd.TotalCount,
		SpawnedCount: rd.SpawnedCount,
	}
	if rd.SpawnTimeRange != nil {
		w := TimeWindow{Start: rd.SpawnTimeRange[0], End: rd.SpawnTimeRange[1]}
		if w.End < w.Start {
			c.fail(field, fmt.Errorf("%w: spawn_time_range ends before it starts", ErrInvalidValue))
			ok = false
		}
		d.Window = &w
	}
	return d, ok
}

func (c *converter) event(field string, re *rawEvent, inBounds func(world.GridPos) bool) (DynamicEvent, bool) {
	kind, known := parseEventKind(re.Event)
	if !known {
		c.fail(field, fmt.Errorf("%w: %q", ErrUnknownEvent, re.Event))
		return DynamicEvent{}, false
	}
	ev := DynamicEvent{TriggerTime: re.TriggerTime, Kind: kind, Duration: re.Duration, Pos: pos(re.Pos)}
	if re.TriggerTime < 0 || re.Duration < 0 {
		c.fail(field, fmt.Errorf("%w: negative time", ErrInvalidValue))
		return ev, false
	}
	switch kind {
	case SegmentFailure:
		if !inBounds(ev.Pos) {
			c.fail(field, fmt.Errorf("%w: %s out of bounds", ErrInvalidValue, ev.Pos))
			return ev, false
		}
	case SurgePassengers:
		col, err := world.ParseColor(re.Color)
		if err != nil || re.Multiplier <= 0 {
			c.fail(field, fmt.Errorf("%w: surge needs a color and a positive multiplier", ErrInvalidValue))
			return ev, false
		}
		ev.Color, ev.Multiplier = col, re.Multiplier
	case NewDemand:
		if re.Demand == nil {
			c.fail(field, fmt.Errorf("%w: new_demand without demand", ErrInvalidValue))
			return ev, false
		}
		d, ok := c.demand(field+".demand", re.Demand)
		if !ok {
			return ev, false
		}
		ev.Demand = &d
	case StationOverload:
		if _, ok := c.stations[re.Station]; !ok {
			c.fail(field, fmt.Errorf("%w: %q", ErrUndefinedStation, re.Station))
			return ev, false
		}
		ev.Station = re.Station
	}
	return ev, true
}
