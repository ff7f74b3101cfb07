// Package level defines puzzle levels: the map, passenger demands, the
// segment stock, objectives, presets, timed events and scoring. Levels
// are authored in YAML; a set of built-in levels is embedded.
package level

import (
	"fmt"
	"strings"

	"github.com/talgya/gridtransit/internal/board"
	"github.com/talgya/gridtransit/internal/segment"
	"github.com/talgya/gridtransit/internal/world"
)

// DefaultCostThreshold applies when a level sets no cost threshold.
const DefaultCostThreshold = 10

// Level is a validated puzzle definition.
type Level struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Difficulty  int    `json:"difficulty"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`

	Terrain    map[world.GridPos]world.Terrain `json:"-"`
	Stations   []world.Station                 `json:"stations"`
	Demands    []Demand                        `json:"passenger_demands"`
	Segments   []SegmentStock                  `json:"available_segments"`
	Objectives []Objective                     `json:"objectives"`
	Presets    []PresetRoute                   `json:"preset_routes"`
	Events     []DynamicEvent                  `json:"dynamic_events"`
	Scoring    Scoring                         `json:"scoring"`
}

// TimeWindow bounds the game time during which a demand spawns.
type TimeWindow struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Contains reports whether t lies in the closed window.
func (w TimeWindow) Contains(t float64) bool {
	return t >= w.Start && t <= w.End
}

// Demand describes a stream of passengers between two stations.
type Demand struct {
	Color        world.Color `json:"color"`
	Origin       string      `json:"origin"`
	Destination  string      `json:"destination"`
	SpawnRate    float64     `json:"spawn_rate"` // Expected passengers per second
	Patience     float64     `json:"patience"`   // Seconds
	Window       *TimeWindow `json:"spawn_time_range,omitempty"`
	TotalCount   int         `json:"total_count,omitempty"` // 0 = unlimited
	SpawnedCount int         `json:"spawned_count"`
}

// Limited reports whether the demand spawns a fixed number of passengers.
func (d Demand) Limited() bool {
	return d.TotalCount > 0
}

// Exhausted reports whether a limited demand has spawned everyone.
func (d Demand) Exhausted() bool {
	return d.Limited() && d.SpawnedCount >= d.TotalCount
}

// Active reports whether the demand may spawn at game time t.
func (d Demand) Active(t float64) bool {
	if d.Exhausted() {
		return false
	}
	return d.Window == nil || d.Window.Contains(t)
}

// SegmentStock is the number of pieces of a type the player may place.
type SegmentStock struct {
	Type  segment.Type `json:"type"`
	Count int          `json:"count"`
	Cost  int          `json:"cost"`
}

// PresetSegment is a level-authored piece.
type PresetSegment struct {
	Pos      world.GridPos `json:"pos"`
	Type     segment.Type  `json:"type"`
	Rotation int           `json:"rotation"`
}

// PresetRoute is a group of pieces placed before play starts.
type PresetRoute struct {
	Segments  []PresetSegment `json:"segments"`
	Removable bool            `json:"removable"`
}

// Scoring holds the point values of a level.
type Scoring struct {
	BasePoints      int `yaml:"base_points" json:"base_points"`
	EfficiencyBonus int `yaml:"efficiency_bonus" json:"efficiency_bonus"`
	SpeedBonus      int `yaml:"speed_bonus" json:"speed_bonus"`
	CostBonus       int `yaml:"cost_bonus" json:"cost_bonus"`
	CostThreshold   int `yaml:"cost_threshold" json:"cost_threshold"`
}

// ObjectiveKind is the condition an objective checks.
type ObjectiveKind uint8

const (
	ConnectAllPassengers ObjectiveKind = iota
	MaxTransfers
	MaxSegments
	MaxCost
	MinEfficiency
	TimeLimit
	PassengerSatisfaction
)

var objectiveNames = [...]string{
	"connect_all_passengers", "max_transfers", "max_segments", "max_cost",
	"min_efficiency", "time_limit", "passenger_satisfaction",
}

func (k ObjectiveKind) String() string {
	return objectiveNames[k]
}

// MarshalText encodes the kind by name.
func (k ObjectiveKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a condition name.
func (k *ObjectiveKind) UnmarshalText(b []byte) error {
	v, ok := parseObjectiveKind(string(b))
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownObjective, b)
	}
	*k = v
	return nil
}

// IsGoal reports whether the objective is something to achieve rather
// than a limit to respect.
func (k ObjectiveKind) IsGoal() bool {
	return k == ConnectAllPassengers || k == MinEfficiency || k == PassengerSatisfaction
}

func parseObjectiveKind(s string) (ObjectiveKind, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range objectiveNames {
		if name == s {
			return ObjectiveKind(i), true
		}
	}
	return 0, false
}

// Objective is a level condition.
type Objective struct {
	Description string        `json:"description"`
	Kind        ObjectiveKind `json:"condition"`
	Value       float64       `json:"value,omitempty"`
}

// EventKind is the type of a timed level event.
type EventKind uint8

const (
	SegmentFailure EventKind = iota
	SurgePassengers
	NewDemand
	StationOverload
)

var eventNames = [...]string{"segment_failure", "surge_passengers", "new_demand", "station_overload"}

func (k EventKind) String() string {
	return eventNames[k]
}

// MarshalText encodes the kind by name.
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes an event name.
func (k *EventKind) UnmarshalText(b []byte) error {
	v, ok := parseEventKind(string(b))
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, b)
	}
	*k = v
	return nil
}

func parseEventKind(s string) (EventKind, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range eventNames {
		if name == s {
			return EventKind(i), true
		}
	}
	return 0, false
}

// DynamicEvent changes the level at a given game time. With a positive
// Duration the change is undone afterwards.
type DynamicEvent struct {
	TriggerTime float64       `json:"trigger_time"`
	Kind        EventKind     `json:"event"`
	Duration    float64       `json:"duration,omitempty"`
	Pos         world.GridPos `json:"pos"`                  // SegmentFailure
	Color       world.Color   `json:"color,omitempty"`      // SurgePassengers
	Multiplier  float64       `json:"multiplier,omitempty"` // SurgePassengers
	Demand      *Demand       `json:"demand,omitempty"`     // NewDemand
	Station     string        `json:"station,omitempty"`    // StationOverload
}

// Describe returns a one-line summary of the event.
func (e DynamicEvent) Describe() string {
	switch e.Kind {
	case SegmentFailure:
		return fmt.Sprintf("segment at %s failed", e.Pos)
	case SurgePassengers:
		return fmt.Sprintf("%s passengers surge x%.1f", e.Color, e.Multiplier)
	case NewDemand:
		return fmt.Sprintf("new %s demand %s -> %s", e.Demand.Color, e.Demand.Origin, e.Demand.Destination)
	default:
		return fmt.Sprintf("station %s overloaded", e.Station)
	}
}

// Map builds the level's grid with its terrain and stations.
func (l *Level) Map() (*world.Map, error) {
	m := world.NewMap(l.Width, l.Height)
	for pos, t := range l.Terrain {
		m.SetTerrain(pos, t)
	}
	for i := range l.Stations {
		st := l.Stations[i]
		if err := m.AddStation(&st); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Stock returns the player's starting inventory.
func (l *Level) Stock() map[segment.Type]int {
	stock := make(map[segment.Type]int, len(l.Segments))
	for _, s := range l.Segments {
		stock[s.Type] += s.Count
	}
	return stock
}

// NewBoard builds a fresh board for the level with presets in place.
func (l *Level) NewBoard() (*board.Board, error) {
	m, err := l.Map()
	if err != nil {
		return nil, err
	}
	b := board.New(m, l.Stock())
	for _, pr := range l.Presets {
		for _, ps := range pr.Segments {
			if err := b.Preset(ps.Pos, ps.Type, ps.Rotation, pr.Removable); err != nil {
				return nil, fmt.Errorf("level %s: %w", l.ID, err)
			}
		}
	}
	return b, nil
}

// StationNames returns the station names in level order.
func (l *Level) StationNames() []string {
	names := make([]string, len(l.Stations))
	for i, st := range l.Stations {
		names[i] = st.Name
	}
	return names
}

// Hubs returns the names of the transfer hub stations.
func (l *Level) Hubs() []string {
	var out []string
	for _, st := range l.Stations {
		if st.Kind == world.TransferHub {
			out = append(out, st.Name)
		}
	}
	return out
}

// Station returns a station by name.
func (l *Level) Station(name string) (world.Station, bool) {
	for _, st := range l.Stations {
		if st.Name == name {
			return st, true
		}
	}
	return world.Station{}, false
}
