package world

import (
	"fmt"
	"slices"
	"strings"
)

// StationKind classifies a station.
type StationKind uint8

const (
	BusStop StationKind = iota
	TransferHub
	Terminal
)

var stationKindNames = [...]string{"bus_stop", "transfer_hub", "terminal"}

func (k StationKind) String() string {
	if int(k) < len(stationKindNames) {
		return stationKindNames[k]
	}
	return fmt.Sprintf("station_kind(%d)", k)
}

// MarshalText encodes the kind by name.
func (k StationKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *StationKind) UnmarshalText(b []byte) error {
	v, err := ParseStationKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// ParseStationKind converts a kind name to its value.
func ParseStationKind(s string) (StationKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range stationKindNames {
		if name == s {
			return StationKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown station kind %q", s)
}

// Color tags a passenger and the stations that accept it.
type Color string

const (
	Red    Color = "red"
	Blue   Color = "blue"
	Green  Color = "green"
	Yellow Color = "yellow"
	Purple Color = "purple"
	Orange Color = "orange"
)

// Colors lists the passenger colors a level may use.
var Colors = []Color{Red, Blue, Green, Yellow, Purple, Orange}

// ParseColor validates a color name.
func ParseColor(s string) (Color, error) {
	c := Color(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(Colors, c) {
		return "", fmt.Errorf("unknown color %q", s)
	}
	return c, nil
}

// Station is a named trip endpoint on the grid.
type Station struct {
	Name           string      `json:"name"`
	Pos            GridPos     `json:"pos"`
	Kind           StationKind `json:"kind"`
	Capacity       int         `json:"capacity"` // Max waiting passengers, 0 = unlimited
	AcceptedColors []Color     `json:"accepted_colors,omitempty"`
}

// Accepts reports whether passengers of color c may use this station.
// A station with no color list accepts everyone.
func (s *Station) Accepts(c Color) bool {
	return len(s.AcceptedColors) == 0 || slices.Contains(s.AcceptedColors, c)
}
