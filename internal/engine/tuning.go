package engine

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/talgya/gridtransit/internal/agents"
	"github.com/talgya/gridtransit/internal/world"
)

// Tuning holds the gameplay constants that are policy rather than rules.
type Tuning struct {
	TileSize            float64 `yaml:"tile_size" json:"tile_size"`
	FrameDT             float64 `yaml:"frame_dt" json:"frame_dt"`                 // Seconds of game time per frame
	BusSpeed            float64 `yaml:"bus_speed" json:"bus_speed"`               // World units per second
	BusCapacity         int     `yaml:"bus_capacity" json:"bus_capacity"`
	DwellTime           float64 `yaml:"dwell_time" json:"dwell_time"`
	SnapDistance        float64 `yaml:"snap_distance" json:"snap_distance"`
	WaitDrain           float64 `yaml:"wait_drain" json:"wait_drain"`             // Patience per second while waiting
	RideDrain           float64 `yaml:"ride_drain" json:"ride_drain"`             // Patience per second while riding
	OverloadDrainFactor float64 `yaml:"overload_drain_factor" json:"overload_drain_factor"`
	RediscoveryDebounce float64 `yaml:"rediscovery_debounce" json:"rediscovery_debounce"`
	CleanupInterval     float64 `yaml:"cleanup_interval" json:"cleanup_interval"`
	PathRetry           float64 `yaml:"path_retry" json:"path_retry"`
	GiveUpLimit         int     `yaml:"give_up_limit" json:"give_up_limit"`
	SpeedBonusTime      float64 `yaml:"speed_bonus_time" json:"speed_bonus_time"`
	EventBuffer         int     `yaml:"event_buffer" json:"event_buffer"`
}

// DefaultTuning returns the standard gameplay constants.
func DefaultTuning() Tuning {
	return Tuning{
		TileSize:            world.DefaultTileSize,
		FrameDT:             1.0 / 30,
		BusSpeed:            80,
		BusCapacity:         30,
		DwellTime:           3,
		SnapDistance:        8,
		WaitDrain:           1,
		RideDrain:           0.5,
		OverloadDrainFactor: 2,
		RediscoveryDebounce: 2,
		CleanupInterval:     10,
		PathRetry:           1,
		GiveUpLimit:         3,
		SpeedBonusTime:      60,
		EventBuffer:         1000,
	}
}

// LoadTuning reads a YAML file over the defaults. Keys missing from the
// file keep their default values.
func LoadTuning(path string) (Tuning, error) {
	t := DefaultTuning()
	data, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("read tuning: %w", err)
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("decode tuning: %w", err)
	}
	if t.FrameDT <= 0 || t.BusSpeed <= 0 || t.BusCapacity <= 0 || t.TileSize <= 0 {
		return t, fmt.Errorf("tuning: frame_dt, bus_speed, bus_capacity and tile_size must be positive")
	}
	return t, nil
}

func (t Tuning) busConfig() agents.BusConfig {
	return agents.BusConfig{
		Capacity:   t.BusCapacity,
		Speed:      t.BusSpeed,
		DwellTime:  t.DwellTime,
		SnapDist:   t.SnapDistance,
		RetryDelay: t.PathRetry,
	}
}
