package engine_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/gridtransit/internal/engine"
)

func TestEngineCallbacks(t *testing.T) {
	e := engine.NewEngine(1.0 / 30)
	var frames, seconds int
	var total float64
	e.OnFrame = func(_ uint64, dt float64) {
		frames++
		total += dt
	}
	e.OnSecond = func(uint64) { seconds++ }

	e.Advance(95)
	assert.Equal(t, 95, frames)
	assert.Equal(t, 3, seconds)
	assert.InDelta(t, 95.0/30, total, 1e-9)
	assert.Equal(t, uint64(95), e.Frame)
	assert.Equal(t, uint64(30), e.FramesPerSecond())
}

func TestEngineSpeed(t *testing.T) {
	e := engine.NewEngine(0.1)
	assert.Equal(t, 1.0, e.Speed())
	e.SetSpeed(4)
	assert.Equal(t, 4.0, e.Speed())
	e.SetSpeed(-1)
	assert.Zero(t, e.Speed())
	assert.False(t, e.Running())
}

func TestLoadTuning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bus_speed: 120\ndwell_time: 1.5\n"), 0o644))

	tu, err := engine.LoadTuning(path)
	require.NoError(t, err)
	assert.Equal(t, 120.0, tu.BusSpeed)
	assert.Equal(t, 1.5, tu.DwellTime)
	assert.Equal(t, engine.DefaultTuning().BusCapacity, tu.BusCapacity)

	require.NoError(t, os.WriteFile(path, []byte("bus_capacity: 0\n"), 0o644))
	_, err = engine.LoadTuning(path)
	assert.Error(t, err)

	_, err = engine.LoadTuning(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
