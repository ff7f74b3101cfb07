package engine_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/talgya/gridtransit/internal/engine"
	"github.com/talgya/gridtransit/internal/entropy"
	"github.com/talgya/gridtransit/internal/level"
	"github.com/talgya/gridtransit/internal/segment"
	"github.com/talgya/gridtransit/internal/world"
)

const dt = 1.0 / 30

// newSim builds a simulation whose demands spawn on every eligible frame.
func newSim(t *testing.T, l *level.Level) *engine.Simulation {
	t.Helper()
	sim, err := engine.New(l, engine.DefaultTuning(), entropy.Fixed(0))
	require.NoError(t, err)
	return sim
}

func builtin(t *testing.T, id string) *level.Level {
	t.Helper()
	l, err := level.Builtin(id)
	require.NoError(t, err)
	return l
}

func parse(t *testing.T, src string) *level.Level {
	t.Helper()
	l, err := level.Parse([]byte(src))
	require.NoError(t, err)
	return l
}

func place(t *testing.T, sim *engine.Simulation, x, y int, typ segment.Type, rot int) {
	t.Helper()
	_, err := sim.PlaceSegment(world.GridPos{X: x, Y: y}, typ, rot)
	require.NoError(t, err, "place %s at (%d,%d)", typ, x, y)
}

// run ticks until the game ends or seconds of game time pass. check runs
// after every frame.
func run(t *testing.T, sim *engine.Simulation, seconds float64, check func()) {
	t.Helper()
	for sim.Status().GameTime < seconds {
		require.NoError(t, sim.Tick(dt))
		if check != nil {
			check()
		}
		if sim.Status().Phase.Ended() {
			return
		}
	}
}

// accounting asserts that every spawned passenger is arrived, gone or active.
func accounting(t *testing.T, sim *engine.Simulation) func() {
	return func() {
		st := sim.Status()
		require.Equal(t, st.Stats.Spawned, st.Stats.Arrived+st.Stats.GaveUp+st.Active, "at t=%.2f", st.GameTime)
	}
}

func kinds(events []engine.Event) []engine.EventKind {
	out := make([]engine.EventKind, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}

func firstIndex(events []engine.Event, kind engine.EventKind) int {
	for i, e := range events {
		if e.Kind == kind {
			return i
		}
	}
	return -1
}
