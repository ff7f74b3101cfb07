package engine

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/talgya/gridtransit/internal/segment"
	"github.com/talgya/gridtransit/internal/world"
)

// Script is a timed list of board edits replayed against a level.
type Script struct {
	Level    string       `yaml:"level"`
	Duration float64      `yaml:"duration"` // Game seconds; 0 runs until the game ends
	Steps    []ScriptStep `yaml:"steps"`
}

// ScriptStep is one board edit at a game time.
type ScriptStep struct {
	At       float64 `yaml:"at"`
	Op       string  `yaml:"op"` // "place", "remove" or "rotate"
	Pos      [2]int  `yaml:"pos"`
	Type     string  `yaml:"type"`
	Rotation int     `yaml:"rotation"`
}

// maxScriptTime caps scripts that never end the game.
const maxScriptTime = 3600

// LoadScript reads a script file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	var sc Script
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("decode script: %w", err)
	}
	for i, st := range sc.Steps {
		switch st.Op {
		case "place":
			if _, err := segment.Parse(st.Type); err != nil {
				return nil, fmt.Errorf("step %d: %w", i, err)
			}
		case "remove", "rotate":
		default:
			return nil, fmt.Errorf("step %d: unknown op %q", i, st.Op)
		}
	}
	slices.SortStableFunc(sc.Steps, func(a, b ScriptStep) int { return cmp.Compare(a.At, b.At) })
	return &sc, nil
}

// RunScript replays sc without real-time pacing and returns the outcome.
// Rejected edits are logged and skipped.
func (s *Simulation) RunScript(ctx context.Context, sc *Script, dt float64) (Outcome, error) {
	limit := sc.Duration
	if limit <= 0 {
		limit = maxScriptTime
	}
	next := 0
	for {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}
		st := s.Status()
		if st.Phase.Ended() {
			return *st.Outcome, nil
		}
		if st.GameTime >= limit {
			return Outcome{Reason: "script duration reached", Score: st.Score, Time: st.GameTime, Stats: st.Stats}, nil
		}
		for next < len(sc.Steps) && sc.Steps[next].At <= st.GameTime {
			s.apply(sc.Steps[next])
			next++
		}
		if err := s.Tick(dt); err != nil {
			return Outcome{}, err
		}
	}
}

func (s *Simulation) apply(st ScriptStep) {
	pos := world.GridPos{X: st.Pos[0], Y: st.Pos[1]}
	var err error
	switch st.Op {
	case "place":
		t, _ := segment.Parse(st.Type)
		_, err = s.PlaceSegment(pos, t, st.Rotation)
	case "remove":
		_, err = s.RemoveSegment(pos)
	case "rotate":
		_, err = s.RotateSegment(pos)
	}
	if err != nil {
		slog.Warn("script step rejected", "op", st.Op, "pos", pos, "error", err)
	}
}
