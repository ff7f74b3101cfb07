package engine

import (
	"log/slog"
	"math"

	"github.com/talgya/gridtransit/internal/level"
)

// Efficiency rates the network by how fast passengers arrive relative to
// its size. With nothing placed it is 1.
func Efficiency(st Stats, placed int) float64 {
	if placed == 0 {
		return 1
	}
	avg := st.AvgTravelTime()
	if avg <= 0 {
		return 0
	}
	return clamp01(1 / (avg * float64(placed) * 0.1))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// Score computes the level score. It is zero until someone arrives.
func Score(sc level.Scoring, st Stats, placed, totalCost int, gameTime, speedBonusTime float64) int {
	if st.Arrived == 0 {
		return 0
	}
	score := sc.BasePoints + int(math.Floor(Efficiency(st, placed)*float64(sc.EfficiencyBonus)))
	if gameTime < speedBonusTime {
		score += sc.SpeedBonus
	}
	threshold := sc.CostThreshold
	if threshold == 0 {
		threshold = level.DefaultCostThreshold
	}
	if totalCost <= threshold {
		score += sc.CostBonus
	}
	return score
}

func (s *Simulation) holds(o level.Objective) bool {
	switch o.Kind {
	case level.ConnectAllPassengers:
		return s.Stats.Spawned > 0 && s.Stats.Arrived == s.Stats.Spawned && s.demandsDone()
	case level.MaxTransfers:
		return float64(s.Stats.MaxTransfers) <= o.Value
	case level.MaxSegments:
		return float64(s.Board.Count()) <= o.Value
	case level.MaxCost:
		return float64(s.Board.TotalCost()) <= o.Value
	case level.MinEfficiency:
		return s.Stats.Arrived > 0 && Efficiency(s.Stats, s.Board.Count()) >= o.Value
	case level.TimeLimit:
		return s.GameTime <= o.Value
	case level.PassengerSatisfaction:
		return s.Stats.Spawned > 0 && s.Stats.Satisfaction() >= o.Value
	}
	return false
}

// demandsDone reports whether no demand will spawn again: every limited
// demand is exhausted and every windowed demand has closed. Unlimited
// open-ended demands never block.
func (s *Simulation) demandsDone() bool {
	for _, d := range s.demands {
		if d.Retired {
			continue
		}
		// A closed window spawns nothing more, whatever is left of the count.
		closed := d.Window != nil && s.GameTime > d.Window.End
		if d.Limited() && !d.Exhausted() && !closed {
			return false
		}
		if !d.Limited() && d.Window != nil && !closed {
			return false
		}
	}
	return true
}

// evaluateObjectives latches objectives, updates the score and settles
// the outcome. Completion is checked before failure.
func (s *Simulation) evaluateObjectives() {
	for i := range s.Objectives {
		o := &s.Objectives[i]
		o.Holding = s.holds(o.Objective)
		if o.Holding && !o.Completed {
			o.Completed = true
			s.emit(EventObjectiveCompleted, map[string]any{"objective": o.Kind}, "objective met: %s", o.Description)
		}
	}

	s.Score = Score(s.Level.Scoring, s.Stats, s.Board.Count(), s.Board.TotalCost(), s.GameTime, s.Tuning.SpeedBonusTime)

	if s.levelComplete() {
		s.finish(LevelComplete, "all objectives met")
		return
	}
	if reason, failed := s.failed(); failed {
		s.finish(GameOver, reason)
	}
}

func (s *Simulation) levelComplete() bool {
	goals := 0
	for _, o := range s.Objectives {
		if o.Kind.IsGoal() {
			goals++
			if !o.Completed {
				return false
			}
		} else if !o.Holding {
			return false
		}
	}
	return goals > 0
}

func (s *Simulation) failed() (string, bool) {
	if s.Stats.GaveUp > s.Tuning.GiveUpLimit {
		return "too many passengers gave up", true
	}
	for _, o := range s.Objectives {
		if o.Kind == level.TimeLimit && s.GameTime > o.Value {
			return "time limit exceeded", true
		}
	}
	return "", false
}

func (s *Simulation) finish(phase Phase, reason string) {
	s.Phase = phase
	s.Outcome = &Outcome{
		Completed: phase == LevelComplete,
		Reason:    reason,
		Score:     s.Score,
		Time:      s.GameTime,
		Stats:     s.Stats,
	}
	slog.Info("game finished", "level", s.Level.ID, "phase", phase, "reason", reason,
		"score", s.Score, "time", s.GameTime, "arrived", s.Stats.Arrived, "gave_up", s.Stats.GaveUp)
	kind := EventGameOver
	if phase == LevelComplete {
		kind = EventLevelCompleted
	}
	s.emit(kind, map[string]any{"score": s.Score, "reason": reason}, "%s: %s (score %d)", phase, reason, s.Score)
}
