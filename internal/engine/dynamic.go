package engine

import (
	"log/slog"

	"github.com/samber/lo"

	"github.com/talgya/gridtransit/internal/level"
)

// applyDynamicEvents fires timed level events and undoes expired ones.
func (s *Simulation) applyDynamicEvents() {
	for i, ev := range s.Level.Events {
		if s.fired[i] || s.GameTime < ev.TriggerTime {
			continue
		}
		s.fired[i] = true
		s.fire(i, ev)
		if ev.Duration > 0 {
			s.reverts = append(s.reverts, pendingRevert{event: i, at: ev.TriggerTime + ev.Duration})
		}
	}

	s.reverts = lo.Filter(s.reverts, func(r pendingRevert, _ int) bool {
		if s.GameTime < r.at {
			return true
		}
		s.revert(r.event, s.Level.Events[r.event])
		return false
	})
}

func (s *Simulation) fire(i int, ev level.DynamicEvent) {
	switch ev.Kind {
	case level.SegmentFailure:
		if s.Board.SetActive(ev.Pos, false) {
			s.graphDirty = true
		}
	case level.SurgePassengers:
		s.surge[ev.Color] = s.surgeOf(ev) * ev.Multiplier
	case level.NewDemand:
		d := *ev.Demand
		d.SpawnedCount = 0
		s.eventDemand[i] = len(s.demands)
		s.demands = append(s.demands, demandState{Demand: d})
	case level.StationOverload:
		s.overloaded[ev.Station] = true
	}
	slog.Info("dynamic event", "time", s.GameTime, "event", ev.Kind, "description", ev.Describe())
	s.emit(EventDynamic, map[string]any{"event": ev.Kind, "active": true}, "%s", ev.Describe())
}

func (s *Simulation) revert(i int, ev level.DynamicEvent) {
	switch ev.Kind {
	case level.SegmentFailure:
		if s.Board.SetActive(ev.Pos, true) {
			s.graphDirty = true
		}
	case level.SurgePassengers:
		if ev.Multiplier != 0 {
			s.surge[ev.Color] = s.surgeOf(ev) / ev.Multiplier
		}
	case level.NewDemand:
		if j, ok := s.eventDemand[i]; ok {
			s.demands[j].Retired = true
		}
	case level.StationOverload:
		delete(s.overloaded, ev.Station)
	}
	s.emit(EventDynamic, map[string]any{"event": ev.Kind, "active": false}, "%s ended", ev.Describe())
}

func (s *Simulation) surgeOf(ev level.DynamicEvent) float64 {
	if m, ok := s.surge[ev.Color]; ok {
		return m
	}
	return 1
}
