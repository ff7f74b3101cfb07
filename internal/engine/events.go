package engine

import (
	"fmt"
	"log/slog"
)

// EventKind names a runtime notification sent to the UI.
type EventKind string

const (
	EventSegmentPlaced      EventKind = "segment_placed"
	EventSegmentRemoved     EventKind = "segment_removed"
	EventSegmentRotated     EventKind = "segment_rotated"
	EventPlacementRejected  EventKind = "placement_rejected"
	EventInventoryUpdated   EventKind = "inventory_updated"
	EventRoutesChanged      EventKind = "routes_changed"
	EventBusSpawned         EventKind = "bus_spawned"
	EventBusDespawned       EventKind = "bus_despawned"
	EventPassengerSpawned   EventKind = "passenger_spawned"
	EventPassengerBoarded   EventKind = "passenger_boarded"
	EventPassengerArrived   EventKind = "passenger_arrived"
	EventPassengerGaveUp    EventKind = "passenger_gave_up"
	EventObjectiveCompleted EventKind = "objective_completed"
	EventLevelCompleted     EventKind = "level_completed"
	EventGameOver           EventKind = "game_over"
	EventDynamic            EventKind = "dynamic_event"
	EventGamePaused         EventKind = "game_paused"
	EventGameResumed        EventKind = "game_resumed"
	EventGameRestarted      EventKind = "game_restarted"
)

// Event is a notable occurrence in the game.
type Event struct {
	Time        float64        `json:"time"` // Game time in seconds
	Kind        EventKind      `json:"kind"`
	Category    string         `json:"category"` // "board", "passenger", "bus", "objective", "game"
	Description string         `json:"description"`
	Meta        map[string]any `json:"meta,omitempty"`
}

func categoryOf(k EventKind) string {
	switch k {
	case EventSegmentPlaced, EventSegmentRemoved, EventSegmentRotated, EventPlacementRejected, EventInventoryUpdated:
		return "board"
	case EventRoutesChanged, EventBusSpawned, EventBusDespawned:
		return "bus"
	case EventPassengerSpawned, EventPassengerBoarded, EventPassengerArrived, EventPassengerGaveUp:
		return "passenger"
	case EventObjectiveCompleted:
		return "objective"
	default:
		return "game"
	}
}

// emit records an event and hands it to subscribers. Callers hold the lock.
func (s *Simulation) emit(kind EventKind, meta map[string]any, format string, args ...any) {
	e := Event{
		Time:        s.GameTime,
		Kind:        kind,
		Category:    categoryOf(kind),
		Description: fmt.Sprintf(format, args...),
		Meta:        meta,
	}
	s.Events = append(s.Events, e)
	if limit := s.Tuning.EventBuffer; limit > 0 && len(s.Events) > limit {
		s.Events = s.Events[len(s.Events)-limit:]
	}
	slog.Debug("event", "kind", kind, "time", fmt.Sprintf("%.2f", s.GameTime), "description", e.Description)
	for _, fn := range s.subscribers {
		fn(e)
	}
}

// Subscribe registers fn to receive every future event. fn runs while the
// simulation lock is held and must not call back into the simulation.
func (s *Simulation) Subscribe(fn func(Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// EventsSince returns recorded events with Time >= t.
func (s *Simulation) EventsSince(t float64) []Event {
	token := s.mu.RLock()
	defer s.mu.RUnlock(token)
	var out []Event
	for _, e := range s.Events {
		if e.Time >= t {
			out = append(out, e)
		}
	}
	return out
}
