package engine

import (
	"log/slog"

	"github.com/talgya/gridtransit/internal/agents"
	"github.com/talgya/gridtransit/internal/routing"
)

// spawnPassengers rolls each active demand once per frame.
func (s *Simulation) spawnPassengers(dt float64) {
	for i := range s.demands {
		d := &s.demands[i]
		if d.Retired || !d.Active(s.GameTime) {
			continue
		}
		if st, ok := s.Level.Station(d.Origin); ok && st.Capacity > 0 && s.waitingAt(d.Origin) >= st.Capacity {
			continue
		}
		rate := d.SpawnRate * s.surgeFor(d)
		if s.rng.Float() >= rate*dt {
			continue
		}
		p := s.spawner.SpawnPassenger(d.Color, d.Origin, d.Destination, d.Patience, s.GameTime, i)
		d.SpawnedCount++
		s.Stats.Spawned++
		s.Passengers = append(s.Passengers, p)
		s.PassengerIndex[p.ID] = p
		s.emit(EventPassengerSpawned, map[string]any{"passenger": p.ID, "color": p.Color},
			"%s passenger %d at %s bound for %s", p.Color, p.ID, p.Origin, p.Destination)
	}
}

func (s *Simulation) surgeFor(d *demandState) float64 {
	if m, ok := s.surge[d.Color]; ok {
		return m
	}
	return 1
}

func (s *Simulation) waitingAt(station string) int {
	n := 0
	for _, p := range s.Passengers {
		if p.Waiting() && p.Station == station {
			n++
		}
	}
	return n
}

// stepPassengers plans trips for waiting passengers and drains patience.
func (s *Simulation) stepPassengers(dt float64) {
	for _, p := range s.Passengers {
		switch {
		case p.Waiting():
			if p.NeedsPlan {
				s.plan(p)
			}
			rate := s.Tuning.WaitDrain
			if s.overloaded[p.Station] {
				rate *= s.Tuning.OverloadDrainFactor
			}
			p.WaitTime += dt
			if p.Drain(rate, dt) {
				s.giveUp(p, "out of patience")
			}
		case p.State == agents.Traveling:
			if p.Drain(s.Tuning.RideDrain, dt) {
				if b := s.busByID(p.Bus); b != nil {
					b.Unload(p.ID)
				}
				s.giveUp(p, "out of patience on board")
			}
		}
	}
}

// plan computes the tile path and the bus itinerary of a waiting
// passenger. Without a path the passenger keeps waiting until the next
// graph rebuild.
func (s *Simulation) plan(p *agents.Passenger) {
	p.NeedsPlan = false
	path, err := routing.FindOptimalPath(s.Graph, p.Station, p.Destination)
	if err != nil {
		p.Plan = nil
		slog.Debug("passenger has no path", "passenger", p.ID, "from", p.Station, "to", p.Destination, "error", err)
		return
	}
	p.Plan = &path
	p.PlanStep = 0
	if legs, ok := agents.PlanItinerary(s.Routes, p.Station, p.Destination); ok {
		p.Legs = legs
		p.LegIndex = 0
	}
}

func (s *Simulation) giveUp(p *agents.Passenger, reason string) {
	p.GiveUp(s.GameTime)
	s.Stats.GaveUp++
	s.emit(EventPassengerGaveUp, map[string]any{"passenger": p.ID, "reason": reason},
		"passenger %d gave up: %s", p.ID, reason)
}

func (s *Simulation) busByID(id agents.BusID) *agents.Bus {
	for _, b := range s.Buses {
		if b.ID == id {
			return b
		}
	}
	return nil
}

func (s *Simulation) stepBusPlanners(dt float64) {
	for _, b := range s.Buses {
		b.StepPlanner(s.Graph, dt)
	}
}

func (s *Simulation) stepBusMovement(dt float64) {
	for _, b := range s.Buses {
		b.StepMovement(dt, s.worldOf)
	}
}

// reconcileBoarding lets riders off at the station a bus just reached and
// boards waiting passengers onto dwelling buses.
func (s *Simulation) reconcileBoarding() {
	for _, b := range s.Buses {
		if !b.Dwelling() {
			continue
		}
		if b.JustArrived {
			s.alight(b)
		}
		s.board(b)
	}
}

func (s *Simulation) alight(b *agents.Bus) {
	for _, id := range append([]agents.PassengerID(nil), b.Onboard...) {
		p := s.PassengerIndex[id]
		if p == nil || !p.Active() {
			b.Unload(id)
			continue
		}
		leg, ok := p.CurrentLeg()
		if b.Station != p.Destination && (!ok || leg.Alight != b.Station) {
			continue
		}
		b.Unload(id)
		if p.Alight(b.Station, s.GameTime) {
			s.arrive(p)
			continue
		}
		p.NeedsPlan = p.LegIndex >= len(p.Legs)
		slog.Debug("passenger transferring", "passenger", p.ID, "station", b.Station)
	}
}

func (s *Simulation) arrive(p *agents.Passenger) {
	s.Stats.Arrived++
	s.Stats.TotalTravelTime += p.TravelTime()
	s.Stats.MaxTransfers = max(s.Stats.MaxTransfers, p.Transfers)
	s.emit(EventPassengerArrived, map[string]any{"passenger": p.ID, "travel_time": p.TravelTime()},
		"passenger %d arrived at %s after %.1fs", p.ID, p.Destination, p.TravelTime())
}

func (s *Simulation) board(b *agents.Bus) {
	for _, p := range s.Passengers {
		if !b.HasSeat() {
			return
		}
		if !p.Waiting() || p.Station != b.Station {
			continue
		}
		leg, ok := p.CurrentLeg()
		if !ok {
			// No itinerary yet: a bus that serves the destination will do.
			if !b.Serves(p.Destination) {
				continue
			}
			p.Legs = append(p.Legs, agents.Leg{RouteID: b.RouteID, Board: b.Station, Alight: p.Destination})
			p.LegIndex = len(p.Legs) - 1
			leg = p.Legs[p.LegIndex]
		}
		if leg.Board != b.Station || !b.Serves(leg.Alight) {
			continue
		}
		b.Load(p.ID)
		p.Board(b.ID)
		s.emit(EventPassengerBoarded, map[string]any{"passenger": p.ID, "bus": b.ID},
			"passenger %d boarded bus %d at %s", p.ID, b.ID, leg.Board)
	}
}
