package agents

import (
	"github.com/paulmach/orb"

	"github.com/talgya/gridtransit/internal/routing"
	"github.com/talgya/gridtransit/internal/world"
)

// Spawner issues ids and builds new agents.
type Spawner struct {
	nextPassenger PassengerID
	nextBus       BusID
	bus           BusConfig
}

// NewSpawner creates a spawner whose buses use cfg.
func NewSpawner(cfg BusConfig) *Spawner {
	return &Spawner{nextPassenger: 1, nextBus: 1, bus: cfg}
}

// SpawnPassenger creates a passenger waiting at its origin with full patience.
func (s *Spawner) SpawnPassenger(color world.Color, origin, destination string, patience, now float64, demand int) *Passenger {
	id := s.nextPassenger
	s.nextPassenger++
	return &Passenger{
		ID:          id,
		Color:       color,
		Origin:      origin,
		Destination: destination,
		Station:     origin,
		State:       WaitingAtStation,
		Patience:    patience,
		MaxPatience: patience,
		NeedsPlan:   true,
		SpawnTime:   now,
		Demand:      demand,
	}
}

// SpawnBus creates a bus for route, standing at its first station.
func (s *Spawner) SpawnBus(route routing.RouteInfo, at orb.Point) *Bus {
	id := s.nextBus
	s.nextBus++
	return NewBus(id, route, at, s.bus)
}
