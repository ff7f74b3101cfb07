// Package agents provides the passenger and bus agents: their state
// machines, the bus itinerary search, and id issuing.
package agents

import (
	"fmt"
	"slices"

	"github.com/talgya/gridtransit/internal/routing"
	"github.com/talgya/gridtransit/internal/world"
)

// PassengerID is a unique identifier for a passenger.
type PassengerID uint64

// PassengerState is the lifecycle stage of a passenger.
type PassengerState uint8

const (
	WaitingAtStation PassengerState = iota
	Traveling                       // On a bus
	Transferring                    // Between buses at an intermediate station
	Arrived
	GaveUp
)

var passengerStateNames = [...]string{"waiting", "traveling", "transferring", "arrived", "gave_up"}

func (s PassengerState) String() string {
	return passengerStateNames[s]
}

// MarshalText encodes the state by name.
func (s PassengerState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *PassengerState) UnmarshalText(b []byte) error {
	i, err := parseName(passengerStateNames[:], "passenger state", b)
	*s = PassengerState(i)
	return err
}

// parseName finds a name in an enum name table.
func parseName(names []string, what string, b []byte) (int, error) {
	if i := slices.Index(names, string(b)); i >= 0 {
		return i, nil
	}
	return 0, fmt.Errorf("unknown %s %q", what, b)
}

// Leg is one bus ride of an itinerary.
type Leg struct {
	RouteID string `json:"route_id"`
	Board   string `json:"board"`
	Alight  string `json:"alight"`
}

// Passenger is a traveler between two named stations.
type Passenger struct {
	ID          PassengerID    `json:"id"`
	Color       world.Color    `json:"color"`
	Origin      string         `json:"origin"`
	Destination string         `json:"destination"`
	Station     string         `json:"station,omitempty"` // Where the passenger waits; empty while riding
	State       PassengerState `json:"state"`

	Patience    float64 `json:"patience"`     // Seconds of patience left
	MaxPatience float64 `json:"max_patience"` // Patience at spawn

	// Trip planning. Plan is the tile path from the planner; Legs are the
	// bus rides that realize it. Both are dropped on every graph rebuild.
	Plan      *routing.Path `json:"plan,omitempty"`
	PlanStep  int           `json:"plan_step"`
	Legs      []Leg         `json:"legs,omitempty"`
	LegIndex  int           `json:"leg_index"`
	NeedsPlan bool          `json:"-"`

	Bus       BusID   `json:"bus,omitempty"`
	SpawnTime float64 `json:"spawn_time"`
	EndTime   float64 `json:"end_time"`
	WaitTime  float64 `json:"wait_time"` // Total time spent waiting at stations
	Transfers int     `json:"transfers"`
	Demand    int     `json:"-"` // Index of the demand that spawned this passenger
}

// Waiting reports whether the passenger stands at a station.
func (p *Passenger) Waiting() bool {
	return p.State == WaitingAtStation || p.State == Transferring
}

// Active reports whether the passenger is still in the game.
func (p *Passenger) Active() bool {
	return p.State != Arrived && p.State != GaveUp
}

// Drain reduces patience by rate·dt. Patience never increases and never
// drops below zero. It returns true once patience is exhausted.
func (p *Passenger) Drain(rate, dt float64) bool {
	if rate > 0 && dt > 0 {
		p.Patience -= rate * dt
	}
	if p.Patience <= patienceEpsilon {
		p.Patience = 0
		return true
	}
	return false
}

// patienceEpsilon absorbs float drift from summing many small frame steps.
const patienceEpsilon = 1e-9

// InvalidatePlan drops the planned path and itinerary of a waiting
// passenger. A riding passenger keeps its current leg.
func (p *Passenger) InvalidatePlan() {
	p.Plan = nil
	p.PlanStep = 0
	if p.Waiting() {
		p.Legs = nil
		p.LegIndex = 0
	}
	p.NeedsPlan = true
}

// CurrentLeg returns the leg the passenger is on or waiting for.
func (p *Passenger) CurrentLeg() (Leg, bool) {
	if p.LegIndex < len(p.Legs) {
		return p.Legs[p.LegIndex], true
	}
	return Leg{}, false
}

// Board puts the passenger on a bus.
func (p *Passenger) Board(bus BusID) {
	p.State = Traveling
	p.Bus = bus
	p.Station = ""
}

// Alight takes the passenger off its bus at station. It returns true if
// the passenger reached its destination.
func (p *Passenger) Alight(station string, now float64) bool {
	p.Bus = 0
	p.Station = station
	p.LegIndex++
	if station == p.Destination {
		p.State = Arrived
		p.EndTime = now
		return true
	}
	p.State = Transferring
	p.Transfers++
	return false
}

// GiveUp ends the passenger's trip unsuccessfully.
func (p *Passenger) GiveUp(now float64) {
	p.State = GaveUp
	p.Bus = 0
	p.EndTime = now
}

// TravelTime returns seconds from spawn to arrival.
func (p *Passenger) TravelTime() float64 {
	return p.EndTime - p.SpawnTime
}
