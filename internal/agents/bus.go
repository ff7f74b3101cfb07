package agents

import (
	"errors"
	"log/slog"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/talgya/gridtransit/internal/routing"
	"github.com/talgya/gridtransit/internal/world"
)

// BusID is a unique identifier for a bus.
type BusID uint64

// BusState is the planner state of a bus.
type BusState uint8

const (
	BusPlanning BusState = iota
	BusFollowing
	BusAtStation
	BusTurningAround
	BusWaitingForPath
)

var busStateNames = [...]string{"planning", "following", "at_station", "turning_around", "waiting_for_path"}

func (s BusState) String() string {
	return busStateNames[s]
}

// MarshalText encodes the state by name.
func (s BusState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *BusState) UnmarshalText(b []byte) error {
	i, err := parseName(busStateNames[:], "bus state", b)
	*s = BusState(i)
	return err
}

// VehicleState is the coarse vehicle status shown to the player.
type VehicleState uint8

const (
	VehicleTraveling VehicleState = iota
	VehicleAtStop
	VehicleLoading
	VehicleTurningAround
	VehicleIdle
)

var vehicleStateNames = [...]string{"traveling", "at_stop", "loading", "turning_around", "idle"}

func (s VehicleState) String() string {
	return vehicleStateNames[s]
}

// MarshalText encodes the state by name.
func (s VehicleState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *VehicleState) UnmarshalText(b []byte) error {
	i, err := parseName(vehicleStateNames[:], "vehicle state", b)
	*s = VehicleState(i)
	return err
}

// TravelDirection is the sense in which a bus walks its station list.
type TravelDirection uint8

const (
	Forward TravelDirection = iota
	Backward
)

func (d TravelDirection) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// MarshalText encodes the direction by name.
func (d TravelDirection) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText decodes a direction name.
func (d *TravelDirection) UnmarshalText(b []byte) error {
	i, err := parseName([]string{"forward", "backward"}, "direction", b)
	*d = TravelDirection(i)
	return err
}

// BusConfig holds per-vehicle tuning.
type BusConfig struct {
	Capacity   int
	Speed      float64 // World units per second
	DwellTime  float64 // Seconds at each stop
	SnapDist   float64 // Distance at which a waypoint counts as reached
	RetryDelay float64 // Seconds between planning attempts after NoPath
}

// Bus is a vehicle serving one route back and forth.
type Bus struct {
	ID        BusID           `json:"id"`
	RouteID   string          `json:"route_id"`
	Stations  []string        `json:"stations"`
	NextIndex int             `json:"next_station_index"`
	Direction TravelDirection `json:"direction"`
	Target    string          `json:"target_station,omitempty"`
	Station   string          `json:"station"` // Last station reached
	State     BusState        `json:"state"`

	Plan     routing.Path `json:"plan"`
	PlanStep int          `json:"plan_step"`
	Pos      orb.Point    `json:"pos"`

	Capacity       int           `json:"capacity"`
	Onboard        []PassengerID `json:"onboard"`
	Speed          float64       `json:"speed"`
	DwellTime      float64       `json:"dwell_time"`
	RemainingDwell float64       `json:"remaining_dwell"`

	// JustArrived is set by the movement step on the frame the bus reaches
	// a station and cleared by the next planner step.
	JustArrived bool `json:"-"`

	snapDist   float64
	retryDelay float64
	retryTimer float64
}

// NewBus places a bus at the first station of its route, dwelling and
// facing forward.
func NewBus(id BusID, route routing.RouteInfo, at orb.Point, cfg BusConfig) *Bus {
	return &Bus{
		ID:             id,
		RouteID:        route.ID,
		Stations:       slices.Clone(route.Stations),
		NextIndex:      1,
		Direction:      Forward,
		Station:        route.Stations[0],
		State:          BusAtStation,
		Pos:            at,
		Capacity:       cfg.Capacity,
		Speed:          cfg.Speed,
		DwellTime:      cfg.DwellTime,
		RemainingDwell: cfg.DwellTime,
		snapDist:       cfg.SnapDist,
		retryDelay:     cfg.RetryDelay,
	}
}

// VehicleState summarizes the planner state for display.
func (b *Bus) VehicleState() VehicleState {
	switch b.State {
	case BusFollowing:
		return VehicleTraveling
	case BusAtStation:
		if len(b.Onboard) > 0 {
			return VehicleLoading
		}
		return VehicleAtStop
	case BusTurningAround:
		return VehicleTurningAround
	default:
		return VehicleIdle
	}
}

// NextTarget returns the station the bus heads for next, or false when
// the station list is exhausted in the current direction.
func (b *Bus) NextTarget() (string, bool) {
	i := b.NextIndex
	if b.Direction == Backward {
		i--
	}
	if i < 0 || i >= len(b.Stations) {
		return "", false
	}
	return b.Stations[i], true
}

// Serves reports whether station is on the bus's route.
func (b *Bus) Serves(station string) bool {
	return slices.Contains(b.Stations, station)
}

// Dwelling reports whether the bus stands at a station accepting riders.
func (b *Bus) Dwelling() bool {
	return b.State == BusAtStation
}

// HasSeat reports whether another passenger fits.
func (b *Bus) HasSeat() bool {
	return len(b.Onboard) < b.Capacity
}

// Load adds a passenger. It returns false when the bus is full.
func (b *Bus) Load(id PassengerID) bool {
	if !b.HasSeat() {
		return false
	}
	b.Onboard = append(b.Onboard, id)
	return true
}

// Unload removes a passenger.
func (b *Bus) Unload(id PassengerID) {
	b.Onboard = slices.DeleteFunc(b.Onboard, func(o PassengerID) bool { return o == id })
}

// StepPlanner advances the Planning, TurningAround and WaitingForPath
// states.
func (b *Bus) StepPlanner(g *routing.Graph, dt float64) {
	b.JustArrived = false

	switch b.State {
	case BusPlanning:
		target, ok := b.NextTarget()
		if !ok {
			b.State = BusTurningAround
			return
		}
		path, err := routing.FindOptimalPath(g, b.Station, target)
		if err != nil {
			if errors.Is(err, routing.ErrNoPath) {
				slog.Debug("bus waiting for path", "bus", b.ID, "from", b.Station, "to", target)
			}
			b.State = BusWaitingForPath
			b.retryTimer = b.retryDelay
			return
		}
		b.Target = target
		b.Plan = path
		b.PlanStep = 1
		b.State = BusFollowing

	case BusTurningAround:
		b.turnAround()
		b.State = BusPlanning

	case BusWaitingForPath:
		b.retryTimer -= dt
		if b.retryTimer <= 0 {
			b.State = BusPlanning
		}
	}
}

func (b *Bus) turnAround() {
	if b.Direction == Forward {
		b.Direction = Backward
		b.NextIndex = len(b.Stations) - 1
	} else {
		b.Direction = Forward
		b.NextIndex = 1
	}
}

// StepMovement moves a following bus along its plan and counts down the
// dwell of a stationary one. worldOf maps tiles to world coordinates.
func (b *Bus) StepMovement(dt float64, worldOf func(world.GridPos) orb.Point) {
	switch b.State {
	case BusFollowing:
		b.follow(dt, worldOf)
	case BusAtStation:
		if b.JustArrived {
			return
		}
		b.RemainingDwell -= dt
		if b.RemainingDwell <= 0 {
			b.RemainingDwell = 0
			b.State = BusPlanning
		}
	}
}

func (b *Bus) follow(dt float64, worldOf func(world.GridPos) orb.Point) {
	budget := b.Speed * dt
	for b.PlanStep < b.Plan.Len() {
		wp := worldOf(b.Plan.Nodes[b.PlanStep].Pos)
		dist := planar.Distance(b.Pos, wp)
		if dist > budget {
			frac := budget / dist
			b.Pos = orb.Point{b.Pos.X() + (wp.X()-b.Pos.X())*frac, b.Pos.Y() + (wp.Y()-b.Pos.Y())*frac}
			if planar.Distance(b.Pos, wp) <= b.snapDist {
				b.Pos = wp
				b.PlanStep++
			}
			break
		}
		budget -= dist
		b.Pos = wp
		b.PlanStep++
		if budget <= 0 {
			break
		}
	}
	if b.PlanStep >= b.Plan.Len() {
		b.arrive()
	}
}

func (b *Bus) arrive() {
	b.Station = b.Target
	b.Target = ""
	b.State = BusAtStation
	b.RemainingDwell = b.DwellTime
	b.JustArrived = true
	if b.Direction == Forward {
		b.NextIndex++
	} else {
		b.NextIndex--
	}
}
