package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/talgya/gridtransit/internal/agents"
	"github.com/talgya/gridtransit/internal/board"
	"github.com/talgya/gridtransit/internal/entropy"
	"github.com/talgya/gridtransit/internal/level"
	"github.com/talgya/gridtransit/internal/routing"
	"github.com/talgya/gridtransit/internal/segment"
	"github.com/talgya/gridtransit/internal/world"
)

// ErrNotPlaying is returned for board edits after the game has ended.
var ErrNotPlaying = errors.New("game is not in progress")

// Phase is the overall game status.
type Phase uint8

const (
	Playing Phase = iota
	Paused
	LevelComplete
	GameOver
)

var phaseNames = [...]string{"playing", "paused", "level_complete", "game_over"}

func (p Phase) String() string {
	return phaseNames[p]
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a phase name.
func (p *Phase) UnmarshalText(b []byte) error {
	i := slices.Index(phaseNames[:], string(b))
	if i < 0 {
		return fmt.Errorf("unknown phase %q", b)
	}
	*p = Phase(i)
	return nil
}

// Ended reports whether the game reached a final outcome.
func (p Phase) Ended() bool {
	return p == LevelComplete || p == GameOver
}

// Stats tracks passenger accounting for the current run.
type Stats struct {
	Spawned         int     `json:"spawned"`
	Arrived         int     `json:"arrived"`
	GaveUp          int     `json:"gave_up"`
	TotalTravelTime float64 `json:"total_travel_time"`
	MaxTransfers    int     `json:"max_transfers"` // Most transfers made by an arrived passenger
}

// AvgTravelTime returns the mean spawn-to-arrival time.
func (st Stats) AvgTravelTime() float64 {
	if st.Arrived == 0 {
		return 0
	}
	return st.TotalTravelTime / float64(st.Arrived)
}

// Satisfaction returns the share of spawned passengers who arrived.
func (st Stats) Satisfaction() float64 {
	if st.Spawned == 0 {
		return 0
	}
	return float64(st.Arrived) / float64(st.Spawned)
}

// ObjectiveStatus tracks one level objective.
type ObjectiveStatus struct {
	level.Objective
	Completed bool `json:"completed"` // Latched once the condition held
	Holding   bool `json:"holding"`   // Condition value on the last frame
}

// Outcome is the final result of a run.
type Outcome struct {
	Completed bool    `json:"completed"`
	Reason    string  `json:"reason"`
	Score     int     `json:"score"`
	Time      float64 `json:"time"`
	Stats     Stats   `json:"stats"`
}

type demandState struct {
	level.Demand
	Retired bool `json:"retired"`
}

type pendingRevert struct {
	event int
	at    float64
}

// Simulation holds the complete game state and runs the frame pipeline.
// Exported methods lock; unexported ones assume the lock is held.
type Simulation struct {
	mu *xsync.RBMutex

	RunID  uuid.UUID
	Level  *level.Level
	Tuning Tuning

	Board  *board.Board
	Graph  *routing.Graph // Annotated with the current routes
	raw    *routing.Graph
	Routes []routing.RouteInfo

	Passengers     []*agents.Passenger
	PassengerIndex map[agents.PassengerID]*agents.Passenger
	Buses          []*agents.Bus

	Objectives []ObjectiveStatus
	Stats      Stats
	Score      int
	Phase      Phase
	Outcome    *Outcome
	GameTime   float64
	LastFrame  uint64

	Events      []Event
	subscribers []func(Event)

	rng     entropy.Source
	spawner *agents.Spawner
	demands []demandState

	graphDirty       bool
	discoveryPending bool
	lastDiscovery    float64
	cleanupTimer     float64
	nextRouteID      int

	fired       []bool
	reverts     []pendingRevert
	eventDemand map[int]int // Event index to the demand it added
	surge       map[world.Color]float64
	overloaded  map[string]bool
}

// New creates a simulation for lvl.
func New(lvl *level.Level, t Tuning, rng entropy.Source) (*Simulation, error) {
	s := &Simulation{
		mu:     xsync.NewRBMutex(),
		Level:  lvl,
		Tuning: t,
		rng:    rng,
	}
	if err := s.reset(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Simulation) reset() error {
	b, err := s.Level.NewBoard()
	if err != nil {
		return fmt.Errorf("build board: %w", err)
	}
	s.RunID = uuid.New()
	s.Board = b
	s.raw = routing.Build(b)
	s.Graph = s.raw.Clone()
	s.Routes = nil
	s.Passengers = nil
	s.PassengerIndex = make(map[agents.PassengerID]*agents.Passenger)
	s.Buses = nil
	s.Objectives = make([]ObjectiveStatus, len(s.Level.Objectives))
	for i, o := range s.Level.Objectives {
		s.Objectives[i] = ObjectiveStatus{Objective: o}
	}
	s.Stats = Stats{}
	s.Score = 0
	s.Phase = Playing
	s.Outcome = nil
	s.GameTime = 0
	s.LastFrame = 0
	s.Events = nil
	s.spawner = agents.NewSpawner(s.Tuning.busConfig())
	s.demands = make([]demandState, len(s.Level.Demands))
	for i, d := range s.Level.Demands {
		d.SpawnedCount = 0
		s.demands[i] = demandState{Demand: d}
	}
	s.graphDirty = true
	s.discoveryPending = true
	s.lastDiscovery = math.Inf(-1)
	s.cleanupTimer = 0
	s.nextRouteID = 1
	s.fired = make([]bool, len(s.Level.Events))
	s.reverts = nil
	s.eventDemand = make(map[int]int)
	s.surge = make(map[world.Color]float64)
	s.overloaded = make(map[string]bool)
	return nil
}

// Read runs fn with a consistent read-only view of the simulation.
func (s *Simulation) Read(fn func(*Simulation)) {
	token := s.mu.RLock()
	defer s.mu.RUnlock(token)
	fn(s)
}

// Tick advances the game by dt seconds. It does nothing unless the game
// is playing. An error means the network graph failed validation; the
// frame is abandoned after the board edits were applied.
func (s *Simulation) Tick(dt float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick(dt)
}

func (s *Simulation) tick(dt float64) error {
	if s.Phase != Playing || dt <= 0 {
		return nil
	}
	s.GameTime += dt
	s.LastFrame++

	s.applyDynamicEvents()
	if err := s.refreshNetwork(); err != nil {
		slog.Error("network graph invalid, frame aborted", "time", s.GameTime, "error", err)
		return err
	}
	s.spawnPassengers(dt)
	s.stepPassengers(dt)
	s.stepBusPlanners(dt)
	s.stepBusMovement(dt)
	s.reconcileBoarding()
	s.evaluateObjectives()
	s.cleanup(dt)
	return nil
}

// PlaceSegment puts a piece from the inventory on the board.
func (s *Simulation) PlaceSegment(pos world.GridPos, t segment.Type, rot int) (*board.Placed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Phase.Ended() {
		return nil, ErrNotPlaying
	}
	p, err := s.Board.Place(pos, t, rot)
	if err != nil {
		s.reject(err)
		return nil, err
	}
	s.graphDirty = true
	s.emit(EventSegmentPlaced, map[string]any{"pos": pos, "type": t, "rotation": p.Rotation},
		"placed %s at %s", t, pos)
	s.emitInventory(t)
	return p, nil
}

// RemoveSegment takes a piece off the board and refunds it.
func (s *Simulation) RemoveSegment(pos world.GridPos) (*board.Placed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Phase.Ended() {
		return nil, ErrNotPlaying
	}
	p, err := s.Board.Remove(pos)
	if err != nil {
		s.reject(err)
		return nil, err
	}
	s.graphDirty = true
	s.emit(EventSegmentRemoved, map[string]any{"pos": pos, "type": p.Type}, "removed %s at %s", p.Type, pos)
	s.emitInventory(p.Type)
	return p, nil
}

// RotateSegment turns a placed piece 90 degrees clockwise.
func (s *Simulation) RotateSegment(pos world.GridPos) (*board.Placed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Phase.Ended() {
		return nil, ErrNotPlaying
	}
	p, err := s.Board.Rotate(pos)
	if err != nil {
		s.reject(err)
		return nil, err
	}
	s.graphDirty = true
	s.emit(EventSegmentRotated, map[string]any{"pos": pos, "rotation": p.Rotation},
		"rotated %s at %s to %d", p.Type, pos, p.Rotation)
	return p, nil
}

func (s *Simulation) reject(err error) {
	s.emit(EventPlacementRejected, map[string]any{"error": err.Error()}, "%v", err)
}

func (s *Simulation) emitInventory(t segment.Type) {
	s.emit(EventInventoryUpdated, map[string]any{"type": t, "count": s.Board.Inventory(t)},
		"%s inventory %d", t, s.Board.Inventory(t))
}

// Pause halts the frame pipeline. Board edits are still accepted.
func (s *Simulation) Pause() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Phase != Playing {
		return false
	}
	s.Phase = Paused
	s.emit(EventGamePaused, nil, "game paused")
	return true
}

// Resume continues a paused game.
func (s *Simulation) Resume() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Phase != Paused {
		return false
	}
	s.Phase = Playing
	s.emit(EventGameResumed, nil, "game resumed")
	return true
}

// Restart reloads the level and starts a new run.
func (s *Simulation) Restart() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.reset(); err != nil {
		return err
	}
	slog.Info("level restarted", "level", s.Level.ID, "run", s.RunID)
	s.emit(EventGameRestarted, map[string]any{"run_id": s.RunID.String()}, "level %s restarted", s.Level.ID)
	return nil
}

// Status is a summary of the run for clients.
type Status struct {
	RunID      uuid.UUID            `json:"run_id"`
	Level      string               `json:"level"`
	Phase      Phase                `json:"phase"`
	GameTime   float64              `json:"game_time"`
	Score      int                  `json:"score"`
	Stats      Stats                `json:"stats"`
	Active     int                  `json:"active_passengers"`
	Buses      int                  `json:"buses"`
	Routes     int                  `json:"routes"`
	Segments   int                  `json:"segments"`
	TotalCost  int                  `json:"total_cost"`
	Inventory  map[segment.Type]int `json:"inventory"`
	Objectives []ObjectiveStatus    `json:"objectives"`
	Outcome    *Outcome             `json:"outcome,omitempty"`
}

// Status returns a snapshot of the run.
func (s *Simulation) Status() Status {
	token := s.mu.RLock()
	defer s.mu.RUnlock(token)
	return Status{
		RunID:      s.RunID,
		Level:      s.Level.ID,
		Phase:      s.Phase,
		GameTime:   s.GameTime,
		Score:      s.Score,
		Stats:      s.Stats,
		Active:     s.activeCount(),
		Buses:      len(s.Buses),
		Routes:     len(s.Routes),
		Segments:   s.Board.Count(),
		TotalCost:  s.Board.TotalCost(),
		Inventory:  s.Board.InventorySnapshot(),
		Objectives: append([]ObjectiveStatus(nil), s.Objectives...),
		Outcome:    s.Outcome,
	}
}

func (s *Simulation) activeCount() int {
	n := 0
	for _, p := range s.Passengers {
		if p.Active() {
			n++
		}
	}
	return n
}

func (s *Simulation) worldOf(p world.GridPos) orb.Point {
	return s.Board.Map.WorldOf(p, s.Tuning.TileSize)
}
