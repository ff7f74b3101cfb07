package engine

import (
	"fmt"
	"log/slog"

	"github.com/samber/lo"

	"github.com/talgya/gridtransit/internal/agents"
	"github.com/talgya/gridtransit/internal/routing"
)

// refreshNetwork rebuilds the graph after board edits and runs route
// discovery once the debounce window has passed.
func (s *Simulation) refreshNetwork() error {
	if s.graphDirty {
		s.raw = routing.Build(s.Board)
		if err := s.reannotate(); err != nil {
			return err
		}
		for _, p := range s.Passengers {
			if p.Waiting() {
				p.InvalidatePlan()
			}
		}
		s.graphDirty = false
		s.discoveryPending = true
	}

	if s.discoveryPending && s.GameTime-s.lastDiscovery >= s.Tuning.RediscoveryDebounce {
		return s.rediscover()
	}
	return nil
}

func (s *Simulation) reannotate() error {
	g := routing.Annotate(s.raw, s.Routes, s.Level.Hubs())
	if err := g.Validate(); err != nil {
		return fmt.Errorf("validate graph: %w", err)
	}
	s.Graph = g
	return nil
}

// rediscover mines routes from the raw graph and reconciles the fleet.
// Routes whose station list did not change keep their id and bus.
func (s *Simulation) rediscover() error {
	s.discoveryPending = false
	s.lastDiscovery = s.GameTime

	found := routing.DiscoverRoutes(s.raw, s.Level.StationNames())

	var next []routing.RouteInfo
	kept := make(map[string]bool)
	var added []routing.RouteInfo
	for _, r := range found {
		if old, ok := lo.Find(s.Routes, func(o routing.RouteInfo) bool { return o.SameStations(r) && !kept[o.ID] }); ok {
			kept[old.ID] = true
			next = append(next, old)
			continue
		}
		r.ID = fmt.Sprintf("route_%d", s.nextRouteID)
		s.nextRouteID++
		next = append(next, r)
		added = append(added, r)
	}

	removed := lo.Filter(s.Routes, func(o routing.RouteInfo, _ int) bool { return !kept[o.ID] })
	if len(added) == 0 && len(removed) == 0 {
		return nil
	}

	for _, r := range removed {
		s.despawnRouteBuses(r.ID, "route removed")
	}
	s.Routes = next
	for _, r := range added {
		s.spawnBus(r)
	}
	if err := s.reannotate(); err != nil {
		return err
	}
	for _, p := range s.Passengers {
		if p.Waiting() {
			p.InvalidatePlan()
		}
	}

	ids := lo.Map(s.Routes, func(r routing.RouteInfo, _ int) string { return r.ID })
	slog.Info("routes changed", "time", s.GameTime, "routes", ids, "added", len(added), "removed", len(removed))
	s.emit(EventRoutesChanged, map[string]any{"routes": s.Routes}, "%d routes active", len(s.Routes))
	return nil
}

func (s *Simulation) spawnBus(r routing.RouteInfo) {
	st := s.Board.Map.Station(r.Stations[0])
	if st == nil {
		return
	}
	b := s.spawner.SpawnBus(r, s.worldOf(st.Pos))
	s.Buses = append(s.Buses, b)
	s.emit(EventBusSpawned, map[string]any{"bus": b.ID, "route": r.ID}, "bus %d serves %s", b.ID, r.ID)
}

// despawnRouteBuses removes the buses of a route. Riders give up.
func (s *Simulation) despawnRouteBuses(routeID, reason string) {
	s.Buses = lo.Filter(s.Buses, func(b *agents.Bus, _ int) bool {
		if b.RouteID != routeID {
			return true
		}
		for _, id := range b.Onboard {
			if p := s.PassengerIndex[id]; p != nil && p.Active() {
				s.giveUp(p, reason)
			}
		}
		b.Onboard = nil
		s.emit(EventBusDespawned, map[string]any{"bus": b.ID, "route": routeID}, "bus %d withdrawn: %s", b.ID, reason)
		return false
	})
}

// cleanup drops finished passengers and, on its interval, withdraws buses
// whose routes no longer connect.
func (s *Simulation) cleanup(dt float64) {
	s.Passengers = lo.Filter(s.Passengers, func(p *agents.Passenger, _ int) bool {
		if p.Active() {
			return true
		}
		delete(s.PassengerIndex, p.ID)
		return false
	})

	s.cleanupTimer += dt
	if s.cleanupTimer < s.Tuning.CleanupInterval {
		return
	}
	s.cleanupTimer = 0

	var broken []string
	for _, r := range s.Routes {
		if !routing.RouteReachable(s.raw, r.Stations) {
			broken = append(broken, r.ID)
		}
	}
	if len(broken) == 0 {
		return
	}
	for _, id := range broken {
		s.despawnRouteBuses(id, "route broken")
	}
	s.Routes = lo.Filter(s.Routes, func(r routing.RouteInfo, _ int) bool { return !lo.Contains(broken, r.ID) })
	s.graphDirty = true
	slog.Info("broken routes withdrawn", "time", s.GameTime, "routes", broken)
}
