package routing

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/zyedidia/generic/mapset"
)

// RouteInfo is a station sequence served by buses back and forth.
type RouteInfo struct {
	ID          string   `json:"id"`
	Stations    []string `json:"stations"`
	IsCircular  bool     `json:"is_circular"`
	MaxVehicles int      `json:"max_vehicles"`
}

// SameStations reports whether two routes visit the same stations in the same order.
func (r RouteInfo) SameStations(o RouteInfo) bool {
	return slices.Equal(r.Stations, o.Stations)
}

// DiscoverRoutes mines bus routes from the graph. Stations are seeded in
// the given order; each unprocessed seed is extended once to the first
// later unprocessed station it can reach, and the stations that path
// passes through are kept as intermediate stops. A second pass gives any
// still-unserved station a route to the first station it can reach, so
// the tail of a chain is not stranded.
func DiscoverRoutes(g *Graph, stations []string) []RouteInfo {
	processed := mapset.New[string]()
	var routes []RouteInfo

	emit := func(stops []string) {
		r := RouteInfo{
			ID:          fmt.Sprintf("route_%d", len(routes)+1),
			Stations:    stops,
			MaxVehicles: 1,
		}
		routes = append(routes, r)
		for _, s := range stops {
			processed.Put(s)
		}
		slog.Debug("bus route discovered", "route", r.ID, "stations", r.Stations)
	}

	for i, seed := range stations {
		if processed.Has(seed) {
			continue
		}
		for _, target := range stations[i+1:] {
			if processed.Has(target) {
				continue
			}
			if stops, ok := extend(g, seed, target); ok {
				emit(stops)
				break
			}
		}
	}

	for _, seed := range stations {
		if processed.Has(seed) {
			continue
		}
		for _, target := range stations {
			if target == seed {
				continue
			}
			if stops, ok := extend(g, seed, target); ok {
				emit(stops)
				break
			}
		}
	}

	return routes
}

// extend returns the stops of a route from seed to target, including the
// stations the cheapest path passes through.
func extend(g *Graph, seed, target string) ([]string, bool) {
	path, err := FindOptimalPath(g, seed, target)
	if err != nil || path.Len() <= 1 {
		return nil, false
	}
	return path.Stations(), true
}

// RouteReachable reports whether every consecutive stop pair of a route
// is still connected.
func RouteReachable(g *Graph, stops []string) bool {
	for i := 1; i < len(stops); i++ {
		if !Reachable(g, stops[i-1], stops[i]) {
			return false
		}
	}
	return len(stops) >= 2
}
