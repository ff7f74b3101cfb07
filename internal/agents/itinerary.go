package agents

import (
	"slices"

	"github.com/zyedidia/generic/mapset"

	"github.com/talgya/gridtransit/internal/routing"
)

// PlanItinerary finds the fewest-rides sequence of bus legs from one
// station to another over the current routes. Riders may change buses
// at any station two routes share. It returns false when no combination
// of routes connects the stations.
func PlanItinerary(routes []routing.RouteInfo, from, to string) ([]Leg, bool) {
	if from == to {
		return nil, true
	}

	type hop struct {
		station string
		legs    []Leg
	}
	visited := mapset.New[string]()
	visited.Put(from)
	queue := []hop{{station: from}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, r := range routes {
			if !slices.Contains(r.Stations, cur.station) {
				continue
			}
			for _, next := range r.Stations {
				if next == cur.station || visited.Has(next) {
					continue
				}
				legs := append(slices.Clone(cur.legs), Leg{RouteID: r.ID, Board: cur.station, Alight: next})
				if next == to {
					return legs, true
				}
				visited.Put(next)
				queue = append(queue, hop{station: next, legs: legs})
			}
		}
	}
	return nil, false
}
