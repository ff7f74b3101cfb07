package routing

import (
	"github.com/samber/lo"

	"github.com/talgya/gridtransit/internal/world"
)

// Annotate returns a copy of g with route membership written onto its
// edges. Every edge on the cheapest leg between consecutive stops of a
// route is tagged with that route's id; an edge shared by several routes
// keeps the first. At transfer hubs where two or more routes meet, the
// hub edges of every route but the first become Transfer edges, so a
// passenger switching routes there crosses exactly one of them.
func Annotate(g *Graph, routes []RouteInfo, hubs []string) *Graph {
	out := g.Clone()

	for _, r := range routes {
		for i := 1; i < len(r.Stations); i++ {
			path, err := FindOptimalPath(g, r.Stations[i-1], r.Stations[i])
			if err != nil {
				continue
			}
			tiles := path.Positions()
			for j := 1; j < len(tiles); j++ {
				out.tag(tiles[j-1], tiles[j], r.ID)
			}
		}
	}

	order := make(map[string]int, len(routes))
	for i, r := range routes {
		order[r.ID] = i
	}
	for _, name := range hubs {
		pos, ok := out.StationIndex[name]
		if !ok {
			continue
		}
		ids := lo.Uniq(lo.FilterMap(out.Edges[pos], func(e Edge, _ int) (string, bool) {
			return e.RouteID, e.RouteID != ""
		}))
		if len(ids) < 2 {
			continue
		}
		primary := lo.MinBy(ids, func(a, b string) bool { return order[a] < order[b] })
		for _, e := range out.Edges[pos] {
			if e.RouteID == "" || e.RouteID == primary {
				continue
			}
			out.retype(pos, e.To, EdgeTransfer, TransferCost)
		}
	}
	return out
}

// tag sets the route id of an untagged edge pair.
func (g *Graph) tag(a, b world.GridPos, routeID string) {
	e, ok := g.Edge(a, b)
	if !ok || e.RouteID != "" {
		return
	}
	back, _ := g.Edge(b, a)
	e.RouteID, back.RouteID = routeID, routeID
	g.setEdge(a, e)
	g.setEdge(b, back)
}

// retype changes kind and cost of an edge pair together.
func (g *Graph) retype(a, b world.GridPos, kind EdgeKind, cost float64) {
	e, ok := g.Edge(a, b)
	if !ok {
		return
	}
	back, _ := g.Edge(b, a)
	e.Kind, e.Cost = kind, cost
	back.Kind, back.Cost = kind, cost
	g.setEdge(a, e)
	g.setEdge(b, back)
}
