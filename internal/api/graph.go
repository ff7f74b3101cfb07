package api

import (
	"cmp"
	"slices"

	"github.com/talgya/gridtransit/internal/routing"
	"github.com/talgya/gridtransit/internal/world"
)

type graphView struct {
	Nodes []*routing.Node `json:"nodes"`
	Edges []edgeView      `json:"edges"`
}

type edgeView struct {
	From    world.GridPos    `json:"from"`
	To      world.GridPos    `json:"to"`
	Cost    float64          `json:"cost"`
	Kind    routing.EdgeKind `json:"kind"`
	RouteID string           `json:"route_id,omitempty"`
}

func comparePos(a, b world.GridPos) int {
	return cmp.Or(cmp.Compare(a.Y, b.Y), cmp.Compare(a.X, b.X))
}

// newGraphView flattens the graph into row-major node and edge lists.
func newGraphView(g *routing.Graph) graphView {
	view := graphView{Nodes: []*routing.Node{}, Edges: []edgeView{}}
	for _, n := range g.Nodes {
		view.Nodes = append(view.Nodes, n)
	}
	slices.SortFunc(view.Nodes, func(a, b *routing.Node) int { return comparePos(a.Pos, b.Pos) })

	for from, edges := range g.Edges {
		for _, e := range edges {
			view.Edges = append(view.Edges, edgeView{From: from, To: e.To, Cost: e.Cost, Kind: e.Kind, RouteID: e.RouteID})
		}
	}
	slices.SortFunc(view.Edges, func(a, b edgeView) int {
		return cmp.Or(comparePos(a.From, b.From), comparePos(a.To, b.To))
	})
	return view
}
