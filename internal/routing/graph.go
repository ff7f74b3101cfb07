// Package routing turns the board into a tile graph and answers route
// questions on it: which tiles are wired together, the cheapest path
// between two stations, and which station sequences a bus can serve.
package routing

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/samber/lo"
	"github.com/zyedidia/generic/mapset"

	"github.com/talgya/gridtransit/internal/board"
	"github.com/talgya/gridtransit/internal/world"
)

// Edge costs.
const (
	WalkCost     = 0.5
	BusRouteCost = 1.0
	TransferCost = 2.0
)

// NodeKind classifies a graph node.
type NodeKind uint8

const (
	NodeStation NodeKind = iota
	NodeRouteSegment
	NodeIntersection
)

var nodeKindNames = [...]string{"station", "route_segment", "intersection"}

func (k NodeKind) String() string {
	return nodeKindNames[k]
}

// MarshalText encodes the kind by name.
func (k NodeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *NodeKind) UnmarshalText(b []byte) error {
	i, err := parseName(nodeKindNames[:], "node kind", b)
	*k = NodeKind(i)
	return err
}

// EdgeKind classifies a graph edge.
type EdgeKind uint8

const (
	EdgeWalk EdgeKind = iota
	EdgeBusRoute
	EdgeTransfer
)

var edgeKindNames = [...]string{"walk", "bus_route", "transfer"}

func (k EdgeKind) String() string {
	return edgeKindNames[k]
}

// MarshalText encodes the kind by name.
func (k EdgeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *EdgeKind) UnmarshalText(b []byte) error {
	i, err := parseName(edgeKindNames[:], "edge kind", b)
	*k = EdgeKind(i)
	return err
}

// parseName finds a name in an enum name table.
func parseName(names []string, what string, b []byte) (int, error) {
	if i := slices.Index(names, string(b)); i >= 0 {
		return i, nil
	}
	return 0, fmt.Errorf("unknown %s %q", what, b)
}

// Node is a routable tile.
type Node struct {
	Pos          world.GridPos `json:"pos"`
	Kind         NodeKind      `json:"kind"`
	StationName  string        `json:"station_name,omitempty"`
	IsAccessible bool          `json:"is_accessible"`
}

// Edge is a directed, weighted link stored under its source tile.
type Edge struct {
	To      world.GridPos `json:"to"`
	Cost    float64       `json:"cost"`
	RouteID string        `json:"route_id,omitempty"`
	Kind    EdgeKind      `json:"kind"`
}

// Graph is the routing graph over stations and active segments.
// Edges are always stored in reciprocal pairs.
type Graph struct {
	Nodes        map[world.GridPos]*Node  `json:"-"`
	Edges        map[world.GridPos][]Edge `json:"-"`
	StationIndex map[string]world.GridPos `json:"station_index"`
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		Nodes:        make(map[world.GridPos]*Node),
		Edges:        make(map[world.GridPos][]Edge),
		StationIndex: make(map[string]world.GridPos),
	}
}

// Build constructs the routing graph from scratch for the current board.
func Build(b *board.Board) *Graph {
	g := NewGraph()

	for _, st := range b.Map.Stations {
		g.Nodes[st.Pos] = &Node{Pos: st.Pos, Kind: NodeStation, StationName: st.Name, IsAccessible: true}
		g.StationIndex[st.Name] = st.Pos
	}
	for _, p := range b.Segments() {
		if !p.Active {
			continue
		}
		kind := NodeRouteSegment
		if p.Type.IsIntersection() {
			kind = NodeIntersection
		}
		g.Nodes[p.Pos] = &Node{Pos: p.Pos, Kind: kind, IsAccessible: true}
	}

	// Each unordered adjacent pair is visited once by only looking east and south.
	for _, pos := range g.positions() {
		for _, off := range []world.Offset{{DX: 1}, {DY: 1}} {
			other := pos.Add(off)
			if _, ok := g.Nodes[other]; !ok {
				continue
			}
			if !Connected(TileAt(b, pos), TileAt(b, other)) {
				continue
			}
			if g.Nodes[pos].Kind == NodeStation || g.Nodes[other].Kind == NodeStation {
				g.link(pos, other, EdgeWalk, WalkCost, "")
			} else {
				g.link(pos, other, EdgeBusRoute, BusRouteCost, "")
			}
		}
	}

	slog.Debug("routing graph built", "nodes", len(g.Nodes), "edges", g.EdgeCount())
	return g
}

// link inserts a reciprocal edge pair.
func (g *Graph) link(a, b world.GridPos, kind EdgeKind, cost float64, routeID string) {
	g.Edges[a] = append(g.Edges[a], Edge{To: b, Cost: cost, Kind: kind, RouteID: routeID})
	g.Edges[b] = append(g.Edges[b], Edge{To: a, Cost: cost, Kind: kind, RouteID: routeID})
}

// Edge returns the edge from a to b, if any.
func (g *Graph) Edge(a, b world.GridPos) (Edge, bool) {
	for _, e := range g.Edges[a] {
		if e.To == b {
			return e, true
		}
	}
	return Edge{}, false
}

// setEdge overwrites the a→b edge in place.
func (g *Graph) setEdge(a world.GridPos, e Edge) {
	for i := range g.Edges[a] {
		if g.Edges[a][i].To == e.To {
			g.Edges[a][i] = e
			return
		}
	}
}

// Station returns the node of a named station.
func (g *Graph) Station(name string) (*Node, bool) {
	pos, ok := g.StationIndex[name]
	if !ok {
		return nil, false
	}
	n, ok := g.Nodes[pos]
	return n, ok
}

// EdgeCount returns the number of directed edges.
func (g *Graph) EdgeCount() int {
	return lo.SumBy(lo.Values(g.Edges), func(es []Edge) int { return len(es) })
}

// Clone returns a deep copy of the graph.
func (g *Graph) Clone() *Graph {
	c := NewGraph()
	for pos, n := range g.Nodes {
		cp := *n
		c.Nodes[pos] = &cp
	}
	for pos, es := range g.Edges {
		c.Edges[pos] = slices.Clone(es)
	}
	for name, pos := range g.StationIndex {
		c.StationIndex[name] = pos
	}
	return c
}

// positions returns node positions in row-major order so builds are deterministic.
func (g *Graph) positions() []world.GridPos {
	out := lo.Keys(g.Nodes)
	slices.SortFunc(out, func(a, b world.GridPos) int {
		if a.Y != b.Y {
			return a.Y - b.Y
		}
		return a.X - b.X
	})
	return out
}

// InvariantError reports a structurally broken graph.
type InvariantError struct {
	Kind string
	From world.GridPos
	To   world.GridPos
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("routing graph invariant violated: %s (%s -> %s)", e.Kind, e.From, e.To)
}

// Validate checks the structural invariants: station index entries point
// at station nodes, edges join existing nodes, and every edge has a
// reciprocal of the same kind and cost.
func (g *Graph) Validate() error {
	for name, pos := range g.StationIndex {
		n, ok := g.Nodes[pos]
		if !ok || n.Kind != NodeStation || n.StationName != name {
			return &InvariantError{Kind: "station index " + name, From: pos, To: pos}
		}
	}
	for from, es := range g.Edges {
		if _, ok := g.Nodes[from]; !ok {
			return &InvariantError{Kind: "dangling edge source", From: from}
		}
		seen := mapset.New[world.GridPos]()
		for _, e := range es {
			if _, ok := g.Nodes[e.To]; !ok {
				return &InvariantError{Kind: "dangling edge target", From: from, To: e.To}
			}
			if seen.Has(e.To) {
				return &InvariantError{Kind: "duplicate edge", From: from, To: e.To}
			}
			seen.Put(e.To)
			back, ok := g.Edge(e.To, from)
			if !ok {
				return &InvariantError{Kind: "missing reciprocal edge", From: from, To: e.To}
			}
			if back.Kind != e.Kind || back.Cost != e.Cost {
				return &InvariantError{Kind: "asymmetric edge", From: from, To: e.To}
			}
		}
	}
	return nil
}
