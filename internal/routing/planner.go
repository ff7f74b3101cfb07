package routing

import (
	"container/heap"
	"errors"
	"fmt"
	"math"

	"github.com/samber/lo"
	"github.com/zyedidia/generic/mapset"

	"github.com/talgya/gridtransit/internal/world"
)

// ErrNoPath is returned when the destination cannot be reached.
var ErrNoPath = errors.New("no path")

const (
	// RouteChangePenalty is added to the path cost for every change of bus route.
	RouteChangePenalty = 3.0
	// MaxIterations bounds a single search.
	MaxIterations = 1000
)

// PathNodeKind classifies a step of a plan.
type PathNodeKind uint8

const (
	StationNode PathNodeKind = iota
	RouteSegmentNode
	TransferPoint
)

var pathNodeKindNames = [...]string{"station", "route_segment", "transfer_point"}

func (k PathNodeKind) String() string {
	return pathNodeKindNames[k]
}

// MarshalText encodes the kind by name.
func (k PathNodeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *PathNodeKind) UnmarshalText(b []byte) error {
	i, err := parseName(pathNodeKindNames[:], "path node kind", b)
	*k = PathNodeKind(i)
	return err
}

// PathNode is one tile of a plan.
type PathNode struct {
	Pos           world.GridPos `json:"pos"`
	Kind          PathNodeKind  `json:"kind"`
	StationName   string        `json:"station_name,omitempty"`
	RouteID       string        `json:"route_id,omitempty"`
	Via           EdgeKind      `json:"via"` // Kind of the edge that entered this tile
	EstimatedWait float64       `json:"estimated_wait"`
}

// Path is a start- and end-inclusive node sequence in traversal order.
type Path struct {
	Nodes        []PathNode `json:"nodes"`
	Cost         float64    `json:"cost"`
	RouteChanges int        `json:"route_changes"`
}

// Len returns the number of tiles on the path.
func (p Path) Len() int { return len(p.Nodes) }

// Positions returns the tiles of the path in order.
func (p Path) Positions() []world.GridPos {
	return lo.Map(p.Nodes, func(n PathNode, _ int) world.GridPos { return n.Pos })
}

// TransferEdges counts the Transfer edges traversed.
func (p Path) TransferEdges() int {
	return lo.CountBy(p.Nodes[min(1, len(p.Nodes)):], func(n PathNode) bool { return n.Via == EdgeTransfer })
}

// Stations returns the names of the stations the path passes, endpoints included.
func (p Path) Stations() []string {
	return lo.FilterMap(p.Nodes, func(n PathNode, _ int) (string, bool) {
		return n.StationName, n.Kind == StationNode
	})
}

// heuristic is the Manhattan tile distance scaled by the cheapest edge
// cost so it never overestimates.
func heuristic(a, b world.GridPos) float64 {
	return float64(a.Manhattan(b)) * WalkCost
}

type searchState struct {
	g       float64
	changes int
	route   string
}

// FindOptimalPath runs A* between two named stations. The cost of a path
// is its edge costs plus RouteChangePenalty each time the route id of the
// tagged edges switches, whichever side of a hub carries the Transfer
// edge, so a trip and its reverse count the same changes. Among
// equal-cost candidates the one with fewer route changes wins.
func FindOptimalPath(g *Graph, origin, destination string) (Path, error) {
	start, ok := g.StationIndex[origin]
	if !ok {
		return Path{}, fmt.Errorf("%w: unknown station %q", ErrNoPath, origin)
	}
	end, ok := g.StationIndex[destination]
	if !ok {
		return Path{}, fmt.Errorf("%w: unknown station %q", ErrNoPath, destination)
	}
	return findPath(g, start, end)
}

func findPath(g *Graph, start, end world.GridPos) (Path, error) {
	if start == end {
		return Path{Nodes: []PathNode{g.pathNode(start, Edge{})}}, nil
	}

	openSet := make(PriorityQueue, 1)
	openSetMap := make(map[world.GridPos]*Item, 1)
	cameFrom := make(map[world.GridPos]world.GridPos)
	state := map[world.GridPos]searchState{start: {}}
	closed := mapset.New[world.GridPos]()

	openSet[0] = &Item{Value: start, Priority: heuristic(start, end), Index: 0}
	openSetMap[start] = openSet[0]
	heap.Init(&openSet)

	for iter := 0; openSet.Len() > 0; iter++ {
		if iter >= MaxIterations {
			return Path{}, fmt.Errorf("%w: search exceeded %d iterations", ErrNoPath, MaxIterations)
		}
		cur := heap.Pop(&openSet).(*Item).Value
		if cur == end {
			return g.reconstructPath(cameFrom, state[end], end), nil
		}
		closed.Put(cur)
		curState := state[cur]

		for _, e := range g.Edges[cur] {
			if closed.Has(e.To) {
				continue
			}
			next := curState
			next.g += e.Cost
			if e.RouteID != "" {
				if curState.route != "" && curState.route != e.RouteID {
					next.changes++
					next.g += RouteChangePenalty
				}
				next.route = e.RouteID
			}

			prev, seen := state[e.To]
			if seen && !(next.g < prev.g || (next.g == prev.g && next.changes < prev.changes)) {
				continue
			}
			cameFrom[e.To] = cur
			state[e.To] = next
			f := next.g + heuristic(e.To, end)
			if item, ok := openSetMap[e.To]; ok && item.Index >= 0 {
				item.Priority = f
				item.Changes = next.changes
				heap.Fix(&openSet, item.Index)
			} else {
				item := &Item{Value: e.To, Priority: f, Changes: next.changes}
				heap.Push(&openSet, item)
				openSetMap[e.To] = item
			}
		}
	}
	return Path{}, ErrNoPath
}

func (g *Graph) reconstructPath(cameFrom map[world.GridPos]world.GridPos, final searchState, cur world.GridPos) Path {
	var reversed []PathNode
	for {
		from, ok := cameFrom[cur]
		if !ok {
			reversed = append(reversed, g.pathNode(cur, Edge{}))
			break
		}
		e, _ := g.Edge(from, cur)
		reversed = append(reversed, g.pathNode(cur, e))
		cur = from
	}
	return Path{
		Nodes:        lo.Reverse(reversed),
		Cost:         final.g,
		RouteChanges: final.changes,
	}
}

func (g *Graph) pathNode(pos world.GridPos, via Edge) PathNode {
	n := g.Nodes[pos]
	pn := PathNode{Pos: pos, RouteID: via.RouteID, Via: via.Kind}
	switch n.Kind {
	case NodeStation:
		pn.Kind = StationNode
		pn.StationName = n.StationName
		if via.Kind == EdgeTransfer {
			pn.EstimatedWait = RouteChangePenalty
		}
	case NodeIntersection:
		pn.Kind = TransferPoint
	default:
		pn.Kind = RouteSegmentNode
	}
	return pn
}

// PathCost sums the edge costs along a tile sequence. It returns +Inf if
// two consecutive tiles are not linked.
func PathCost(g *Graph, tiles []world.GridPos) float64 {
	total := 0.0
	for i := 1; i < len(tiles); i++ {
		e, ok := g.Edge(tiles[i-1], tiles[i])
		if !ok {
			return math.Inf(1)
		}
		total += e.Cost
	}
	return total
}

// Reachable reports whether a path exists between two named stations.
func Reachable(g *Graph, origin, destination string) bool {
	_, err := FindOptimalPath(g, origin, destination)
	return err == nil
}
