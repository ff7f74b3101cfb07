package routing_test

import (
	"container/heap"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/gridtransit/internal/routing"
	"github.com/talgya/gridtransit/internal/segment"
	"github.com/talgya/gridtransit/internal/world"
)

func TestPriorityQueueTieBreak(t *testing.T) {
	pq := make(routing.PriorityQueue, 0)
	heap.Push(&pq, &routing.Item{Value: world.GridPos{X: 1}, Priority: 2, Changes: 1})
	heap.Push(&pq, &routing.Item{Value: world.GridPos{X: 2}, Priority: 2, Changes: 0})
	heap.Push(&pq, &routing.Item{Value: world.GridPos{X: 3}, Priority: 1, Changes: 5})

	assert.Equal(t, 3, heap.Pop(&pq).(*routing.Item).Value.X)
	assert.Equal(t, 2, heap.Pop(&pq).(*routing.Item).Value.X)
	assert.Equal(t, 1, heap.Pop(&pq).(*routing.Item).Value.X)
	assert.Equal(t, 0, pq.Len())
}

func TestFindOptimalPathChain(t *testing.T) {
	b := buildBoard(t, 10, 8,
		[]stop{{"A", 1, 4, world.Terminal}, {"B", 8, 4, world.Terminal}},
		straightRow(4, 2, 7),
	)
	g := routing.Build(b)

	path, err := routing.FindOptimalPath(g, "A", "B")
	require.NoError(t, err)
	require.Equal(t, 8, path.Len())
	assert.Equal(t, routing.StationNode, path.Nodes[0].Kind)
	assert.Equal(t, "A", path.Nodes[0].StationName)
	assert.Equal(t, "B", path.Nodes[7].StationName)
	assert.Equal(t, routing.RouteSegmentNode, path.Nodes[3].Kind)
	for i, n := range path.Nodes {
		assert.Equal(t, world.GridPos{X: i + 1, Y: 4}, n.Pos)
	}
	assert.InDelta(t, 2*routing.WalkCost+5*routing.BusRouteCost, path.Cost, 1e-9)
	assert.Equal(t, []string{"A", "B"}, path.Stations())
}

func TestFindOptimalPathFailures(t *testing.T) {
	b := buildBoard(t, 10, 8,
		[]stop{{"A", 1, 4, world.Terminal}, {"B", 8, 4, world.Terminal}},
		straightRow(4, 2, 5),
	)
	g := routing.Build(b)

	_, err := routing.FindOptimalPath(g, "A", "B")
	assert.ErrorIs(t, err, routing.ErrNoPath)
	_, err = routing.FindOptimalPath(g, "A", "Z")
	assert.ErrorIs(t, err, routing.ErrNoPath)
	_, err = routing.FindOptimalPath(g, "Z", "A")
	assert.ErrorIs(t, err, routing.ErrNoPath)

	path, err := routing.FindOptimalPath(g, "A", "A")
	require.NoError(t, err)
	assert.Equal(t, 1, path.Len())
	assert.Zero(t, path.Cost)
}

func TestFindOptimalPathPrefersShorterLoop(t *testing.T) {
	// Two parallel corridors between A and B; the upper one is longer.
	//   (2,1)───────(7,1)
	//   │             │
	//  A(1,3)(2,3)──(7,3)B(8,3)
	pieces := []piece{
		{2, 3, segment.TSplit, 270},
		{7, 3, segment.TSplit, 270},
		{2, 2, segment.Straight, 90},
		{7, 2, segment.Straight, 90},
		{2, 1, segment.Curve, 180},
		{7, 1, segment.Curve, 270},
	}
	pieces = append(pieces, straightRow(3, 3, 6)...)
	pieces = append(pieces, straightRow(1, 3, 6)...)
	b := buildBoard(t, 10, 8, []stop{{"A", 1, 3, world.Terminal}, {"B", 8, 3, world.Terminal}}, pieces)
	g := routing.Build(b)
	require.NoError(t, g.Validate())

	path, err := routing.FindOptimalPath(g, "A", "B")
	require.NoError(t, err)
	for _, n := range path.Nodes {
		assert.Equal(t, 3, n.Pos.Y, "should stay on the lower corridor")
	}
	assert.Equal(t, routing.TransferPoint, path.Nodes[1].Kind)
}

// bruteForce enumerates every simple path and returns the cheapest cost.
func bruteForce(g *routing.Graph, from, to world.GridPos) float64 {
	best := math.Inf(1)
	visited := map[world.GridPos]bool{from: true}
	var walk func(cur world.GridPos, cost float64)
	walk = func(cur world.GridPos, cost float64) {
		if cur == to {
			best = math.Min(best, cost)
			return
		}
		for _, e := range g.Edges[cur] {
			if visited[e.To] {
				continue
			}
			visited[e.To] = true
			walk(e.To, cost+e.Cost)
			visited[e.To] = false
		}
	}
	walk(from, 0)
	return best
}

func TestPlannerOptimalAgainstBruteForce(t *testing.T) {
	stops := []stop{{"A", 0, 0, world.Terminal}, {"B", 4, 4, world.Terminal}, {"C", 4, 0, world.BusStop}}
	var pieces []piece
	for y := 0; y <= 4; y++ {
		for x := 0; x <= 4; x++ {
			if (x == 0 && y == 0) || (x == 4 && y == 4) || (x == 4 && y == 0) {
				continue
			}
			typ := segment.Cross
			if (x+y)%3 == 0 {
				typ = segment.Straight
			}
			pieces = append(pieces, piece{x, y, typ, 90 * ((x * y) % 2)})
		}
	}
	b := buildBoard(t, 5, 5, stops, pieces)
	g := routing.Build(b)
	require.NoError(t, g.Validate())

	for _, pair := range [][2]string{{"A", "B"}, {"A", "C"}, {"C", "B"}, {"B", "A"}} {
		path, err := routing.FindOptimalPath(g, pair[0], pair[1])
		want := bruteForce(g, g.StationIndex[pair[0]], g.StationIndex[pair[1]])
		if math.IsInf(want, 1) {
			assert.ErrorIs(t, err, routing.ErrNoPath)
			continue
		}
		require.NoError(t, err, "%v", pair)
		assert.InDelta(t, want, path.Cost, 1e-9, "%v", pair)
		assert.InDelta(t, path.Cost, routing.PathCost(g, path.Positions()), 1e-9)
	}
}

func TestPlannerIdempotent(t *testing.T) {
	b := transferLayout(t)
	g := routing.Build(b)
	first, err := routing.FindOptimalPath(g, "A", "C")
	require.NoError(t, err)
	second, err := routing.FindOptimalPath(g, "A", "C")
	require.NoError(t, err)
	assert.Equal(t, first.Cost, second.Cost)
}

func TestTransferPenalty(t *testing.T) {
	b := transferLayout(t)
	raw := routing.Build(b)
	routes := []routing.RouteInfo{
		{ID: "route_1", Stations: []string{"A", "T"}},
		{ID: "route_2", Stations: []string{"B", "T", "C"}},
	}
	g := routing.Annotate(raw, routes, []string{"T"})
	require.NoError(t, g.Validate())

	plain, err := routing.FindOptimalPath(raw, "A", "B")
	require.NoError(t, err)
	assert.Zero(t, plain.RouteChanges)

	path, err := routing.FindOptimalPath(g, "A", "B")
	require.NoError(t, err)
	assert.Equal(t, 1, path.RouteChanges)
	assert.Equal(t, 1, path.TransferEdges())
	assert.Equal(t, []string{"A", "T", "B"}, path.Stations())
	// One walk edge on the hub became a transfer and the change is penalized.
	assert.InDelta(t, plain.Cost+(routing.TransferCost-routing.WalkCost)+routing.RouteChangePenalty, path.Cost, 1e-9)

	// Staying on one route does not count as a change, even though the
	// route crosses both of its hub edges.
	path, err = routing.FindOptimalPath(g, "B", "C")
	require.NoError(t, err)
	assert.Zero(t, path.RouteChanges)
	assert.Equal(t, 2, path.TransferEdges())
}

func TestTransferPenaltyIsSymmetric(t *testing.T) {
	raw := routing.Build(transferLayout(t))
	routes := []routing.RouteInfo{
		{ID: "route_1", Stations: []string{"A", "T"}},
		{ID: "route_2", Stations: []string{"B", "T", "C"}},
	}
	g := routing.Annotate(raw, routes, []string{"T"})

	for _, pair := range [][2]string{{"A", "B"}, {"A", "C"}, {"B", "C"}} {
		there, err := routing.FindOptimalPath(g, pair[0], pair[1])
		require.NoError(t, err, "%v", pair)
		back, err := routing.FindOptimalPath(g, pair[1], pair[0])
		require.NoError(t, err, "%v", pair)

		assert.Equal(t, there.RouteChanges, back.RouteChanges, "%v", pair)
		assert.Equal(t, there.TransferEdges(), back.TransferEdges(), "%v", pair)
		assert.InDelta(t, there.Cost, back.Cost, 1e-9, "%v", pair)
	}

	back, err := routing.FindOptimalPath(g, "B", "A")
	require.NoError(t, err)
	assert.Equal(t, 1, back.RouteChanges)
	assert.Equal(t, []string{"B", "T", "A"}, back.Stations())
}
