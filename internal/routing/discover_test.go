package routing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/gridtransit/internal/routing"
	"github.com/talgya/gridtransit/internal/world"
)

func TestDiscoverSingleChain(t *testing.T) {
	b := buildBoard(t, 10, 8,
		[]stop{{"A", 1, 4, world.Terminal}, {"B", 4, 4, world.Terminal}},
		straightRow(4, 2, 3),
	)
	g := routing.Build(b)
	routes := routing.DiscoverRoutes(g, []string{"A", "B"})
	require.Len(t, routes, 1)
	assert.Equal(t, "route_1", routes[0].ID)
	assert.Equal(t, []string{"A", "B"}, routes[0].Stations)
	assert.False(t, routes[0].IsCircular)
	assert.Equal(t, 1, routes[0].MaxVehicles)

	// Removing the middle piece disconnects the route.
	_, err := b.Remove(world.GridPos{X: 3, Y: 4})
	require.NoError(t, err)
	g = routing.Build(b)
	assert.Empty(t, routing.DiscoverRoutes(g, []string{"A", "B"}))
	assert.False(t, routing.RouteReachable(g, routes[0].Stations))
}

func TestDiscoverNothingWithoutSegments(t *testing.T) {
	b := buildBoard(t, 10, 8, []stop{{"A", 1, 4, world.Terminal}, {"B", 8, 4, world.Terminal}}, nil)
	assert.Empty(t, routing.DiscoverRoutes(routing.Build(b), []string{"A", "B"}))
}

func TestDiscoverKeepsIntermediateStations(t *testing.T) {
	b := transferLayout(t)
	g := routing.Build(b)
	routes := routing.DiscoverRoutes(g, []string{"A", "T", "B", "C"})
	require.Len(t, routes, 2)
	assert.Equal(t, []string{"A", "T"}, routes[0].Stations)
	assert.Equal(t, []string{"B", "T", "C"}, routes[1].Stations)
	assert.Equal(t, "route_2", routes[1].ID)

	for _, r := range routes {
		assert.True(t, routing.RouteReachable(g, r.Stations))
	}
}

func TestDiscoverServesChainTail(t *testing.T) {
	// A─B─C in a line: the greedy pass pairs A with B, the coverage pass
	// gives C a route through B back to A.
	pieces := append(straightRow(4, 2, 3), straightRow(4, 5, 6)...)
	b := buildBoard(t, 10, 8,
		[]stop{{"A", 1, 4, world.Terminal}, {"B", 4, 4, world.BusStop}, {"C", 7, 4, world.Terminal}},
		pieces,
	)
	routes := routing.DiscoverRoutes(routing.Build(b), []string{"A", "B", "C"})
	require.Len(t, routes, 2)
	assert.Equal(t, []string{"A", "B"}, routes[0].Stations)
	assert.Equal(t, []string{"C", "B", "A"}, routes[1].Stations)
}

func TestTransferAnnotationAtHub(t *testing.T) {
	b := transferLayout(t)
	raw := routing.Build(b)
	routes := routing.DiscoverRoutes(raw, []string{"A", "T", "B", "C"})
	g := routing.Annotate(raw, routes, []string{"T"})
	require.NoError(t, g.Validate())

	hub := g.StationIndex["T"]
	kinds := map[world.GridPos]routing.EdgeKind{}
	for _, e := range g.Edges[hub] {
		kinds[e.To] = e.Kind
	}
	assert.Equal(t, routing.EdgeWalk, kinds[world.GridPos{X: 5, Y: 6}])
	assert.Equal(t, routing.EdgeTransfer, kinds[world.GridPos{X: 6, Y: 7}])
	assert.Equal(t, routing.EdgeTransfer, kinds[world.GridPos{X: 5, Y: 8}])

	for _, dest := range []string{"B", "C"} {
		path, err := routing.FindOptimalPath(g, "A", dest)
		require.NoError(t, err)
		assert.LessOrEqual(t, path.TransferEdges(), 1, dest)
	}

	// Without a hub nothing becomes a transfer.
	plain := routing.Annotate(raw, routes, nil)
	for _, es := range plain.Edges {
		for _, e := range es {
			assert.NotEqual(t, routing.EdgeTransfer, e.Kind)
		}
	}
	e, ok := plain.Edge(world.GridPos{X: 2, Y: 2}, world.GridPos{X: 3, Y: 2})
	require.True(t, ok)
	assert.Equal(t, "route_1", e.RouteID)
}
