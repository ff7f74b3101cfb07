package segment_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/gridtransit/internal/segment"
	"github.com/talgya/gridtransit/internal/world"
)

var rotations = []int{0, 90, 180, 270}

func TestCosts(t *testing.T) {
	want := map[segment.Type]int{
		segment.Straight: 1, segment.Curve: 2, segment.TSplit: 3,
		segment.Cross: 4, segment.Bridge: 5, segment.Tunnel: 6,
	}
	for typ, cost := range want {
		assert.Equal(t, cost, typ.Cost(), typ.String())
	}
}

func TestOffsetCardinality(t *testing.T) {
	for _, typ := range segment.Types {
		base := segment.Offsets(typ, 0)
		for _, rot := range rotations {
			assert.Len(t, segment.Offsets(typ, rot), len(base), "%s@%d", typ, rot)
		}
		assert.ElementsMatch(t, base, segment.Offsets(typ, 360), "%s full turn", typ)
	}
}

func TestRotationComposesAdditively(t *testing.T) {
	for _, typ := range segment.Types {
		for _, a := range rotations {
			for _, b := range rotations {
				assert.ElementsMatch(t, segment.Offsets(typ, a+b), segment.Offsets(typ, (a+b)%360), "%s %d+%d", typ, a, b)
			}
		}
	}
}

func TestRotationCommutesWithOffsetRotation(t *testing.T) {
	for _, typ := range []segment.Type{segment.Curve, segment.TSplit} {
		for _, rot := range rotations {
			var rotated []world.Offset
			for _, o := range segment.Offsets(typ, 0) {
				rotated = append(rotated, o.Rotate(rot))
			}
			assert.ElementsMatch(t, rotated, segment.Offsets(typ, rot), "%s@%d", typ, rot)
		}
	}
}

func TestTSplitHasNoWestPortAtZero(t *testing.T) {
	offs := segment.Offsets(segment.TSplit, 0)
	assert.NotContains(t, offs, world.Offset{DX: -1, DY: 0})
	assert.ElementsMatch(t, []world.Offset{{DX: 0, DY: -1}, {DX: 0, DY: 1}, {DX: 1, DY: 0}}, offs)
}

func TestStraightLikeOrientation(t *testing.T) {
	for _, typ := range []segment.Type{segment.Straight, segment.Bridge, segment.Tunnel} {
		assert.ElementsMatch(t, []world.Offset{{DX: -1}, {DX: 1}}, segment.Offsets(typ, 180))
		assert.ElementsMatch(t, []world.Offset{{DY: -1}, {DY: 1}}, segment.Offsets(typ, 270))
	}
	assert.ElementsMatch(t, segment.Offsets(segment.Cross, 0), segment.Offsets(segment.Cross, 90))
}

func TestCurvePorts(t *testing.T) {
	assert.ElementsMatch(t, []world.Direction{world.West, world.North}, segment.Ports(segment.Curve, 0))
	assert.ElementsMatch(t, []world.Direction{world.North, world.East}, segment.Ports(segment.Curve, 90))
	assert.ElementsMatch(t, []world.Direction{world.East, world.South}, segment.Ports(segment.Curve, 180))
	assert.ElementsMatch(t, []world.Direction{world.South, world.West}, segment.Ports(segment.Curve, 270))
}

func TestRotationMattersForTSplit(t *testing.T) {
	pos := world.GridPos{X: 5, Y: 5}
	assert.False(t, segment.HasConnectionTo(pos, world.GridPos{X: 4, Y: 5}, segment.TSplit, 0))

	assert.True(t, segment.HasConnectionTo(pos, world.GridPos{X: 4, Y: 5}, segment.TSplit, 90))
	assert.True(t, segment.HasConnectionTo(pos, world.GridPos{X: 6, Y: 5}, segment.TSplit, 90))
	assert.True(t, segment.HasConnectionTo(pos, world.GridPos{X: 5, Y: 6}, segment.TSplit, 90))
	assert.False(t, segment.HasConnectionTo(pos, world.GridPos{X: 5, Y: 4}, segment.TSplit, 90))
}

func TestConnectionPositions(t *testing.T) {
	got := segment.ConnectionPositions(world.GridPos{X: 2, Y: 4}, segment.Straight, 0)
	assert.ElementsMatch(t, []world.GridPos{{X: 1, Y: 4}, {X: 3, Y: 4}}, got)
}

func TestPermittedOn(t *testing.T) {
	for _, typ := range segment.Types {
		assert.False(t, typ.PermittedOn(world.TerrainBuilding))
		assert.True(t, typ.PermittedOn(world.TerrainEmpty))
		assert.True(t, typ.PermittedOn(world.TerrainPark))
		assert.Equal(t, typ == segment.Bridge, typ.PermittedOn(world.TerrainWater))
		assert.Equal(t, typ == segment.Tunnel, typ.PermittedOn(world.TerrainMountain))
	}
}

func TestParse(t *testing.T) {
	for _, s := range []string{"t_split", "T-Split", "tsplit"} {
		typ, err := segment.Parse(s)
		require.NoError(t, err)
		assert.Equal(t, segment.TSplit, typ)
	}
	_, err := segment.Parse("roundabout")
	assert.Error(t, err)
}
