package routing_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/talgya/gridtransit/internal/board"
	"github.com/talgya/gridtransit/internal/segment"
	"github.com/talgya/gridtransit/internal/world"
)

type piece struct {
	x, y int
	typ  segment.Type
	rot  int
}

type stop struct {
	name string
	x, y int
	kind world.StationKind
}

func buildBoard(t *testing.T, w, h int, stops []stop, pieces []piece) *board.Board {
	t.Helper()
	m := world.NewMap(w, h)
	for _, s := range stops {
		require.NoError(t, m.AddStation(&world.Station{Name: s.name, Pos: world.GridPos{X: s.x, Y: s.y}, Kind: s.kind}))
	}
	stock := make(map[segment.Type]int)
	for _, p := range pieces {
		stock[p.typ]++
	}
	b := board.New(m, stock)
	for _, p := range pieces {
		_, err := b.Place(world.GridPos{X: p.x, Y: p.y}, p.typ, p.rot)
		require.NoError(t, err)
	}
	return b
}

func straightRow(y, from, to int) []piece {
	var out []piece
	for x := from; x <= to; x++ {
		out = append(out, piece{x, y, segment.Straight, 0})
	}
	return out
}

func straightCol(x, from, to int) []piece {
	var out []piece
	for y := from; y <= to; y++ {
		out = append(out, piece{x, y, segment.Straight, 90})
	}
	return out
}

// transferLayout wires A to the hub and B to C through the hub.
//
//	A(1,2)─(2..4,2)─┐(5,2)          ┌(9,2)─B(10,2)
//	                │(5,3..6)        │(9,3..6)
//	                T(5,7)─(6..8,7)─┘(9,7)
//	                │(5,8)
//	                └(5,9)─(6..9,9)─┘(10,9)
//	                                 C(10,8)
func transferLayout(t *testing.T) *board.Board {
	stops := []stop{
		{"A", 1, 2, world.Terminal},
		{"T", 5, 7, world.TransferHub},
		{"B", 10, 2, world.Terminal},
		{"C", 10, 8, world.Terminal},
	}
	var pieces []piece
	pieces = append(pieces, straightRow(2, 2, 4)...)
	pieces = append(pieces, piece{5, 2, segment.Curve, 270})
	pieces = append(pieces, straightCol(5, 3, 6)...)

	pieces = append(pieces, straightRow(7, 6, 8)...)
	pieces = append(pieces, piece{9, 7, segment.Curve, 0})
	pieces = append(pieces, straightCol(9, 3, 6)...)
	pieces = append(pieces, piece{9, 2, segment.Curve, 180})

	pieces = append(pieces, piece{5, 8, segment.Straight, 90})
	pieces = append(pieces, piece{5, 9, segment.Curve, 90})
	pieces = append(pieces, straightRow(9, 6, 9)...)
	pieces = append(pieces, piece{10, 9, segment.Curve, 0})
	return buildBoard(t, 12, 10, stops, pieces)
}
