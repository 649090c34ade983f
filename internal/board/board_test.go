package board

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStartingBoardInvariants(t *testing.T) {
	b := NewStartingBoard()

	for _, p := range [2]Player{P1, P2} {
		assert.Equal(t, 15, b.CheckerSum(p), "player %s checker sum", p)
	}

	wantLayout := map[int]int{24: 2, 13: 5, 8: 3, 6: 5}
	for _, p := range [2]Player{P1, P2} {
		for pt, n := range wantLayout {
			assert.Equalf(t, n, b.Checkers[p][pt], "player %s point %d", p, pt)
		}
	}

	assert.Equal(t, P1, b.Turn)
	assert.Equal(t, 1, b.CubeValue)
	assert.Equal(t, CubeCenter, b.CubeOwner)
}

func TestApplyMovePartsBasic(t *testing.T) {
	b := NewStartingBoard()
	b.ApplyMoveParts(P1, []Part{{From: 24, To: 18}})

	require.Equal(t, 1, b.Checkers[P1][24])
	require.Equal(t, 1, b.Checkers[P1][18])
	assert.Equal(t, 15, b.CheckerSum(P1))
}

func TestApplyMovePartsHit(t *testing.T) {
	b := &Board{CubeValue: 1, CubeOwner: CubeCenter, Turn: P1}
	b.Checkers[P1][24] = 1
	b.Checkers[P1][23] = 14
	b.Checkers[P2][18] = 1
	b.Checkers[P2][1] = 14

	b.ApplyMoveParts(P1, []Part{{From: 24, To: 18, Hit: true}})

	assert.Equal(t, 1, b.Checkers[P1][18])
	assert.Equal(t, 0, b.Checkers[P2][18], "hit checker should be removed from the point")
	assert.Equal(t, 1, b.Checkers[P2][Bar], "hit checker should land on the bar")
	assert.Equal(t, 15, b.CheckerSum(P1))
	assert.Equal(t, 15, b.CheckerSum(P2))
}

func TestApplyMovePartsSkipsEmptySourceAndOutOfRange(t *testing.T) {
	b := NewStartingBoard()
	before := b.Checkers

	b.ApplyMoveParts(P1, []Part{
		{From: 1, To: 2},   // empty source, skipped
		{From: 30, To: 5},  // out-of-range source, skipped
		{From: 24, To: 99}, // out-of-range destination, skipped
	})

	assert.Equal(t, before, b.Checkers, "board must be unchanged after only-invalid move parts")
}

func TestApplyMovePartsSequentialDependency(t *testing.T) {
	b := NewStartingBoard()
	b.Checkers[P1][Bar] = 1
	b.Checkers[P1][24] = 1 // drop one so the sum stays 15

	b.ApplyMoveParts(P1, []Part{
		{From: Bar, To: 22},
		{From: 22, To: 17},
	})

	assert.Equal(t, 0, b.Checkers[P1][Bar])
	assert.Equal(t, 1, b.Checkers[P1][17])
	assert.Equal(t, 15, b.CheckerSum(P1))
}

func TestDiceIsSet(t *testing.T) {
	cases := []struct {
		name string
		d    Dice
		want bool
	}{
		{"unset", Dice{0, 0}, false},
		{"half set", Dice{3, 0}, false},
		{"set", Dice{3, 4}, true},
		{"double", Dice{6, 6}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, c.d.IsSet())
		})
	}
}

func TestDiceIsDouble(t *testing.T) {
	assert.True(t, Dice{5, 5}.IsDouble())
	assert.False(t, Dice{5, 4}.IsDouble())
	assert.False(t, Dice{0, 0}.IsDouble())
}
