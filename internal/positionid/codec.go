// Package positionid implements the gnubg-style position ID and match ID
// codec: a bit-packed, base64-encoded pair that identifies a board position
// and its match context, used both as a content-addressable key and as the
// query input to the external analysis engine.
package positionid

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/kagsteiner/GreatestBGHits/internal/board"
)

const (
	positionIDBytes = 10
	matchIDBytes    = 9
)

// EncodePositionID encodes b's checker layout as a 14-character base64
// position ID: the side on roll first, the opponent second, each as points
// 1..24 then the bar in unary (n 1-bits, one 0-bit terminator).
func EncodePositionID(b *board.Board) string {
	w := &bitWriter{}
	roller := b.Turn
	opponent := roller.Opponent()
	for _, side := range [2]board.Player{roller, opponent} {
		for pt := 1; pt <= 24; pt++ {
			w.writeUnary(b.Checkers[side][pt])
		}
		w.writeUnary(b.Checkers[side][board.Bar])
	}
	w.padTo(positionIDBytes)
	return base64.RawStdEncoding.EncodeToString(w.buf[:positionIDBytes])
}

// DecodePositionCheckers decodes a position ID into two relative checker
// arrays: roller and opponent, indexed 1..24 for points and 25 for the bar.
// Slot 0 (borne off) is inferred so each side sums to 15. The caller must
// consult the match ID's roller bit before assigning these to P1/P2 — the
// position ID alone does not know which absolute player is on roll.
func DecodePositionCheckers(positionID string) (roller, opponent [26]int, err error) {
	raw, err := base64.RawStdEncoding.DecodeString(positionID)
	if err != nil {
		return roller, opponent, fmt.Errorf("decode position id %q: %w", positionID, err)
	}
	if len(raw) < positionIDBytes {
		return roller, opponent, fmt.Errorf("position id %q too short: got %d bytes, want %d", positionID, len(raw), positionIDBytes)
	}
	r := &bitReader{buf: raw}
	for pt := 1; pt <= 24; pt++ {
		roller[pt] = r.readUnary()
	}
	roller[board.Bar] = r.readUnary()
	for pt := 1; pt <= 24; pt++ {
		opponent[pt] = r.readUnary()
	}
	opponent[board.Bar] = r.readUnary()

	roller[board.Bearoff] = 15 - sumSlots(roller)
	opponent[board.Bearoff] = 15 - sumSlots(opponent)
	return roller, opponent, nil
}

func sumSlots(slots [26]int) int {
	sum := 0
	for i := 1; i <= 25; i++ {
		sum += slots[i]
	}
	return sum
}

func cubeOwnerBits(o board.CubeOwner) int {
	switch o {
	case board.CubeP1:
		return 0
	case board.CubeP2:
		return 1
	default:
		return 3
	}
}

func cubeOwnerFromBits(bits int) board.CubeOwner {
	switch bits {
	case 0:
		return board.CubeP1
	case 1:
		return board.CubeP2
	default:
		return board.CubeCenter
	}
}

func cubeExponent(cubeValue int) int {
	if cubeValue < 1 {
		cubeValue = 1
	}
	exp := 0
	for v := cubeValue; v > 1; v >>= 1 {
		exp++
	}
	if exp > 15 {
		exp = 15
	}
	return exp
}

func dieDigit(d int) int {
	if d < 0 || d > 6 {
		return 0
	}
	return d
}

// EncodeMatchID encodes b's match context (cube, roller, dice, score, match
// length) as a 12-character base64 match ID.
func EncodeMatchID(b *board.Board) string {
	w := &bitWriter{}
	w.writeBits(cubeExponent(b.CubeValue), 4)
	w.writeBits(cubeOwnerBits(b.CubeOwner), 2)
	w.writeBits(int(b.Turn), 1)
	w.writeBits(0, 1) // crawford flag, not tracked by this core
	w.writeBits(1, 3) // game state: in progress
	w.writeBits(int(b.Turn), 1)
	w.writeBits(0, 1) // double offered
	w.writeBits(0, 2) // resignation
	w.writeBits(dieDigit(b.Dice.D1), 3)
	w.writeBits(dieDigit(b.Dice.D2), 3)
	w.writeBits(b.MatchLength, 15)
	w.writeBits(b.Score[board.P1], 15)
	w.writeBits(b.Score[board.P2], 15)
	w.padTo(matchIDBytes)
	return base64.RawStdEncoding.EncodeToString(w.buf[:matchIDBytes])
}

// MatchFields is the decoded content of a match ID.
type MatchFields struct {
	CubeValue   int
	CubeOwner   board.CubeOwner
	Roller      board.Player
	Die1, Die2  int
	MatchLength int
	Score       [2]int
}

// DecodeMatchID decodes a 12-character base64 match ID.
func DecodeMatchID(matchID string) (MatchFields, error) {
	raw, err := base64.RawStdEncoding.DecodeString(matchID)
	if err != nil {
		return MatchFields{}, fmt.Errorf("decode match id %q: %w", matchID, err)
	}
	if len(raw) < matchIDBytes {
		return MatchFields{}, fmt.Errorf("match id %q too short: got %d bytes, want %d", matchID, len(raw), matchIDBytes)
	}
	r := &bitReader{buf: raw}
	cubeExp := r.readBits(4)
	cubeOwner := r.readBits(2)
	rollerBit := r.readBits(1)
	r.readBits(1) // crawford flag
	r.readBits(3) // game state
	r.readBits(1) // decision owner
	r.readBits(1) // double offered
	r.readBits(2) // resignation
	d1 := r.readBits(3)
	d2 := r.readBits(3)
	matchLength := r.readBits(15)
	score1 := r.readBits(15)
	score2 := r.readBits(15)

	roller := board.P1
	if rollerBit == 1 {
		roller = board.P2
	}

	return MatchFields{
		CubeValue:   1 << uint(cubeExp),
		CubeOwner:   cubeOwnerFromBits(cubeOwner),
		Roller:      roller,
		Die1:        d1,
		Die2:        d2,
		MatchLength: matchLength,
		Score:       [2]int{score1, score2},
	}, nil
}

// ToGnuID returns the concatenated "positionId:matchId" for b.
func ToGnuID(b *board.Board) string {
	return EncodePositionID(b) + ":" + EncodeMatchID(b)
}

// SplitGnuID splits a "positionId:matchId" string into its two parts.
func SplitGnuID(gnuID string) (positionID, matchID string, err error) {
	parts := strings.SplitN(gnuID, ":", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("malformed gnu id %q: want positionId:matchId", gnuID)
	}
	return parts[0], parts[1], nil
}

// DecodeGnuID decodes a full "positionId:matchId" string into a Board. The
// match ID's roller bit is read first and used to assign the position ID's
// two relative checker arrays to the correct absolute player.
func DecodeGnuID(gnuID string) (*board.Board, error) {
	positionID, matchID, err := SplitGnuID(gnuID)
	if err != nil {
		return nil, err
	}
	m, err := DecodeMatchID(matchID)
	if err != nil {
		return nil, err
	}
	rollerSlots, opponentSlots, err := DecodePositionCheckers(positionID)
	if err != nil {
		return nil, err
	}

	b := &board.Board{
		CubeValue:   m.CubeValue,
		CubeOwner:   m.CubeOwner,
		Turn:        m.Roller,
		Dice:        board.Dice{D1: m.Die1, D2: m.Die2},
		MatchLength: m.MatchLength,
		Score:       m.Score,
	}
	b.Checkers[m.Roller] = rollerSlots
	b.Checkers[m.Roller.Opponent()] = opponentSlots
	return b, nil
}
