// Package transcript recognizes the published match-transcript grammar:
// games, plies, dice, move tokens, and the double/take/drop/win/pass
// half-ply vocabulary, in either of the two bar/off notation dialects.
package transcript

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/kagsteiner/GreatestBGHits/internal/board"
	"github.com/kagsteiner/GreatestBGHits/internal/move"
)

// ErrUnparseable is returned for the whole transcript on structural failure.
var ErrUnparseable = errors.New("transcript: unparseable")

// HalfPlyKind tags the variant a HalfPly carries.
type HalfPlyKind int

const (
	KindMove HalfPlyKind = iota
	KindDouble
	KindTake
	KindDrop
	KindWin
	KindNoMove
	KindUnknown
)

// HalfPly is one player's half of a numbered ply: a tagged variant over
// move/double/take/drop/win/no_move/unknown.
type HalfPly struct {
	Kind      HalfPlyKind
	Dice      board.Dice   // set for KindMove
	Parts     []board.Part // set for KindMove; empty on a forced pass
	CubeValue int          // set for KindDouble
	Points    int          // set for KindWin
	Text      string       // set for KindUnknown
}

// Ply is a numbered pair of half-plies, one per player.
type Ply struct {
	Number int
	P1, P2 HalfPly
}

// GameResult is the terminal outcome recorded for a finished game.
type GameResult struct {
	WinnerText string // raw winner name/text as it appeared in the transcript
	Points     int
	WonMatch bool
}

// Game is one game within a match: header, starting score, plies, result.
type Game struct {
	Number      int
	Player1     string
	Player2     string
	StartScore  [2]int
	HasScore    bool // false when the header lacked a matching score line
	Plies       []Ply
	Result      GameResult
}

// Match is the fully parsed transcript: optional match length and an
// ordered list of games.
type Match struct {
	Length int // 0 when the "N point match" header line was absent
	Games  []Game
}

var (
	matchLengthRe = regexp.MustCompile(`^(\d+)\s+point\s+match`)
	gameHeaderRe  = regexp.MustCompile(`^Game\s+(\d+)$`)
	scoreLineRe   = regexp.MustCompile(`^(.+?)\s*:\s*(\d+)\s{2,}(.+?)\s*:\s*(\d+)\s*$`)
	plyLineRe     = regexp.MustCompile(`^(\d+)\)\s*(.*)$`)
	colSplitRe    = regexp.MustCompile(`\s{2,}`)
	doubleRe      = regexp.MustCompile(`^Doubles\s*=>\s*(\d+)$`)
	winRe         = regexp.MustCompile(`^Wins\s+(\d+)\s+points?$`)
	diceMoveRe    = regexp.MustCompile(`^([1-6])([1-6]):\s*(.*)$`)
	terminalRe    = regexp.MustCompile(`^(.*?)\s+Wins\s+(\d+)\s+points?`)
)

// Parse tokenizes and structures a match transcript. The only error it
// returns is ErrUnparseable, covering the whole transcript.
func Parse(text string) (*Match, error) {
	lines := strings.Split(text, "\n")
	m := &Match{}
	idx := 0

	for idx < len(lines) {
		line := strings.TrimSpace(lines[idx])
		idx++
		if line == "" {
			continue
		}
		if mm := matchLengthRe.FindStringSubmatch(line); mm != nil {
			n, _ := strconv.Atoi(mm[1])
			m.Length = n
		} else {
			idx--
		}
		break
	}

	var cur *Game
	for idx < len(lines) {
		line := strings.TrimSpace(lines[idx])
		idx++
		if line == "" {
			continue
		}

		if gm := gameHeaderRe.FindStringSubmatch(line); gm != nil {
			n, _ := strconv.Atoi(gm[1])
			m.Games = append(m.Games, Game{Number: n})
			cur = &m.Games[len(m.Games)-1]
			idx = consumeScoreLine(lines, idx, cur)
			continue
		}

		if pm := plyLineRe.FindStringSubmatch(line); pm != nil {
			if cur == nil {
				m.Games = append(m.Games, Game{})
				cur = &m.Games[len(m.Games)-1]
			}
			cur.Plies = append(cur.Plies, parsePlyLine(pm))
			continue
		}

		if strings.Contains(line, "Wins") && cur != nil {
			cur.Result = parseTerminal(line)
			continue
		}
	}

	if len(m.Games) == 0 {
		return nil, ErrUnparseable
	}
	return m, nil
}

// consumeScoreLine looks at the next non-empty line after a Game header; if
// it matches the score-line grammar it is consumed and applied to g,
// otherwise the scan position is left unchanged so the line is processed
// normally by the caller's loop. When a header lacks a matching score
// line, the game is left with null players and no start score.
func consumeScoreLine(lines []string, idx int, g *Game) int {
	for idx < len(lines) {
		next := strings.TrimSpace(lines[idx])
		if next == "" {
			idx++
			continue
		}
		if sm := scoreLineRe.FindStringSubmatch(next); sm != nil {
			s1, _ := strconv.Atoi(sm[2])
			s2, _ := strconv.Atoi(sm[4])
			g.Player1 = strings.TrimSpace(sm[1])
			g.Player2 = strings.TrimSpace(sm[3])
			g.StartScore = [2]int{s1, s2}
			g.HasScore = true
			return idx + 1
		}
		return idx
	}
	return idx
}

func parsePlyLine(pm []string) Ply {
	num, _ := strconv.Atoi(pm[1])
	cols := colSplitRe.Split(strings.TrimSpace(pm[2]), 2)
	p1 := parseHalfPly(cols[0])
	p2 := HalfPly{Kind: KindNoMove}
	if len(cols) > 1 {
		p2 = parseHalfPly(cols[1])
	}
	return Ply{Number: num, P1: p1, P2: p2}
}

// parseHalfPly recognizes one half-ply column. Action keywords
// (Doubles/Takes/Drops/Wins) are matched case-sensitively.
func parseHalfPly(col string) HalfPly {
	col = strings.TrimSpace(col)
	if col == "" {
		return HalfPly{Kind: KindNoMove}
	}
	if dm := doubleRe.FindStringSubmatch(col); dm != nil {
		v, _ := strconv.Atoi(dm[1])
		return HalfPly{Kind: KindDouble, CubeValue: v}
	}
	if col == "Takes" {
		return HalfPly{Kind: KindTake}
	}
	if col == "Drops" {
		return HalfPly{Kind: KindDrop}
	}
	if wm := winRe.FindStringSubmatch(col); wm != nil {
		p, _ := strconv.Atoi(wm[1])
		return HalfPly{Kind: KindWin, Points: p}
	}
	if dm := diceMoveRe.FindStringSubmatch(col); dm != nil {
		d1, _ := strconv.Atoi(dm[1])
		d2, _ := strconv.Atoi(dm[2])
		tokens := strings.TrimSpace(dm[3])
		var parts []board.Part
		if tokens != "" {
			parts = move.ParseTranscriptTokens(tokens)
		}
		return HalfPly{Kind: KindMove, Dice: board.Dice{D1: d1, D2: d2}, Parts: parts}
	}
	return HalfPly{Kind: KindUnknown, Text: col}
}

func parseTerminal(line string) GameResult {
	res := GameResult{WinnerText: line, WonMatch: strings.Contains(line, "and the match")}
	if tm := terminalRe.FindStringSubmatch(line); tm != nil {
		res.WinnerText = strings.TrimSpace(tm[1])
		if p, err := strconv.Atoi(tm[2]); err == nil {
			res.Points = p
		}
	}
	return res
}
