// Package analyzer walks every ply of a parsed match, asks the engine
// driver to rank the legal moves at each decision, and turns the plies
// where the player fell short of the engine's best move by more than a
// threshold into quiz records.
package analyzer

import (
	"context"
	"crypto/rand"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
	"sort"
	"strings"

	"github.com/kagsteiner/GreatestBGHits/internal/board"
	"github.com/kagsteiner/GreatestBGHits/internal/gnubg"
	"github.com/kagsteiner/GreatestBGHits/internal/move"
	"github.com/kagsteiner/GreatestBGHits/internal/positionid"
	"github.com/kagsteiner/GreatestBGHits/internal/transcript"
)

// Engine is the subset of gnubg.Driver the analyzer depends on.
type Engine interface {
	Analyze(ctx context.Context, req gnubg.Request) (gnubg.Response, error)
}

// MoveEquity is a single move/equity pair, used for the best move and for
// the sampled distractors.
type MoveEquity struct {
	Move   string  `json:"move"`
	Equity float64 `json:"equity"`
}

// UserMoveEquity is the played move, its equity (when the engine supplied
// one), and its 1-indexed rank in the engine's candidate ranking.
type UserMoveEquity struct {
	Name   string  `json:"name"`
	Move   string  `json:"move"`
	Equity float64 `json:"equity"`
	Rank   int     `json:"rank"`
}

// Context records where in the match a quiz record came from.
type Context struct {
	GameNumber int    `json:"gameNumber"`
	PlyIndex   int    `json:"plyIndex"`
	Player     string `json:"player"`
	Dice       [2]int `json:"dice"`
	EquityDiff float64 `json:"equityDiff"`
}

// Counters tracks how often a quiz has been played and answered correctly.
type Counters struct {
	PlayCount      int `json:"playCount"`
	CorrectAnswers int `json:"correctAnswers"`
}

// Record is one content-addressed quiz: a mistake worth asking about again.
type Record struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	GnuID        string          `json:"gnuId"`
	Best         MoveEquity      `json:"best"`
	User         UserMoveEquity  `json:"user"`
	HigherSample *MoveEquity     `json:"higherSample,omitempty"`
	LowerSample  *MoveEquity     `json:"lowerSample,omitempty"`
	Context      Context         `json:"context"`
	Quiz         Counters        `json:"quiz"`
}

// Options configures one analysis pass.
type Options struct {
	// UserName, when non-empty, restricts analysis to half-plies played by
	// the transcript participant with this name (case-insensitive,
	// trimmed). Empty analyzes both players' moves.
	UserName string
	// Threshold is the minimum equity lag (best - played) for a ply to
	// become a quiz record.
	Threshold float64
}

// Analyzer drives per-ply engine analysis over a parsed match.
type Analyzer struct {
	engine Engine
	// RandReader sources the distractor sampling; defaults to
	// crypto/rand.Reader.
	RandReader io.Reader
}

// New returns an Analyzer backed by engine.
func New(engine Engine) *Analyzer {
	return &Analyzer{engine: engine, RandReader: rand.Reader}
}

// AnalyzeMatch walks every game and ply of m and returns the quiz records
// for every mistake that reaches opts.Threshold, sorted by EquityDiff
// descending (ties broken by insertion order).
func (a *Analyzer) AnalyzeMatch(ctx context.Context, m *transcript.Match, opts Options) ([]Record, error) {
	var records []Record

	for gi := range m.Games {
		g := &m.Games[gi]
		b := board.NewStartingBoard()
		b.MatchLength = m.Length
		b.Score = g.StartScore

		for plyIdx := range g.Plies {
			ply := &g.Plies[plyIdx]
			for _, side := range [2]board.Player{board.P1, board.P2} {
				half := ply.P1
				if side == board.P2 {
					half = ply.P2
				}
				if half.Kind != transcript.KindMove {
					continue
				}

				rec, err := a.analyzeHalfPly(ctx, b, g, plyIdx, side, half, opts)
				if err != nil {
					return nil, err
				}
				if rec != nil {
					records = append(records, *rec)
				}

				b.Turn = side
				b.Dice = half.Dice
				b.ApplyMoveParts(side, half.Parts)
			}
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Context.EquityDiff > records[j].Context.EquityDiff
	})
	return records, nil
}

func playerName(g *transcript.Game, p board.Player) string {
	if p == board.P1 {
		return g.Player1
	}
	return g.Player2
}

func (a *Analyzer) analyzeHalfPly(ctx context.Context, b *board.Board, g *transcript.Game, plyIdx int, player board.Player, half transcript.HalfPly, opts Options) (*Record, error) {
	if !half.Dice.IsSet() {
		return nil, nil
	}
	name := playerName(g, player)
	if opts.UserName != "" && !strings.EqualFold(strings.TrimSpace(name), strings.TrimSpace(opts.UserName)) {
		return nil, nil
	}

	b.Turn = player
	b.Dice = half.Dice
	positionID := positionid.EncodePositionID(b)
	matchID := positionid.EncodeMatchID(b)
	gnuID := positionID + ":" + matchID

	dice := [2]int{half.Dice.D1, half.Dice.D2}
	resp, err := a.engine.Analyze(ctx, gnubg.Request{
		MatchID:    matchID,
		PositionID: positionID,
		Dice:       &dice,
	})
	if err != nil {
		return nil, fmt.Errorf("analyze ply %d: %w", plyIdx, err)
	}
	if !resp.EngineAvailable || len(resp.Candidates) == 0 {
		return nil, nil
	}

	rankIdx, userEquity, found := findRank(resp.Candidates, half.Parts)
	if !found {
		return nil, nil
	}
	best := resp.Candidates[0]
	if best.Equity == nil || userEquity == nil {
		return nil, nil
	}

	diff := *best.Equity - *userEquity
	if diff < opts.Threshold {
		return nil, nil
	}

	recordUserName := opts.UserName
	if recordUserName == "" {
		recordUserName = name
	}

	rec := &Record{
		Type:  "move",
		GnuID: gnuID,
		Best:  MoveEquity{Move: best.MoveText, Equity: *best.Equity},
		User: UserMoveEquity{
			Name:   recordUserName,
			Move:   formatParts(half.Parts),
			Equity: *userEquity,
			Rank:   rankIdx + 1,
		},
		Context: Context{
			GameNumber: g.Number,
			PlyIndex:   plyIdx,
			Player:     player.String(),
			Dice:       dice,
			EquityDiff: diff,
		},
	}
	rec.HigherSample = a.sampleHigher(resp.Candidates, rankIdx)
	rec.LowerSample = a.sampleLower(resp.Candidates, rankIdx)
	rec.ID = ComputeID(gnuID, player, g.Number, plyIdx, recordUserName)
	return rec, nil
}

func formatParts(parts []board.Part) string {
	strs := make([]string, len(parts))
	for i, p := range parts {
		strs[i] = p.String()
	}
	return strings.Join(strs, " ")
}

// findRank locates played within candidates under canonical move
// equivalence and returns its 0-indexed position and equity.
func findRank(candidates []gnubg.Candidate, played []board.Part) (rankIdx int, equity *float64, ok bool) {
	for i, c := range candidates {
		if move.Equal(c.Parts, played) {
			return i, c.Equity, true
		}
	}
	return 0, nil, false
}

func moveEquityFromCandidate(c gnubg.Candidate) *MoveEquity {
	eq := 0.0
	if c.Equity != nil {
		eq = *c.Equity
	}
	return &MoveEquity{Move: c.MoveText, Equity: eq}
}

// sampleHigher picks the "higher" distractor. rankIdx is the played move's
// 0-indexed position in candidates. It returns nil when the played move is
// the best one. When the played move is second-best (rankIdx 1) it returns
// the third-ranked candidate (index 2), or nil if there is none. Otherwise it
// picks a random candidate from indices 0..rankIdx-1, all ranked better than
// the played move.
func (a *Analyzer) sampleHigher(candidates []gnubg.Candidate, rankIdx int) *MoveEquity {
	if rankIdx == 0 {
		return nil
	}
	if rankIdx == 1 {
		if len(candidates) > 2 {
			return moveEquityFromCandidate(candidates[2])
		}
		return nil
	}
	idx := a.randomIndex(0, rankIdx-1)
	return moveEquityFromCandidate(candidates[idx])
}

// sampleLower picks a random distractor ranked strictly worse than the
// played move.
func (a *Analyzer) sampleLower(candidates []gnubg.Candidate, rankIdx int) *MoveEquity {
	n := len(candidates)
	if rankIdx+1 >= n {
		return nil
	}
	hi := rankIdx + 2
	if hi > n-1 {
		hi = n - 1
	}
	idx := a.randomIndex(rankIdx+1, hi)
	return moveEquityFromCandidate(candidates[idx])
}

func (a *Analyzer) randomIndex(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	reader := a.RandReader
	if reader == nil {
		reader = rand.Reader
	}
	n := int64(hi-lo) + 1
	v, err := rand.Int(reader, big.NewInt(n))
	if err != nil {
		return lo
	}
	return lo + int(v.Int64())
}

// ComputeID derives the stable content-addressed quiz id:
// truncate(SHA1(gnuId|player|gameNumber|plyIndex|userName), 16 hex chars).
func ComputeID(gnuID string, player board.Player, gameNumber, plyIndex int, userName string) string {
	h := sha1.New()
	fmt.Fprintf(h, "%s|%s|%d|%d|%s", gnuID, player.String(), gameNumber, plyIndex, userName)
	return hex.EncodeToString(h.Sum(nil))[:16]
}
