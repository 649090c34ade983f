package analyzer

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kagsteiner/GreatestBGHits/internal/board"
	"github.com/kagsteiner/GreatestBGHits/internal/gnubg"
	"github.com/kagsteiner/GreatestBGHits/internal/move"
	"github.com/kagsteiner/GreatestBGHits/internal/transcript"
)

type fakeEngine struct {
	resp gnubg.Response
	err  error
}

func (f *fakeEngine) Analyze(ctx context.Context, req gnubg.Request) (gnubg.Response, error) {
	return f.resp, f.err
}

func eq(v float64) *float64 { return &v }

func candidate(moveText string, equity float64) gnubg.Candidate {
	return gnubg.Candidate{MoveText: moveText, Parts: move.ExpandEngineMoveText(moveText), Equity: eq(equity)}
}

// Seed 4: threshold 0.08, user plays the 9th-ranked move (index 8).
func seedCandidates() []gnubg.Candidate {
	return []gnubg.Candidate{
		candidate("8/3 6/3", 0.087),
		candidate("8/3 6/1", 0.05),
		candidate("8/3 24/21", 0.02),
		candidate("13/8 8/5", -0.01),
		candidate("13/8 6/3", -0.05),
		candidate("24/21 13/8", -0.08),
		candidate("24/18 13/11", -0.12),
		candidate("13/11 13/8", -0.18),
		candidate("8/3 8/5", -0.29),
		candidate("6/3 6/1", -0.35),
		candidate("24/18 24/21", -0.40),
	}
}

func oneGameMatch(dice board.Dice, parts []board.Part) *transcript.Match {
	return &transcript.Match{
		Games: []transcript.Game{
			{
				Number: 1, Player1: "Alice", Player2: "Bob",
				Plies: []transcript.Ply{
					{Number: 1, P1: transcript.HalfPly{Kind: transcript.KindMove, Dice: dice, Parts: parts}, P2: transcript.HalfPly{Kind: transcript.KindNoMove}},
				},
			},
		},
	}
}

func TestAnalyzeMatchDetectsMistake(t *testing.T) {
	played := move.ParseTranscriptTokens("8/3 8/5")
	m := oneGameMatch(board.Dice{D1: 5, D2: 3}, played)

	eng := &fakeEngine{resp: gnubg.Response{EngineAvailable: true, Candidates: seedCandidates()}}
	a := New(eng)
	a.RandReader = bytes.NewReader(make([]byte, 64)) // deterministic (all-zero) sampling

	records, err := a.AnalyzeMatch(context.Background(), m, Options{Threshold: 0.08})
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "move", rec.Type)
	assert.InDelta(t, 0.377, rec.Context.EquityDiff, 1e-9)
	assert.Equal(t, 9, rec.User.Rank)
	require.NotNil(t, rec.HigherSample)
	require.NotNil(t, rec.LowerSample)
}

func TestAnalyzeMatchSkipsWhenUnderThreshold(t *testing.T) {
	played := move.ParseTranscriptTokens("8/3 6/1")
	m := oneGameMatch(board.Dice{D1: 5, D2: 3}, played)

	eng := &fakeEngine{resp: gnubg.Response{EngineAvailable: true, Candidates: seedCandidates()}}
	a := New(eng)

	records, err := a.AnalyzeMatch(context.Background(), m, Options{Threshold: 0.08})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestAnalyzeMatchSkipsWhenEngineUnavailable(t *testing.T) {
	played := move.ParseTranscriptTokens("8/3 8/5")
	m := oneGameMatch(board.Dice{D1: 5, D2: 3}, played)

	eng := &fakeEngine{resp: gnubg.Response{EngineAvailable: false}}
	a := New(eng)

	records, err := a.AnalyzeMatch(context.Background(), m, Options{Threshold: 0.08})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestAnalyzeMatchSkipsNullDice(t *testing.T) {
	m := &transcript.Match{Games: []transcript.Game{{
		Number: 1,
		Plies: []transcript.Ply{
			{Number: 1, P1: transcript.HalfPly{Kind: transcript.KindMove}, P2: transcript.HalfPly{Kind: transcript.KindNoMove}},
		},
	}}}
	eng := &fakeEngine{resp: gnubg.Response{EngineAvailable: true, Candidates: seedCandidates()}}
	a := New(eng)

	records, err := a.AnalyzeMatch(context.Background(), m, Options{Threshold: 0.08})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestComputeIDDeterministic(t *testing.T) {
	id1 := ComputeID("abc:def", board.P1, 1, 2, "alice")
	id2 := ComputeID("abc:def", board.P1, 1, 2, "alice")
	id3 := ComputeID("abc:def", board.P1, 1, 2, "bob")
	assert.Equal(t, id1, id2)
	assert.NotEqual(t, id1, id3)
	assert.Len(t, id1, 16)
}
