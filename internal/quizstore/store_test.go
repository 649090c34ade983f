package quizstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kagsteiner/GreatestBGHits/internal/analyzer"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "quizstore-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	s, err := Open(filepath.Join(dir, "quiz.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecord(id string, equityDiff float64, playCount, correct int) analyzer.Record {
	return analyzer.Record{
		ID:    id,
		Type:  "move",
		GnuID: "pos:match",
		Best:  analyzer.MoveEquity{Move: "8/5 6/5", Equity: 0.1},
		User:  analyzer.UserMoveEquity{Name: "alice", Move: "8/3 8/5", Equity: 0.1 - equityDiff, Rank: 9},
		Context: analyzer.Context{
			GameNumber: 1, PlyIndex: 0, Player: "P1", Dice: [2]int{5, 3}, EquityDiff: equityDiff,
		},
		Quiz: analyzer.Counters{PlayCount: playCount, CorrectAnswers: correct},
	}
}

func TestSaveQuizzesIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rec := sampleRecord("abc123", 0.3, 0, 0)
	added, err := s.SaveQuizzes(ctx, "Alice", Incoming{Positions: []analyzer.Record{rec}})
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	added, err = s.SaveQuizzes(ctx, "alice", Incoming{Positions: []analyzer.Record{rec}})
	require.NoError(t, err)
	assert.Equal(t, 0, added)

	loaded, err := s.LoadQuizzes(ctx, "ALICE ")
	require.NoError(t, err)
	assert.Len(t, loaded.Positions, 1)
}

func TestSaveQuizzesMergeCounters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.SaveQuizzes(ctx, "alice", Incoming{Positions: []analyzer.Record{sampleRecord("abc", 0.3, 2, 1)}})
	require.NoError(t, err)

	_, err = s.SaveQuizzes(ctx, "alice", Incoming{Positions: []analyzer.Record{sampleRecord("abc", 0.3, 1, 1)}})
	require.NoError(t, err)

	loaded, err := s.LoadQuizzes(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, loaded.Positions, 1)
	assert.Equal(t, 2, loaded.Positions[0].Quiz.PlayCount)
	assert.Equal(t, 1, loaded.Positions[0].Quiz.CorrectAnswers)
}

func TestRecordResultIncrementsAndClamps(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.SaveQuizzes(ctx, "alice", Incoming{Positions: []analyzer.Record{sampleRecord("abc", 0.3, 0, 0)}})
	require.NoError(t, err)

	rec, err := s.RecordResult(ctx, "alice", "abc", true)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.Quiz.PlayCount)
	assert.Equal(t, 1, rec.Quiz.CorrectAnswers)

	rec, err = s.RecordResult(ctx, "alice", "abc", false)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Quiz.PlayCount)
	assert.Equal(t, 1, rec.Quiz.CorrectAnswers)
}

func TestRecordResultMissingIsNoop(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	rec, err := s.RecordResult(ctx, "alice", "missing", true)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

// Seed 5: A{diff:0.3,play:0,correct:0} scores 0.30; B{diff:0.5,play:2,correct:2}
// scores 0.5/(1+40+4)=0.0111; NextQuiz returns A.
func TestNextQuizPriorityFormula(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a := sampleRecord("a", 0.3, 0, 0)
	b := sampleRecord("b", 0.5, 2, 2)
	_, err := s.SaveQuizzes(ctx, "alice", Incoming{Positions: []analyzer.Record{a, b}})
	require.NoError(t, err)

	next, err := s.NextQuiz(ctx, "alice", "")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "a", next.ID)
}

func TestNextQuizEmptyReturnsNil(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	next, err := s.NextQuiz(ctx, "alice", "")
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestAnalyzedMatchesUnion(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	has, err := s.HasAnalyzedMatch(ctx, "alice", "m1")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, s.AddAnalyzedMatch(ctx, "alice", "m1"))
	require.NoError(t, s.AddAnalyzedMatch(ctx, "alice", "m1"))

	has, err = s.HasAnalyzedMatch(ctx, "alice", "m1")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestStatisticsWorstThree(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	records := []analyzer.Record{
		sampleRecord("a", 0.1, 10, 1), // ratio 0.1
		sampleRecord("b", 0.2, 5, 4),  // ratio 0.8
		sampleRecord("c", 0.3, 4, 0),  // ratio 0
		sampleRecord("d", 0.4, 0, 0),  // excluded, playCount 0
	}
	_, err := s.SaveQuizzes(ctx, "alice", Incoming{Positions: records})
	require.NoError(t, err)

	stats, err := s.Statistics(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalQuizzes)
	assert.Equal(t, 19, stats.TotalAttempts)
	assert.Equal(t, 5, stats.TotalCorrect)
	require.Len(t, stats.Worst, 3)
	assert.Equal(t, "c", stats.Worst[0].ID)
	assert.Equal(t, "a", stats.Worst[1].ID)
	assert.Equal(t, "b", stats.Worst[2].ID)
}
