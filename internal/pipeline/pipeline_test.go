package pipeline

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kagsteiner/GreatestBGHits/internal/analyzer"
	"github.com/kagsteiner/GreatestBGHits/internal/crawler"
	"github.com/kagsteiner/GreatestBGHits/internal/gnubg"
	"github.com/kagsteiner/GreatestBGHits/internal/move"
	"github.com/kagsteiner/GreatestBGHits/internal/queue"
	"github.com/kagsteiner/GreatestBGHits/internal/quizstore"
)

const transcriptText = "1 point match\n\nGame 1\nalice : 0                                  bob : 0\n" +
	"  1) 53: 13/8 13/10                     53: 13/8 13/10\n"

type fakeCrawler struct {
	refs      []crawler.MatchRef
	downloads map[string]string
	loginErr  error
}

func (f *fakeCrawler) Login(ctx context.Context, username, password string) error {
	return f.loginErr
}

func (f *fakeCrawler) ListFinished(ctx context.Context, userID string, days int) ([]crawler.MatchRef, error) {
	return f.refs, nil
}

func (f *fakeCrawler) Download(ctx context.Context, url string) (string, error) {
	return f.downloads[url], nil
}

type fakeEngine struct{}

func eq(v float64) *float64 { return &v }

func (fakeEngine) Analyze(ctx context.Context, req gnubg.Request) (gnubg.Response, error) {
	return gnubg.Response{
		EngineAvailable: true,
		Candidates: []gnubg.Candidate{
			{MoveText: "24/21 13/8", Parts: move.ExpandEngineMoveText("24/21 13/8"), Equity: eq(0.1)},
			{MoveText: "13/8 13/10", Parts: move.ExpandEngineMoveText("13/8 13/10"), Equity: eq(-0.2)},
		},
	}, nil
}

func newTestStore(t *testing.T) *quizstore.Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "pipeline-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	s, err := quizstore.Open(filepath.Join(dir, "quiz.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPipelineRunAddsQuizzesAndMarksAnalyzed(t *testing.T) {
	store := newTestStore(t)
	az := analyzer.New(fakeEngine{})
	cr := &fakeCrawler{
		refs:      []crawler.MatchRef{{MatchID: "m1", URL: "http://source/bg/export/m1"}},
		downloads: map[string]string{"http://source/bg/export/m1": transcriptText},
	}
	p := New(store, az, cr, 0.08, slog.Default())

	var progressPhases []string
	done, err := p.Run(queue.Payload{
		StorageKey:  "alice",
		Credentials: queue.Credentials{Username: "alice", Password: "secret"},
		Days:        7,
	}, func(ev queue.ProgressEvent) { progressPhases = append(progressPhases, ev.Phase) })

	require.NoError(t, err)
	assert.Equal(t, 1, done.MatchesTotal)
	assert.Contains(t, progressPhases, "login_and_list")
	assert.Contains(t, progressPhases, "done")

	seen, err := store.HasAnalyzedMatch(context.Background(), "alice", "m1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestPipelineRunTwiceIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	az := analyzer.New(fakeEngine{})
	cr := &fakeCrawler{
		refs:      []crawler.MatchRef{{MatchID: "m1", URL: "http://source/bg/export/m1"}},
		downloads: map[string]string{"http://source/bg/export/m1": transcriptText},
	}
	p := New(store, az, cr, 0.08, slog.Default())

	payload := queue.Payload{StorageKey: "alice", Credentials: queue.Credentials{Username: "alice", Password: "secret"}, Days: 7}
	first, err := p.Run(payload, func(queue.ProgressEvent) {})
	require.NoError(t, err)

	second, err := p.Run(payload, func(queue.ProgressEvent) {})
	require.NoError(t, err)

	assert.Equal(t, 0, second.MatchesTotal)
	assert.GreaterOrEqual(t, first.Added, 0)
	assert.Equal(t, 0, second.Added)
}
