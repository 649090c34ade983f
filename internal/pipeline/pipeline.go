// Package pipeline wires the crawl client, transcript parser, analyzer,
// and quiz store into the crawl-and-analyze job that the crawl queue
// (internal/queue) runs one at a time.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kagsteiner/GreatestBGHits/internal/analyzer"
	"github.com/kagsteiner/GreatestBGHits/internal/crawler"
	"github.com/kagsteiner/GreatestBGHits/internal/queue"
	"github.com/kagsteiner/GreatestBGHits/internal/quizstore"
	"github.com/kagsteiner/GreatestBGHits/internal/transcript"
)

// Crawler is the subset of crawler.Client the pipeline depends on.
type Crawler interface {
	Login(ctx context.Context, username, password string) error
	ListFinished(ctx context.Context, userID string, days int) ([]crawler.MatchRef, error)
	Download(ctx context.Context, url string) (string, error)
}

// Pipeline runs one crawl-and-analyze job: log in, list finished matches,
// then download, parse, and analyze each one not already recorded.
type Pipeline struct {
	Store     *quizstore.Store
	Analyzer  *analyzer.Analyzer
	Crawler   Crawler
	Threshold float64
	Log       *slog.Logger
}

// New returns a Pipeline.
func New(store *quizstore.Store, az *analyzer.Analyzer, cr Crawler, threshold float64, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{Store: store, Analyzer: az, Crawler: cr, Threshold: threshold, Log: log}
}

// Run executes one crawl job, matching queue.Runner's signature so a
// Pipeline can be handed directly to queue.New.
func (p *Pipeline) Run(payload queue.Payload, onProgress func(queue.ProgressEvent)) (queue.DoneEvent, error) {
	ctx := context.Background()
	username := quizstore.NormalizeUsername(payload.StorageKey)

	onProgress(queue.ProgressEvent{Phase: "login_and_list"})
	if err := p.Crawler.Login(ctx, payload.Credentials.Username, payload.Credentials.Password); err != nil {
		return queue.DoneEvent{}, fmt.Errorf("pipeline: login: %w", err)
	}

	refs, err := p.Crawler.ListFinished(ctx, payload.Credentials.Username, payload.Days)
	if err != nil {
		return queue.DoneEvent{}, fmt.Errorf("pipeline: list finished matches: %w", err)
	}

	var pending []crawler.MatchRef
	for _, ref := range refs {
		seen, err := p.Store.HasAnalyzedMatch(ctx, username, ref.MatchID)
		if err != nil {
			return queue.DoneEvent{}, fmt.Errorf("pipeline: check analyzed match %s: %w", ref.MatchID, err)
		}
		if !seen {
			pending = append(pending, ref)
		}
	}

	onProgress(queue.ProgressEvent{Phase: "found_links", MatchesTotal: len(pending)})

	added := 0
	processed := 0
	for _, ref := range pending {
		if err := p.processMatch(ctx, username, ref, &added); err != nil {
			p.Log.Warn("crawl: match failed, skipping", "matchId", ref.MatchID, "err", err)
			processed++
			onProgress(queue.ProgressEvent{Phase: "processing", MatchesTotal: len(pending), ProcessedMatches: processed, QuizzesAdded: added})
			continue
		}
		processed++
		onProgress(queue.ProgressEvent{Phase: "processing", MatchesTotal: len(pending), ProcessedMatches: processed, QuizzesAdded: added})
	}

	onProgress(queue.ProgressEvent{Phase: "done", MatchesTotal: len(pending), ProcessedMatches: processed, QuizzesAdded: added})
	return queue.DoneEvent{Added: added, Total: added, MatchesTotal: len(pending)}, nil
}

// processMatch downloads, parses, and analyzes one match, checkpointing
// each emitted quiz record individually before marking the match analyzed
// so a crash mid-match does not lose already-saved records. Such a match is
// analyzed again on the next crawl; SaveQuizzes merges records by their
// content-addressed ids, so the rerun adds no duplicates.
func (p *Pipeline) processMatch(ctx context.Context, username string, ref crawler.MatchRef, added *int) error {
	text, err := p.Crawler.Download(ctx, ref.URL)
	if err != nil {
		return fmt.Errorf("download %s: %w", ref.MatchID, err)
	}

	match, err := transcript.Parse(text)
	if err != nil {
		return fmt.Errorf("parse %s: %w", ref.MatchID, err)
	}

	records, err := p.Analyzer.AnalyzeMatch(ctx, match, analyzer.Options{Threshold: p.Threshold})
	if err != nil {
		return fmt.Errorf("analyze %s: %w", ref.MatchID, err)
	}

	for _, rec := range records {
		n, err := p.Store.SaveQuizzes(ctx, username, quizstore.Incoming{Positions: []analyzer.Record{rec}})
		if err != nil {
			return fmt.Errorf("save quiz %s for match %s: %w", rec.ID, ref.MatchID, err)
		}
		*added += n
	}

	if err := p.Store.AddAnalyzedMatch(ctx, username, ref.MatchID); err != nil {
		return fmt.Errorf("mark %s analyzed: %w", ref.MatchID, err)
	}
	return nil
}
