// Package quizstore is the per-user persistent store of quiz positions and
// analyzed-match bookkeeping: an embedded SQLite file, one logical document
// pair per normalized username, written through squirrel-built queries
// inside short read-modify-write transactions.
package quizstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"github.com/kagsteiner/GreatestBGHits/internal/analyzer"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	username         TEXT PRIMARY KEY,
	engine_available INTEGER NOT NULL DEFAULT 1,
	threshold        REAL NOT NULL DEFAULT 0,
	updated_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS quiz_positions (
	username         TEXT NOT NULL REFERENCES users(username) ON DELETE CASCADE,
	id               TEXT NOT NULL,
	data             TEXT NOT NULL,
	play_count       INTEGER NOT NULL DEFAULT 0,
	correct_answers  INTEGER NOT NULL DEFAULT 0,
	equity_diff      REAL NOT NULL DEFAULT 0,
	user_player_name TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (username, id)
);

CREATE TABLE IF NOT EXISTS analyzed_matches (
	username TEXT NOT NULL REFERENCES users(username) ON DELETE CASCADE,
	match_id TEXT NOT NULL,
	PRIMARY KEY (username, match_id)
);
`

// Store is the per-user SQLite-backed quiz store.
type Store struct {
	db *sql.DB
	qb sq.StatementBuilderType
}

// Open opens (creating if absent) the SQLite database at path, enables WAL
// journaling and foreign-key enforcement, and ensures the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("quizstore: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: one writer to avoid SQLITE_BUSY under our own transactions

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("quizstore: %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("quizstore: create schema: %w", err)
	}

	return &Store{db: db, qb: sq.StatementBuilder.PlaceholderFormat(sq.Question)}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// NormalizeUsername trims and lowercases a username into its storage key.
func NormalizeUsername(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Quizzes is the `quizzes` document for one user.
type Quizzes struct {
	EngineAvailable bool
	Threshold       float64
	Positions       []analyzer.Record
}

// Incoming is what the analyzer/crawler pipeline writes on each checkpoint.
// EngineAvailable and Threshold are optional: when nil the existing stored
// value is kept instead of being overwritten.
type Incoming struct {
	EngineAvailable *bool
	Threshold       *float64
	Positions       []analyzer.Record
}

func (s *Store) ensureUser(ctx context.Context, tx *sql.Tx, username string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO users (username, engine_available, threshold, updated_at) VALUES (?, 1, 0, ?)
		 ON CONFLICT(username) DO NOTHING`,
		username, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

// SaveQuizzes merges incoming positions into the stored document inside a
// single transaction and returns the number of genuinely new positions
// added (positions whose id was not already present). An existing position
// with the same id is overwritten by the incoming record, except for its
// counters, which are merged: playCount becomes the larger of the two and
// correctAnswers the larger of the two, clamped to that playCount.
func (s *Store) SaveQuizzes(ctx context.Context, username string, incoming Incoming) (added int, err error) {
	username = NormalizeUsername(username)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("quizstore: begin: %w", err)
	}
	defer tx.Rollback()

	if err := s.ensureUser(ctx, tx, username); err != nil {
		return 0, fmt.Errorf("quizstore: ensure user: %w", err)
	}

	if incoming.EngineAvailable != nil || incoming.Threshold != nil {
		upd := s.qb.Update("users").Set("updated_at", time.Now().UTC().Format(time.RFC3339Nano)).Where(sq.Eq{"username": username})
		if incoming.EngineAvailable != nil {
			upd = upd.Set("engine_available", boolToInt(*incoming.EngineAvailable))
		}
		if incoming.Threshold != nil {
			upd = upd.Set("threshold", *incoming.Threshold)
		}
		if _, err := upd.RunWith(tx).ExecContext(ctx); err != nil {
			return 0, fmt.Errorf("quizstore: update user settings: %w", err)
		}
	}

	for _, pos := range incoming.Positions {
		row := tx.QueryRowContext(ctx,
			`SELECT play_count, correct_answers FROM quiz_positions WHERE username = ? AND id = ?`,
			username, pos.ID)
		var existingPlay, existingCorrect int
		switch err := row.Scan(&existingPlay, &existingCorrect); err {
		case sql.ErrNoRows:
			data, err := json.Marshal(pos)
			if err != nil {
				return 0, fmt.Errorf("quizstore: marshal position %s: %w", pos.ID, err)
			}
			_, err = s.qb.Insert("quiz_positions").
				Columns("username", "id", "data", "play_count", "correct_answers", "equity_diff", "user_player_name").
				Values(username, pos.ID, string(data), pos.Quiz.PlayCount, pos.Quiz.CorrectAnswers, pos.Context.EquityDiff, pos.User.Name).
				RunWith(tx).ExecContext(ctx)
			if err != nil {
				return 0, fmt.Errorf("quizstore: insert position %s: %w", pos.ID, err)
			}
			added++
		case nil:
			playCount := maxInt(existingPlay, pos.Quiz.PlayCount)
			correct := minInt(maxInt(existingCorrect, pos.Quiz.CorrectAnswers), playCount)
			pos.Quiz = analyzer.Counters{PlayCount: playCount, CorrectAnswers: correct}
			data, err := json.Marshal(pos)
			if err != nil {
				return 0, fmt.Errorf("quizstore: marshal position %s: %w", pos.ID, err)
			}
			_, err = s.qb.Update("quiz_positions").
				Set("data", string(data)).
				Set("play_count", playCount).
				Set("correct_answers", correct).
				Set("equity_diff", pos.Context.EquityDiff).
				Set("user_player_name", pos.User.Name).
				Where(sq.Eq{"username": username, "id": pos.ID}).
				RunWith(tx).ExecContext(ctx)
			if err != nil {
				return 0, fmt.Errorf("quizstore: update position %s: %w", pos.ID, err)
			}
		default:
			return 0, fmt.Errorf("quizstore: lookup position %s: %w", pos.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("quizstore: commit: %w", err)
	}
	return added, nil
}

// LoadQuizzes returns the full `quizzes` document for username.
func (s *Store) LoadQuizzes(ctx context.Context, username string) (Quizzes, error) {
	username = NormalizeUsername(username)

	var engineAvailable int
	var threshold float64
	err := s.qb.Select("engine_available", "threshold").From("users").Where(sq.Eq{"username": username}).
		RunWith(s.db).QueryRowContext(ctx).Scan(&engineAvailable, &threshold)
	if err == sql.ErrNoRows {
		return Quizzes{EngineAvailable: true}, nil
	}
	if err != nil {
		return Quizzes{}, fmt.Errorf("quizstore: load user: %w", err)
	}

	rows, err := s.qb.Select("data").From("quiz_positions").Where(sq.Eq{"username": username}).
		RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return Quizzes{}, fmt.Errorf("quizstore: load positions: %w", err)
	}
	defer rows.Close()

	var positions []analyzer.Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return Quizzes{}, fmt.Errorf("quizstore: scan position: %w", err)
		}
		var rec analyzer.Record
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return Quizzes{}, fmt.Errorf("quizstore: unmarshal position: %w", err)
		}
		positions = append(positions, rec)
	}
	if err := rows.Err(); err != nil {
		return Quizzes{}, err
	}

	return Quizzes{EngineAvailable: engineAvailable != 0, Threshold: threshold, Positions: positions}, nil
}

// AddAnalyzedMatch unions matchID into the user's analyzed-matches set.
func (s *Store) AddAnalyzedMatch(ctx context.Context, username, matchID string) error {
	username = NormalizeUsername(username)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := s.ensureUser(ctx, tx, username); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO analyzed_matches (username, match_id) VALUES (?, ?) ON CONFLICT(username, match_id) DO NOTHING`,
		username, matchID); err != nil {
		return fmt.Errorf("quizstore: add analyzed match: %w", err)
	}
	return tx.Commit()
}

// HasAnalyzedMatch reports whether matchID is already in the user's
// analyzed-matches set.
func (s *Store) HasAnalyzedMatch(ctx context.Context, username, matchID string) (bool, error) {
	username = NormalizeUsername(username)
	var dummy int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM analyzed_matches WHERE username = ? AND match_id = ?`, username, matchID).Scan(&dummy)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RecordResult increments playCount (and, if wasCorrect, correctAnswers,
// clamped to playCount) for id. It returns (nil, nil) if id is not found.
func (s *Store) RecordResult(ctx context.Context, username, id string, wasCorrect bool) (*analyzer.Record, error) {
	username = NormalizeUsername(username)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var data string
	var playCount, correct int
	err = tx.QueryRowContext(ctx,
		`SELECT data, play_count, correct_answers FROM quiz_positions WHERE username = ? AND id = ?`,
		username, id).Scan(&data, &playCount, &correct)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("quizstore: lookup %s: %w", id, err)
	}

	playCount++
	if wasCorrect {
		correct = minInt(correct+1, playCount)
	}

	var rec analyzer.Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("quizstore: unmarshal %s: %w", id, err)
	}
	rec.Quiz = analyzer.Counters{PlayCount: playCount, CorrectAnswers: correct}
	newData, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("quizstore: marshal %s: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE quiz_positions SET data = ?, play_count = ?, correct_answers = ? WHERE username = ? AND id = ?`,
		string(newData), playCount, correct, username, id); err != nil {
		return nil, fmt.Errorf("quizstore: update %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetByID returns the quiz record with id, or (nil, nil) if not found.
func (s *Store) GetByID(ctx context.Context, username, id string) (*analyzer.Record, error) {
	username = NormalizeUsername(username)
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM quiz_positions WHERE username = ? AND id = ?`, username, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("quizstore: get %s: %w", id, err)
	}
	var rec analyzer.Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("quizstore: unmarshal %s: %w", id, err)
	}
	return &rec, nil
}

type scoredRow struct {
	rowid int64
	rec   analyzer.Record
	score float64
}

// NextQuiz selects the highest-priority quiz, optionally filtered to an
// exact `user.name`. Priority is equityDiff / (1 + 10*correctAnswers^2 +
// 2*playCount), so unseen, high-equity-loss positions surface first and
// positions already answered correctly several times sink to the bottom.
// Returns (nil, nil) if the filtered set is empty.
func (s *Store) NextQuiz(ctx context.Context, username, player string) (*analyzer.Record, error) {
	username = NormalizeUsername(username)

	q := s.qb.Select("rowid", "data", "play_count", "correct_answers", "equity_diff").
		From("quiz_positions").Where(sq.Eq{"username": username})
	if player != "" {
		q = q.Where(sq.Eq{"user_player_name": player})
	}
	rows, err := q.RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("quizstore: select for next quiz: %w", err)
	}
	defer rows.Close()

	var best *scoredRow
	for rows.Next() {
		var rowid int64
		var data string
		var playCount, correct int
		var diff float64
		if err := rows.Scan(&rowid, &data, &playCount, &correct, &diff); err != nil {
			return nil, err
		}
		score := diff / (1 + 10*float64(correct*correct) + 2*float64(playCount))
		if best == nil || score > best.score {
			var rec analyzer.Record
			if err := json.Unmarshal([]byte(data), &rec); err != nil {
				return nil, fmt.Errorf("quizstore: unmarshal candidate: %w", err)
			}
			best = &scoredRow{rowid: rowid, rec: rec, score: score}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if best == nil {
		return nil, nil
	}
	return &best.rec, nil
}

// Players returns the sorted, unique set of `user.name` values recorded
// for username.
func (s *Store) Players(ctx context.Context, username string) ([]string, error) {
	username = NormalizeUsername(username)
	rows, err := s.qb.Select("DISTINCT user_player_name").From("quiz_positions").
		Where(sq.Eq{"username": username}).OrderBy("user_player_name").RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if name != "" {
			names = append(names, name)
		}
	}
	return names, rows.Err()
}

// Stats is the summary returned by /getStatistics.
type Stats struct {
	TotalQuizzes  int
	TotalAttempts int
	TotalCorrect  int
	Worst         []analyzer.Record
}

// Statistics computes aggregate counters and the three lowest
// correctAnswers/playCount positions among those with playCount > 0
// (ties broken by higher playCount first).
func (s *Store) Statistics(ctx context.Context, username string) (Stats, error) {
	username = NormalizeUsername(username)
	rows, err := s.qb.Select("data", "play_count", "correct_answers").From("quiz_positions").
		Where(sq.Eq{"username": username}).RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()

	var stats Stats
	type worstCandidate struct {
		rec       analyzer.Record
		ratio     float64
		playCount int
	}
	var candidates []worstCandidate

	for rows.Next() {
		var data string
		var playCount, correct int
		if err := rows.Scan(&data, &playCount, &correct); err != nil {
			return Stats{}, err
		}
		stats.TotalQuizzes++
		stats.TotalAttempts += playCount
		stats.TotalCorrect += correct
		if playCount > 0 {
			var rec analyzer.Record
			if err := json.Unmarshal([]byte(data), &rec); err != nil {
				return Stats{}, err
			}
			candidates = append(candidates, worstCandidate{rec: rec, ratio: float64(correct) / float64(playCount), playCount: playCount})
		}
	}
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].ratio != candidates[j].ratio {
			return candidates[i].ratio < candidates[j].ratio
		}
		return candidates[i].playCount > candidates[j].playCount
	})
	for i := 0; i < len(candidates) && i < 3; i++ {
		stats.Worst = append(stats.Worst, candidates[i].rec)
	}
	return stats, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
