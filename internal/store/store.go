// Package store handles SQLite persistence.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/verte-zerg/lovefit/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// Store wraps SQLite access for runs, workouts and chat messages.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// a single connection serializes writers from the syncer goroutines
	db.SetMaxOpenConns(1)
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL,
			mode TEXT NOT NULL,
			catalog_path TEXT NOT NULL,
			elapsed_seconds INTEGER NOT NULL,
			final_index INTEGER NOT NULL,
			final_segment_id TEXT NOT NULL,
			reached_finale INTEGER NOT NULL,
			hr_min INTEGER NOT NULL,
			hr_max INTEGER NOT NULL,
			hr_avg REAL NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS run_choices (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			segment_id TEXT NOT NULL,
			segment_index INTEGER NOT NULL,
			option TEXT NOT NULL,
			elapsed_seconds INTEGER NOT NULL,
			PRIMARY KEY (run_id, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS workouts (
			id INTEGER PRIMARY KEY,
			type TEXT NOT NULL,
			distance REAL NOT NULL,
			duration REAL NOT NULL,
			ended_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			text TEXT NOT NULL,
			audio_url TEXT NOT NULL,
			is_user INTEGER NOT NULL,
			ts TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_ended_at ON runs(ended_at);`,
		`CREATE INDEX IF NOT EXISTS idx_workouts_ended_at ON workouts(ended_at);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_ts ON messages(user_id, ts);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertRun stores a finished run and the choices made during it.
func (s *Store) InsertRun(ctx context.Context, run model.RunStats, choices []model.RunChoice) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, ended_at, mode, catalog_path, elapsed_seconds, final_index, final_segment_id, reached_finale, hr_min, hr_max, hr_avg)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		formatTime(run.StartedAt),
		formatTime(run.EndedAt),
		run.Mode,
		run.CatalogPath,
		run.ElapsedSeconds,
		run.FinalIndex,
		run.FinalSegmentID,
		boolInt(run.ReachedFinale),
		run.HRMin,
		run.HRMax,
		run.HRAvg,
	)
	if err != nil {
		return err
	}

	if len(choices) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO run_choices (run_id, seq, segment_id, segment_index, option, elapsed_seconds)
			 VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := stmt.Close(); cerr != nil {
				// Best-effort statement close.
				_ = cerr
			}
		}()
		for i, c := range choices {
			if _, err := stmt.ExecContext(ctx, run.ID, i, c.SegmentID, c.SegmentIndex, c.Option, c.ElapsedSeconds); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// ListRuns returns run aggregates filtered by cfg, oldest first. Last keeps
// only the most recent runs.
func (s *Store) ListRuns(ctx context.Context, cfg model.HistoryConfig) ([]model.RunAggregate, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if cfg.Mode != "" {
		clauses = append(clauses, "r.mode = ?")
		args = append(args, cfg.Mode)
	}
	if cfg.Since != nil {
		clauses = append(clauses, "r.ended_at >= ?")
		args = append(args, formatTime(*cfg.Since))
	}
	query := fmt.Sprintf(`SELECT r.id, r.ended_at, r.mode, r.elapsed_seconds, r.final_index, r.reached_finale, r.hr_avg,
			(SELECT COUNT(*) FROM run_choices c WHERE c.run_id = r.id) AS choices
		FROM runs r
		WHERE %s
		ORDER BY r.ended_at ASC`, strings.Join(clauses, " AND "))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var runs []model.RunAggregate
	for rows.Next() {
		var agg model.RunAggregate
		var endedAt string
		var finale int
		if err := rows.Scan(&agg.ID, &endedAt, &agg.Mode, &agg.ElapsedSeconds, &agg.FinalIndex, &finale, &agg.HRAvg, &agg.Choices); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(time.RFC3339Nano, endedAt)
		if err != nil {
			return nil, err
		}
		agg.EndedAt = parsed
		agg.ReachedFinale = finale != 0
		runs = append(runs, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if cfg.Last > 0 && len(runs) > cfg.Last {
		runs = runs[len(runs)-cfg.Last:]
	}
	return runs, nil
}

// ListRunChoices returns the choices of one run in the order they were made.
func (s *Store) ListRunChoices(ctx context.Context, runID string) ([]model.RunChoice, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT segment_id, segment_index, option, elapsed_seconds
		 FROM run_choices WHERE run_id = ? ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var result []model.RunChoice
	for rows.Next() {
		var c model.RunChoice
		if err := rows.Scan(&c.SegmentID, &c.SegmentIndex, &c.Option, &c.ElapsedSeconds); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// InsertWorkout stores a workout record and returns its id.
func (s *Store) InsertWorkout(ctx context.Context, w model.Workout) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO workouts (type, distance, duration, ended_at) VALUES (?, ?, ?, ?)`,
		w.Type, w.Distance, w.Duration, formatTime(w.EndedAt))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// RecentWorkouts returns up to limit workouts, newest first.
func (s *Store) RecentWorkouts(ctx context.Context, limit int) ([]model.Workout, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, distance, duration, ended_at FROM workouts
		 ORDER BY ended_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var result []model.Workout
	for rows.Next() {
		var w model.Workout
		var endedAt string
		if err := rows.Scan(&w.ID, &w.Type, &w.Distance, &w.Duration, &endedAt); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(time.RFC3339Nano, endedAt)
		if err != nil {
			return nil, err
		}
		w.EndedAt = parsed
		result = append(result, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// InsertMessage appends a chat message.
func (s *Store) InsertMessage(ctx context.Context, m model.Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, user_id, text, audio_url, is_user, ts) VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.UserID, m.Text, m.AudioURL, boolInt(m.IsUser), formatTime(m.Timestamp))
	return err
}

// ListMessages returns messages for userID with a timestamp strictly after
// after, oldest first. A zero after returns the whole log; limit <= 0 means no limit.
func (s *Store) ListMessages(ctx context.Context, userID string, after time.Time, limit int) ([]model.Message, error) {
	clauses := []string{"user_id = ?"}
	args := []any{userID}
	if !after.IsZero() {
		clauses = append(clauses, "ts > ?")
		args = append(args, formatTime(after))
	}
	query := fmt.Sprintf(`SELECT id, user_id, text, audio_url, is_user, ts FROM messages
		WHERE %s ORDER BY ts ASC, rowid ASC`, strings.Join(clauses, " AND "))
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var result []model.Message
	for rows.Next() {
		var m model.Message
		var isUser int
		var ts string
		if err := rows.Scan(&m.ID, &m.UserID, &m.Text, &m.AudioURL, &isUser, &ts); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, err
		}
		m.IsUser = isUser != 0
		m.Timestamp = parsed
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// timestamps are stored in UTC with fixed-width nanoseconds so that string
// order matches time order
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
