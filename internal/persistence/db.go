// Package persistence provides SQLite-based storage for level progress,
// best scores, play sessions and their event logs.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/gridtransit/internal/engine"
	"github.com/talgya/gridtransit/internal/level"
)

// DB wraps a SQLite connection for progress persistence.
type DB struct {
	conn *sqlx.DB
	now  func() time.Time
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn, now: time.Now}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS best_scores (
		level_id TEXT PRIMARY KEY,
		score INTEGER NOT NULL,
		time REAL NOT NULL,
		arrived INTEGER NOT NULL,
		gave_up INTEGER NOT NULL,
		run_id TEXT NOT NULL,
		recorded_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		run_id TEXT PRIMARY KEY,
		level_id TEXT NOT NULL,
		started_at TEXT NOT NULL,
		ended_at TEXT,
		completed INTEGER NOT NULL DEFAULT 0,
		reason TEXT NOT NULL DEFAULT '',
		score INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		time REAL NOT NULL,
		kind TEXT NOT NULL,
		category TEXT NOT NULL,
		description TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS progress_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_level ON sessions(level_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

func (db *DB) stamp() string {
	return db.now().UTC().Format(time.RFC3339)
}

// BestScore is the best completed run of a level.
type BestScore struct {
	LevelID    string  `db:"level_id" json:"level_id"`
	Score      int     `db:"score" json:"score"`
	Time       float64 `db:"time" json:"time"`
	Arrived    int     `db:"arrived" json:"arrived"`
	GaveUp     int     `db:"gave_up" json:"gave_up"`
	RunID      string  `db:"run_id" json:"run_id"`
	RecordedAt string  `db:"recorded_at" json:"recorded_at"`
}

// RecordResult stores a completed run if it beats the level's best score.
// It reports whether the best score changed.
func (db *DB) RecordResult(levelID string, runID uuid.UUID, out engine.Outcome) (bool, error) {
	if !out.Completed {
		return false, nil
	}
	tx, err := db.conn.Beginx()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var best int
	err = tx.Get(&best, "SELECT score FROM best_scores WHERE level_id = ?", levelID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return false, err
	case out.Score <= best:
		return false, nil
	}

	_, err = tx.Exec(`INSERT OR REPLACE INTO best_scores
		(level_id, score, time, arrived, gave_up, run_id, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		levelID, out.Score, out.Time, out.Stats.Arrived, out.Stats.GaveUp, runID.String(), db.stamp())
	if err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// Best returns the best score of a level, or false if it was never completed.
func (db *DB) Best(levelID string) (BestScore, bool, error) {
	var b BestScore
	err := db.conn.Get(&b, "SELECT * FROM best_scores WHERE level_id = ?", levelID)
	if errors.Is(err, sql.ErrNoRows) {
		return BestScore{}, false, nil
	}
	return b, err == nil, err
}

// BestScores returns every recorded best score.
func (db *DB) BestScores() ([]BestScore, error) {
	var out []BestScore
	err := db.conn.Select(&out, "SELECT * FROM best_scores ORDER BY level_id")
	return out, err
}

// StartSession records the start of a run.
func (db *DB) StartSession(runID uuid.UUID, levelID string) error {
	_, err := db.conn.Exec(
		"INSERT OR IGNORE INTO sessions (run_id, level_id, started_at) VALUES (?, ?, ?)",
		runID.String(), levelID, db.stamp(),
	)
	return err
}

// EndSession records the outcome of a run.
func (db *DB) EndSession(runID uuid.UUID, out engine.Outcome) error {
	completed := 0
	if out.Completed {
		completed = 1
	}
	_, err := db.conn.Exec(
		"UPDATE sessions SET ended_at = ?, completed = ?, reason = ?, score = ? WHERE run_id = ?",
		db.stamp(), completed, out.Reason, out.Score, runID.String(),
	)
	return err
}

// Session is a stored run.
type Session struct {
	RunID     string         `db:"run_id" json:"run_id"`
	LevelID   string         `db:"level_id" json:"level_id"`
	StartedAt string         `db:"started_at" json:"started_at"`
	EndedAt   sql.NullString `db:"ended_at" json:"-"`
	Completed bool           `db:"completed" json:"completed"`
	Reason    string         `db:"reason" json:"reason"`
	Score     int            `db:"score" json:"score"`
}

// Sessions returns the runs of a level, newest first.
func (db *DB) Sessions(levelID string) ([]Session, error) {
	var out []Session
	err := db.conn.Select(&out,
		"SELECT * FROM sessions WHERE level_id = ? ORDER BY started_at DESC, rowid DESC", levelID)
	return out, err
}

// SaveEvents appends events of a run to the database.
func (db *DB) SaveEvents(runID uuid.UUID, events []engine.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex("INSERT INTO events (run_id, time, kind, category, description) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.Exec(runID.String(), e.Time, string(e.Kind), e.Category, e.Description); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// EventRow is a stored event.
type EventRow struct {
	RunID       string  `db:"run_id" json:"run_id"`
	Time        float64 `db:"time" json:"time"`
	Kind        string  `db:"kind" json:"kind"`
	Category    string  `db:"category" json:"category"`
	Description string  `db:"description" json:"description"`
}

// RecentEvents returns the most recent N events of a run.
func (db *DB) RecentEvents(runID uuid.UUID, limit int) ([]EventRow, error) {
	var events []EventRow
	err := db.conn.Select(&events,
		"SELECT run_id, time, kind, category, description FROM events WHERE run_id = ? ORDER BY id DESC LIMIT ?",
		runID.String(), limit,
	)
	return events, err
}

// SaveMeta stores a key-value pair in progress metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO progress_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM progress_meta WHERE key = ?", key)
	return value, err
}

const unlockedKey = "unlocked_levels"

// Unlocked returns which built-in levels are playable. A fresh database
// unlocks only the first.
func (db *DB) Unlocked() ([]bool, error) {
	raw, err := db.GetMeta(unlockedKey)
	if errors.Is(err, sql.ErrNoRows) {
		return level.InitialUnlocked(), nil
	}
	if err != nil {
		return nil, err
	}
	var unlocked []bool
	if err := json.Unmarshal([]byte(raw), &unlocked); err != nil {
		return nil, fmt.Errorf("decode unlocked levels: %w", err)
	}
	// Levels added since the progress was saved start locked.
	for len(unlocked) < len(level.Order) {
		unlocked = append(unlocked, false)
	}
	return unlocked, nil
}

// SaveUnlocked stores which built-in levels are playable.
func (db *DB) SaveUnlocked(unlocked []bool) error {
	data, err := json.Marshal(unlocked)
	if err != nil {
		return err
	}
	return db.SaveMeta(unlockedKey, string(data))
}

// SaveRun stores the end of a run: its events, its outcome, a new best
// score and, on completion, the unlock of the next level.
func (db *DB) SaveRun(levelID string, runID uuid.UUID, out engine.Outcome, events []engine.Event) error {
	slog.Info("saving run", "level", levelID, "run", runID, "score", out.Score, "events", len(events))

	if err := db.SaveEvents(runID, events); err != nil {
		return fmt.Errorf("save events: %w", err)
	}
	if err := db.EndSession(runID, out); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	improved, err := db.RecordResult(levelID, runID, out)
	if err != nil {
		return fmt.Errorf("record result: %w", err)
	}
	if improved {
		slog.Info("new best score", "level", levelID, "score", out.Score)
	}
	if !out.Completed {
		return nil
	}
	unlocked, err := db.Unlocked()
	if err != nil {
		return fmt.Errorf("load progress: %w", err)
	}
	if err := db.SaveUnlocked(level.Unlock(unlocked, levelID)); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}
