// Package db provides the kiosk's SQLite analytics store. Visitor results
// survive restarts here; the live job state never does.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Register driver
)

// ErrNoResult is returned when no row matches the requested key.
var ErrNoResult = errors.New("no result")

// DB wraps the sql.DB connection.
type DB struct {
	*sql.DB
}

// Init opens the database and runs migrations.
func Init(path string) (*DB, error) {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	// Enable WAL mode for better concurrency and set busy timeout
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=30000;"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	d := &DB{db}
	// Enforce single connection to avoid SQLITE_BUSY errors during concurrent writes
	db.SetMaxOpenConns(1)

	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return d, nil
}

func (d *DB) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS quiz_results (
			job_id TEXT PRIMARY KEY,
			session_id TEXT,
			score REAL,
			correct INTEGER,
			total INTEGER,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS job_outcomes (
			job_id TEXT PRIMARY KEY,
			session_id TEXT,
			avatar TEXT,
			state TEXT,
			error_kind TEXT,
			duration_ms INTEGER,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
	}

	for _, q := range queries {
		if _, err := d.Exec(q); err != nil {
			return fmt.Errorf("exec error: %w query: %s", err, q)
		}
	}

	return nil
}

// QuizResult is a graded quiz for one job.
type QuizResult struct {
	JobID     string
	SessionID string
	Score     float64
	Correct   int
	Total     int
}

// SaveQuizResult upserts the graded quiz for a job.
func (d *DB) SaveQuizResult(r QuizResult) error {
	_, err := d.Exec(`INSERT INTO quiz_results (job_id, session_id, score, correct, total)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			session_id=excluded.session_id,
			score=excluded.score,
			correct=excluded.correct,
			total=excluded.total`,
		r.JobID, r.SessionID, r.Score, r.Correct, r.Total)
	return err
}

// GetQuizResult returns the stored quiz result for a job, or ErrNoResult.
func (d *DB) GetQuizResult(jobID string) (*QuizResult, error) {
	r := &QuizResult{JobID: jobID}
	err := d.QueryRow(`SELECT session_id, score, correct, total FROM quiz_results WHERE job_id = ?`, jobID).
		Scan(&r.SessionID, &r.Score, &r.Correct, &r.Total)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoResult
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// JobOutcome is the terminal record of one generation job.
type JobOutcome struct {
	JobID     string
	SessionID string
	Avatar    string
	State     string
	ErrorKind string
	Duration  time.Duration
}

// SaveJobOutcome records how a job ended.
func (d *DB) SaveJobOutcome(o JobOutcome) error {
	_, err := d.Exec(`INSERT INTO job_outcomes (job_id, session_id, avatar, state, error_kind, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			state=excluded.state,
			error_kind=excluded.error_kind,
			duration_ms=excluded.duration_ms`,
		o.JobID, o.SessionID, o.Avatar, o.State, o.ErrorKind, o.Duration.Milliseconds())
	return err
}

// OutcomeCounts returns the number of recorded jobs per terminal state.
func (d *DB) OutcomeCounts() (map[string]int, error) {
	rows, err := d.Query(`SELECT state, count(*) FROM job_outcomes GROUP BY state`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		counts[state] = n
	}
	return counts, rows.Err()
}

// PruneOutcomes removes analytics rows older than the specified duration.
func (d *DB) PruneOutcomes(olderThan time.Duration) error {
	// Format time compatible with SQLite DEFAULT CURRENT_TIMESTAMP (YYYY-MM-DD HH:MM:SS)
	deadline := time.Now().Add(-olderThan).UTC().Format("2006-01-02 15:04:05")
	if _, err := d.Exec("DELETE FROM job_outcomes WHERE created_at < ?", deadline); err != nil {
		return err
	}
	_, err := d.Exec("DELETE FROM quiz_results WHERE created_at < ?", deadline)
	return err
}
