// Package ledger records job submissions and observed terminal outcomes in
// SQLite. Remote jobs cannot be cancelled once submitted, so a crashed or
// abandoned run leaves orphans on the backend; the ledger is the record an
// operator uses to find them (ListUnresolved) and to resubmit dropped units
// by hand.
package ledger

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Submission statuses beyond the backend's own set.
const (
	StatusSubmitted    = "SUBMITTED"
	StatusSubmitFailed = "SUBMIT_FAILED"
)

// Entry is one recorded submission.
type Entry struct {
	RowID      int64
	JobID      string // empty when submission itself failed
	JobName    string
	Group      string
	Stratum    string // stratifying variable, empty for unstratified runs
	Workspace  string
	Status     string
	Error      string
	CreatedAt  time.Time
	FinishedAt *time.Time
}

// Ledger provides persistent submission records using SQLite.
type Ledger struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates or opens a ledger at dbPath.
func Open(dbPath string) (*Ledger, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for sqlite: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	l := &Ledger{db: db}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return l, nil
}

// Close closes the database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS submissions (
		rowid INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL DEFAULT '',
		job_name TEXT NOT NULL,
		grp TEXT NOT NULL,
		stratum TEXT NOT NULL DEFAULT '',
		workspace TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_submissions_job_id ON submissions(job_id);
	CREATE INDEX IF NOT EXISTS idx_submissions_status ON submissions(status);
	`
	_, err := l.db.Exec(schema)
	return err
}

// RecordSubmission inserts a submission record. Failed submissions carry
// StatusSubmitFailed, an empty job id and the error message.
func (l *Ledger) RecordSubmission(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := l.db.Exec(`
		INSERT INTO submissions (job_id, job_name, grp, stratum, workspace, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.JobID, e.JobName, e.Group, e.Stratum, e.Workspace, e.Status, e.Error, e.CreatedAt)
	return err
}

// RecordTerminal marks a job's first observed terminal status. Later calls
// for the same job are no-ops (the terminal observation happens exactly
// once).
func (l *Ledger) RecordTerminal(jobID, status, errMsg string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.Exec(`
		UPDATE submissions SET status = ?, error = ?, finished_at = ?
		WHERE job_id = ? AND finished_at IS NULL`,
		status, errMsg, time.Now(), jobID)
	return err
}

// Get returns the submission record for a job id, or nil when absent.
func (l *Ledger) Get(jobID string) (*Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	row := l.db.QueryRow(`
		SELECT rowid, job_id, job_name, grp, stratum, workspace, status, error, created_at, finished_at
		FROM submissions WHERE job_id = ? ORDER BY rowid DESC LIMIT 1`, jobID)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

// ListUnresolved returns submissions with no recorded terminal outcome:
// potential orphaned remote jobs.
func (l *Ledger) ListUnresolved() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.db.Query(`
		SELECT rowid, job_id, job_name, grp, stratum, workspace, status, error, created_at, finished_at
		FROM submissions WHERE finished_at IS NULL AND status = ? ORDER BY rowid`,
		StatusSubmitted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// DeleteOlderThan removes records created more than the given number of days
// ago, returning the number deleted.
func (l *Ledger) DeleteOlderThan(days int) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -days)
	res, err := l.db.Exec(`DELETE FROM submissions WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*Entry, error) {
	var e Entry
	var finished sql.NullTime
	err := s.Scan(&e.RowID, &e.JobID, &e.JobName, &e.Group, &e.Stratum,
		&e.Workspace, &e.Status, &e.Error, &e.CreatedAt, &finished)
	if err != nil {
		return nil, err
	}
	if finished.Valid {
		t := finished.Time
		e.FinishedAt = &t
	}
	return &e, nil
}
