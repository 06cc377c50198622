package recorder

import (
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"PatternSentinel/internal/model"
)

var log = logrus.WithField("component", "recorder")

// SQLiteRecorder persists scan and check history to a SQLite database.
type SQLiteRecorder struct {
	db *sqlx.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so the dashboard can read while the loops write.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Infof("sqlite recorder opened: %s", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS scan_runs (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			job_id      TEXT NOT NULL UNIQUE,
			force       INTEGER NOT NULL DEFAULT 0,
			state       TEXT NOT NULL,
			error_text  TEXT,
			pick_count  INTEGER NOT NULL DEFAULT 0,
			started_at  INTEGER NOT NULL,
			finished_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scan_runs_finished ON scan_runs(finished_at)`,

		`CREATE TABLE IF NOT EXISTS scan_picks (
			id     INTEGER PRIMARY KEY AUTOINCREMENT,
			job_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			dist   TEXT,
			status TEXT,
			advice TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scan_picks_job ON scan_picks(job_id)`,

		`CREATE TABLE IF NOT EXISTS symbol_checks (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol     TEXT NOT NULL,
			interval   TEXT NOT NULL,
			lookback   INTEGER NOT NULL,
			passed     INTEGER NOT NULL DEFAULT 0,
			status     TEXT,
			dist       TEXT,
			anchor_a   REAL,
			anchor_b   REAL,
			anchor_c   REAL,
			checked_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_symbol_checks_ts ON symbol_checks(checked_at)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// RecordScan stores a terminal job and its picks in one transaction.
func (r *SQLiteRecorder) RecordScan(job *model.AnalysisJob) error {
	if !job.State.Terminal() {
		return fmt.Errorf("job %s is %s, not terminal", job.ID, job.State)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Beginx()
	if err != nil {
		return err
	}

	run := ScanRun{
		JobID:      job.ID,
		Force:      job.Force,
		State:      string(job.State),
		ErrorText:  job.ErrorText,
		PickCount:  len(job.ResultList),
		StartedAt:  job.StartedAt.Unix(),
		FinishedAt: job.FinishedAt.Unix(),
	}
	if _, err := tx.NamedExec(`INSERT INTO scan_runs
		(job_id, force, state, error_text, pick_count, started_at, finished_at)
		VALUES (:job_id, :force, :state, :error_text, :pick_count, :started_at, :finished_at)`, run); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert scan run: %w", err)
	}

	for _, p := range job.ResultList {
		row := PickRow{JobID: job.ID, Symbol: p.Symbol, Dist: p.DistanceMetric, Status: p.StatusLabel, Advice: p.AdviceText}
		if _, err := tx.NamedExec(`INSERT INTO scan_picks (job_id, symbol, dist, status, advice)
			VALUES (:job_id, :symbol, :dist, :status, :advice)`, row); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert scan pick %s: %w", p.Symbol, err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteRecorder) RecordCheck(res *model.AnalysisResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.NamedExec(`INSERT INTO symbol_checks
		(symbol, interval, lookback, passed, status, dist, anchor_a, anchor_b, anchor_c, checked_at)
		VALUES (:symbol, :interval, :lookback, :passed, :status, :dist, :anchor_a, :anchor_b, :anchor_c, :checked_at)`,
		NewSymbolCheck(res))
	return err
}

// RecentChecks returns the newest checks first.
func (r *SQLiteRecorder) RecentChecks(limit int) ([]SymbolCheck, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []SymbolCheck
	err := r.db.Select(&rows, `SELECT id, symbol, interval, lookback, passed, status, dist,
		anchor_a, anchor_b, anchor_c, checked_at
		FROM symbol_checks ORDER BY checked_at DESC, id DESC LIMIT ?`, limit)
	return rows, err
}

// ScanPicks returns the stored picks of one scan run.
func (r *SQLiteRecorder) ScanPicks(jobID string) ([]PickRow, error) {
	var rows []PickRow
	err := r.db.Select(&rows, `SELECT job_id, symbol, dist, status, advice
		FROM scan_picks WHERE job_id = ? ORDER BY id`, jobID)
	return rows, err
}

func (r *SQLiteRecorder) Close() error {
	log.Info("closing sqlite recorder")
	return r.db.Close()
}
