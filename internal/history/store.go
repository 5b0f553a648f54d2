// Package history persists pipeline run summaries and per-class detection
// counts in SQLite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Kabilash01/cricket-ai/internal/detector"
	"github.com/Kabilash01/cricket-ai/internal/pipeline"
)

// DefaultListLimit is used when ListRuns is called without a positive limit
const DefaultListLimit = 20

// Store manages the run history database
type Store struct {
	db     *sql.DB
	dbPath string
}

// ClassCount is the number of detections of one class in a run
type ClassCount struct {
	ClassName string `json:"class_name"`
	Count     int64  `json:"count"`
}

// Open opens or creates the database at dbPath
func Open(dbPath string) (*Store, error) {
	if err := ensureDir(filepath.Dir(dbPath)); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	store := &Store{db: db, dbPath: dbPath}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		device TEXT,
		started_at TIMESTAMP NOT NULL,
		ended_at TIMESTAMP NOT NULL,
		frames INTEGER NOT NULL,
		infer_calls INTEGER NOT NULL,
		avg_latency_ns INTEGER NOT NULL,
		fps REAL NOT NULL,
		frames_dropped INTEGER NOT NULL,
		results_dropped INTEGER NOT NULL,
		reason TEXT,
		failed BOOLEAN NOT NULL DEFAULT 0
	);

	-- Per-class detection totals, filled from detection events while a run is active
	CREATE TABLE IF NOT EXISTS detections (
		run_id TEXT NOT NULL,
		class_name TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (run_id, class_name)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// RecordRun stores a finished run
func (s *Store) RecordRun(ctx context.Context, run pipeline.RunSummary) error {
	query := `
		INSERT OR REPLACE INTO runs
			(id, source, device, started_at, ended_at, frames, infer_calls, avg_latency_ns,
			 fps, frames_dropped, results_dropped, reason, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		run.ID, run.Source, run.Device, run.StartedAt.UTC(), run.EndedAt.UTC(),
		int64(run.Frames), int64(run.InferCalls), int64(run.AvgLatency),
		run.FPS, int64(run.FramesDropped), int64(run.ResultsDropped), run.Reason, run.Failed,
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.ID, err)
	}
	return nil
}

// ListRuns returns the most recent runs first
func (s *Store) ListRuns(ctx context.Context, limit int) ([]pipeline.RunSummary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `
		SELECT id, source, device, started_at, ended_at, frames, infer_calls, avg_latency_ns,
		       fps, frames_dropped, results_dropped, reason, failed
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]pipeline.RunSummary, 0)
	for rows.Next() {
		var (
			run                           pipeline.RunSummary
			device, reason                sql.NullString
			frames, inferCalls, latency   int64
			framesDropped, resultsDropped int64
		)
		if err := rows.Scan(&run.ID, &run.Source, &device, &run.StartedAt, &run.EndedAt,
			&frames, &inferCalls, &latency, &run.FPS, &framesDropped, &resultsDropped, &reason, &run.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.Device = device.String
		run.Reason = reason.String
		run.Frames = uint64(frames)
		run.InferCalls = uint64(inferCalls)
		run.AvgLatency = time.Duration(latency)
		run.FramesDropped = uint64(framesDropped)
		run.ResultsDropped = uint64(resultsDropped)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

// RecordDetections adds the detections of one frame to the run's class totals
func (s *Store) RecordDetections(ctx context.Context, runID string, detections []detector.Detection) error {
	if len(detections) == 0 {
		return nil
	}

	counts := make(map[string]int64)
	for _, d := range detections {
		counts[d.ClassName]++
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for class, n := range counts {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO detections (run_id, class_name, count) VALUES (?, ?, ?)
			ON CONFLICT(run_id, class_name) DO UPDATE SET count = count + excluded.count
		`, runID, class, n)
		if err != nil {
			return fmt.Errorf("failed to record detections for run %s: %w", runID, err)
		}
	}
	return tx.Commit()
}

// ClassCounts returns the detection totals of a run, most frequent first
func (s *Store) ClassCounts(ctx context.Context, runID string) ([]ClassCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT class_name, count FROM detections WHERE run_id = ? ORDER BY count DESC, class_name`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}
	defer rows.Close()

	counts := make([]ClassCount, 0)
	for rows.Next() {
		var c ClassCount
		if err := rows.Scan(&c.ClassName, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan detection count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func ensureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0755)
}

// Ping verifies the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
