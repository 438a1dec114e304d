// Package probestore keeps a history of throughput probe runs so results
// can be compared across links and firmware revisions.
// Uses pure-Go SQLite (modernc.org/sqlite), no cgo required.
package probestore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/danmuck/edgelink/internal/probe"
	_ "modernc.org/sqlite"
)

type Store struct {
	db    *sql.DB
	label string
}

var _ probe.Recorder = (*Store)(nil)

// Open opens (or creates) the history database. label tags every row, for
// example with the link name.
func Open(dbPath, label string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	s := &Store{db: db, label: label}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS probe_runs (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			label       TEXT NOT NULL DEFAULT '',
			started_at  TEXT NOT NULL,
			bytes_sent  INTEGER NOT NULL,
			elapsed_ms  REAL NOT NULL,
			frame_count INTEGER NOT NULL,
			success     INTEGER NOT NULL,
			bytes_per_s REAL NOT NULL DEFAULT 0,
			error       TEXT NOT NULL DEFAULT ''
		)
	`)
	return err
}

func (s *Store) Record(ctx context.Context, r probe.Result) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO probe_runs (label, started_at, bytes_sent, elapsed_ms, frame_count, success, bytes_per_s, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.label,
		r.StartedAt.UTC().Format(time.RFC3339Nano),
		r.BytesSent,
		r.ElapsedMillis(),
		r.FrameCount,
		r.Success,
		r.BytesPerSecond,
		r.Error,
	)
	if err != nil {
		return fmt.Errorf("record probe run: %w", err)
	}
	return nil
}

// Run is a stored probe result.
type Run struct {
	ID     int64
	Label  string
	Result probe.Result
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, label, started_at, bytes_sent, elapsed_ms, frame_count, success, bytes_per_s, error
		FROM probe_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query probe runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			run       Run
			startedAt string
			elapsedMS float64
		)
		res := &run.Result
		if err := rows.Scan(&run.ID, &run.Label, &startedAt, &res.BytesSent, &elapsedMS,
			&res.FrameCount, &res.Success, &res.BytesPerSecond, &res.Error); err != nil {
			return nil, fmt.Errorf("scan probe run: %w", err)
		}
		res.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt)
		if err != nil {
			return nil, fmt.Errorf("scan probe run %d: started_at %q: %w", run.ID, startedAt, err)
		}
		res.Elapsed = time.Duration(elapsedMS * float64(time.Millisecond))
		res.KiBPerSecond = res.BytesPerSecond / 1024
		out = append(out, run)
	}
	return out, rows.Err()
}

// Best returns the fastest successful run for the store's label.
func (s *Store) Best(ctx context.Context) (Run, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, bytes_per_s, bytes_sent, frame_count FROM probe_runs
		WHERE success = 1 AND label = ? ORDER BY bytes_per_s DESC LIMIT 1`, s.label)
	var run Run
	run.Label = s.label
	run.Result.Success = true
	err := row.Scan(&run.ID, &run.Result.BytesPerSecond, &run.Result.BytesSent, &run.Result.FrameCount)
	if err == sql.ErrNoRows {
		return Run{}, false, nil
	}
	if err != nil {
		return Run{}, false, fmt.Errorf("query best probe run: %w", err)
	}
	run.Result.KiBPerSecond = run.Result.BytesPerSecond / 1024
	return run, true, nil
}
