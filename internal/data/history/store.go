package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const (
	driverName  = "sqlite"
	maxAttempts = 5
	listSep     = "\n"
)

// Store persists analysis runs in SQLite. A single connection serialises
// writers; WAL and a busy timeout absorb readers from other processes.
type Store struct {
	path string
	db   *sql.DB
	mu   sync.Mutex
}

// Open opens or creates the history database at path.
func Open(path string, busyTimeout time.Duration) (*Store, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("history path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("history path %q is a directory, expected file", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory %q: %w", dir, err)
		}
	}
	if busyTimeout <= 0 {
		busyTimeout = 2 * time.Second
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)",
		cleanPath, busyTimeout.Milliseconds())
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite history %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite history %q: %w", cleanPath, err)
	}
	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema %q: %w", cleanPath, err)
	}

	return &Store{path: cleanPath, db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveRun stores run with its queries and diagnostics in one transaction and
// returns its ID. A run without an ID gets a time-ordered UUIDv7.
func (s *Store) SaveRun(ctx context.Context, run Run) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return "", fmt.Errorf("generate run id: %w", err)
		}
		run.ID = id.String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	err := s.withRetry("save run", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `
INSERT INTO runs (id, started_at_utc, duration_ms, roots, file_count, method_count)
VALUES (?, ?, ?, ?, ?, ?)`,
			run.ID,
			run.StartedAt.UTC().Format(time.RFC3339Nano),
			run.Duration.Milliseconds(),
			strings.Join(run.Roots, listSep),
			run.Files,
			run.Methods,
		); err != nil {
			return err
		}
		for i, q := range run.Queries {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO run_queries (run_id, seq, target, receiver, args, result) VALUES (?, ?, ?, ?, ?, ?)`,
				run.ID, i, q.Target, q.Receiver, strings.Join(q.Args, listSep), q.Result,
			); err != nil {
				return err
			}
		}
		for i, d := range run.Diagnostics {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO run_diagnostics (run_id, seq, kind, file, line, message, secondary) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				run.ID, i, d.Kind, d.File, d.Line, d.Message, d.Secondary,
			); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return "", err
	}
	return run.ID, nil
}

// Runs returns the newest runs first. A non-positive limit returns all.
func (s *Store) Runs(ctx context.Context, limit int) ([]RunSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
SELECT
  r.id, r.started_at_utc, r.duration_ms, r.roots, r.file_count, r.method_count,
  (SELECT COUNT(*) FROM run_queries q WHERE q.run_id = r.id),
  (SELECT COUNT(*) FROM run_diagnostics d WHERE d.run_id = r.id)
FROM runs r
ORDER BY r.started_at_utc DESC, r.id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var rows *sql.Rows
	err := s.withRetry("load runs", func() error {
		var qErr error
		rows, qErr = s.db.QueryContext(ctx, query, args...)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]RunSummary, 0)
	for rows.Next() {
		var (
			r          RunSummary
			startedRaw string
			durationMS int64
			roots      string
		)
		if err := rows.Scan(&r.ID, &startedRaw, &durationMS, &roots, &r.Files, &r.Methods,
			&r.QueryCount, &r.DiagnosticCount); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		started, err := time.Parse(time.RFC3339Nano, startedRaw)
		if err != nil {
			return nil, fmt.Errorf("parse run timestamp %q: %w", startedRaw, err)
		}
		r.StartedAt = started.UTC()
		r.Duration = time.Duration(durationMS) * time.Millisecond
		r.Roots = splitList(roots)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return out, nil
}

// RunQueries returns the queries of run id in the order they were answered.
func (s *Store) RunQueries(ctx context.Context, id string) ([]QueryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT target, receiver, args, result FROM run_queries WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("load run queries: %w", err)
	}
	defer rows.Close()

	out := make([]QueryRecord, 0)
	for rows.Next() {
		var (
			q    QueryRecord
			args string
		)
		if err := rows.Scan(&q.Target, &q.Receiver, &args, &q.Result); err != nil {
			return nil, fmt.Errorf("scan query row: %w", err)
		}
		q.Args = splitList(args)
		out = append(out, q)
	}
	return out, rows.Err()
}

// RunDiagnostics returns the diagnostics of run id in reporting order.
func (s *Store) RunDiagnostics(ctx context.Context, id string) ([]DiagnosticRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, file, line, message, secondary FROM run_diagnostics WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("load run diagnostics: %w", err)
	}
	defer rows.Close()

	out := make([]DiagnosticRecord, 0)
	for rows.Next() {
		var d DiagnosticRecord
		if err := rows.Scan(&d.Kind, &d.File, &d.Line, &d.Message, &d.Secondary); err != nil {
			return nil, fmt.Errorf("scan diagnostic row: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Prune deletes all but the newest keep runs.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if keep < 0 {
		keep = 0
	}
	var deleted int64
	err := s.withRetry("prune runs", func() error {
		res, err := s.db.ExecContext(ctx, `
DELETE FROM runs WHERE id NOT IN (
  SELECT id FROM runs ORDER BY started_at_utc DESC, id DESC LIMIT ?
)`, keep)
		if err != nil {
			return err
		}
		deleted, err = res.RowsAffected()
		return err
	})
	return deleted, err
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Split(raw, listSep)
}

func (s *Store) withRetry(op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isLockError(err) || attempt == maxAttempts {
			break
		}
		time.Sleep(time.Duration(attempt*25) * time.Millisecond)
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}

func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

func IsCorruptError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "malformed") || strings.Contains(msg, "not a database") || errors.Is(err, os.ErrInvalid)
}
