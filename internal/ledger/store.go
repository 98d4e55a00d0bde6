package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Ledger using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a ledger at dbPath. Creates parent
// directories if needed. Enables WAL mode and a busy timeout.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", dbPath)
	return open(ctx, connStr)
}

// NewMemoryStore creates an in-memory ledger for testing. Every call gets
// its own database.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	connStr := fmt.Sprintf("file:ledger-%s?mode=memory&cache=shared", uuid.NewString())
	return open(ctx, connStr)
}

func open(ctx context.Context, connStr string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection serializes the writer and staleness lookups.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Record replaces the latest entry for e.TaskKey and appends e to its
// history, in one transaction.
func (s *SQLiteStore) Record(ctx context.Context, e Entry) error {
	if err := s.record(ctx, e); err != nil {
		return &LedgerWriteError{TaskKey: e.TaskKey, Err: err}
	}
	return nil
}

func (s *SQLiteStore) record(ctx context.Context, e Entry) error {
	outputs, err := json.Marshal(e.Outputs)
	if err != nil {
		return fmt.Errorf("encoding outputs: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	args := []any{
		e.TaskKey, e.Fingerprint, string(e.Status), e.ExitCode,
		e.CompletedAt.UnixNano(), int64(e.Duration), string(outputs), e.LogPath, e.RunID,
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO entries (task_key, fingerprint, status, exit_code, completed_at, duration_ns, outputs, log_path, run_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_key) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			status = excluded.status,
			exit_code = excluded.exit_code,
			completed_at = excluded.completed_at,
			duration_ns = excluded.duration_ns,
			outputs = excluded.outputs,
			log_path = excluded.log_path,
			run_id = excluded.run_id
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to upsert entry: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO history (task_key, fingerprint, status, exit_code, completed_at, duration_ns, outputs, log_path, run_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const entryColumns = `task_key, fingerprint, status, exit_code, completed_at, duration_ns, outputs, log_path, run_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		e           Entry
		status      string
		completedAt int64
		duration    int64
		outputs     string
	)
	if err := row.Scan(&e.TaskKey, &e.Fingerprint, &status, &e.ExitCode, &completedAt, &duration, &outputs, &e.LogPath, &e.RunID); err != nil {
		return Entry{}, err
	}
	e.Status = Status(status)
	e.CompletedAt = time.Unix(0, completedAt)
	e.Duration = time.Duration(duration)
	if err := json.Unmarshal([]byte(outputs), &e.Outputs); err != nil {
		return Entry{}, fmt.Errorf("decoding outputs of %s: %w", e.TaskKey, err)
	}
	return e, nil
}

// Lookup returns the latest entry for a task, or nil if none exists.
func (s *SQLiteStore) Lookup(ctx context.Context, taskKey string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE task_key = ?`, taskKey)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", taskKey, err)
	}
	return &e, nil
}

// History returns every recorded attempt of a task, oldest first.
func (s *SQLiteStore) History(ctx context.Context, taskKey string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM history WHERE task_key = ? ORDER BY id`, taskKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// StartRun records the start of a run.
func (s *SQLiteStore) StartRun(ctx context.Context, runID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO runs (run_id, started_at) VALUES (?, ?)`, runID, at.UnixNano())
	if err != nil {
		return &LedgerWriteError{Err: fmt.Errorf("failed to start run %s: %w", runID, err)}
	}
	return nil
}

// FinishRun stores the final counts of a run.
func (s *SQLiteStore) FinishRun(ctx context.Context, sum RunSummary) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, succeeded = ?, failed = ?, blocked = ?
		WHERE run_id = ?
	`, sum.FinishedAt.UnixNano(), sum.Succeeded, sum.Failed, sum.Blocked, sum.RunID)
	if err != nil {
		return &LedgerWriteError{Err: fmt.Errorf("failed to finish run %s: %w", sum.RunID, err)}
	}
	return nil
}

// Runs returns the most recent runs, newest first.
func (s *SQLiteStore) Runs(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, started_at, finished_at, succeeded, failed, blocked
		FROM runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var (
			r                 RunSummary
			started, finished int64
		)
		if err := rows.Scan(&r.RunID, &started, &finished, &r.Succeeded, &r.Failed, &r.Blocked); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = time.Unix(0, started)
		if finished != 0 {
			r.FinishedAt = time.Unix(0, finished)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
