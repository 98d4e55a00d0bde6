package ledger

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
// Times are stored as unix nanoseconds.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		task_key TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL,
		status TEXT NOT NULL,
		exit_code INTEGER NOT NULL,
		completed_at INTEGER NOT NULL,
		duration_ns INTEGER NOT NULL,
		outputs TEXT NOT NULL,
		log_path TEXT NOT NULL DEFAULT '',
		run_id TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_key TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		status TEXT NOT NULL,
		exit_code INTEGER NOT NULL,
		completed_at INTEGER NOT NULL,
		duration_ns INTEGER NOT NULL,
		outputs TEXT NOT NULL,
		log_path TEXT NOT NULL DEFAULT '',
		run_id TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_history_task_key ON history(task_key, id);

	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL DEFAULT 0,
		succeeded INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		blocked INTEGER NOT NULL DEFAULT 0
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
