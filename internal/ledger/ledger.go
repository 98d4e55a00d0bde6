// Package ledger records task completions so later runs can tell which
// outputs are still current.
package ledger

import (
	"context"
	"fmt"
	"time"
)

// Status is the outcome recorded for a task attempt.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// OutputFingerprint is the size and modification evidence of one output.
type OutputFingerprint struct {
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
	SHA256  string    `json:"sha256,omitempty"`
}

// Entry is one recorded task outcome.
type Entry struct {
	TaskKey     string
	Fingerprint string // parameter fingerprint of the resolved task
	Status      Status
	ExitCode    int
	CompletedAt time.Time
	Duration    time.Duration
	Outputs     []OutputFingerprint
	LogPath     string
	RunID       string
}

// Succeeded reports whether the entry records a success.
func (e *Entry) Succeeded() bool {
	return e != nil && e.Status == StatusSucceeded
}

// RunSummary is one row of the run table.
type RunSummary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running or after a crash
	Succeeded  int
	Failed     int
	Blocked    int
}

// Ledger is the persistent task record. Record appends to the history and
// replaces the latest entry for the key.
type Ledger interface {
	Record(ctx context.Context, e Entry) error
	Lookup(ctx context.Context, taskKey string) (*Entry, error)
	History(ctx context.Context, taskKey string) ([]Entry, error)
	StartRun(ctx context.Context, runID string, at time.Time) error
	FinishRun(ctx context.Context, summary RunSummary) error
	Runs(ctx context.Context, limit int) ([]RunSummary, error)
	Close() error
}

// LedgerWriteError means the backing store rejected a write. Staleness can
// no longer be trusted after one, so runs abort on it.
type LedgerWriteError struct {
	TaskKey string
	Err     error
}

func (e *LedgerWriteError) Error() string {
	if e.TaskKey == "" {
		return fmt.Sprintf("ledger write failed: %v", e.Err)
	}
	return fmt.Sprintf("ledger write for %s failed: %v", e.TaskKey, e.Err)
}

func (e *LedgerWriteError) Unwrap() error { return e.Err }
