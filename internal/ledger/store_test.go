package ledger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// testStore creates an in-memory store for testing and registers cleanup.
func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewMemoryStore(context.Background())
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func entry(key, fp string, status Status, at time.Time) Entry {
	return Entry{
		TaskKey:     key,
		Fingerprint: fp,
		Status:      status,
		CompletedAt: at,
		Duration:    1500 * time.Millisecond,
		Outputs: []OutputFingerprint{
			{Path: "qc/" + key + ".html", Size: 42, ModTime: at.Add(-time.Second).UTC()},
		},
		LogPath: "logs/" + key + ".log",
		RunID:   "run-1",
	}
}

func TestRecordAndLookup(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	at := time.Unix(1700000000, 123).UTC()

	if got, err := store.Lookup(ctx, "qc:A"); err != nil || got != nil {
		t.Fatalf("Lookup on empty ledger = %v, %v; want nil, nil", got, err)
	}

	want := entry("qc:A", "abc", StatusSucceeded, at)
	if err := store.Record(ctx, want); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	got, err := store.Lookup(ctx, "qc:A")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if !got.Succeeded() {
		t.Errorf("Succeeded() = false for %+v", got)
	}
	if diff := cmp.Diff(want, *got, cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })); diff != "" {
		t.Errorf("Lookup() mismatch (-want +got):\n%s", diff)
	}
}

func TestLookupReturnsLatestAndHistoryKeepsAll(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	base := time.Unix(1700000000, 0)

	attempts := []Entry{
		entry("align:s1", "fp1", StatusSucceeded, base),
		entry("align:s1", "fp2", StatusFailed, base.Add(time.Minute)),
		entry("align:s1", "fp2", StatusSucceeded, base.Add(2*time.Minute)),
	}
	attempts[1].ExitCode = 137
	for _, e := range attempts {
		if err := store.Record(ctx, e); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	latest, err := store.Lookup(ctx, "align:s1")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if latest.Fingerprint != "fp2" || !latest.Succeeded() {
		t.Errorf("Lookup() = %s/%s, want fp2/succeeded", latest.Fingerprint, latest.Status)
	}

	hist, err := store.History(ctx, "align:s1")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(hist) != 3 {
		t.Fatalf("History() returned %d entries, want 3", len(hist))
	}
	if hist[1].ExitCode != 137 || hist[1].Status != StatusFailed {
		t.Errorf("history[1] = exit %d %s, want exit 137 failed", hist[1].ExitCode, hist[1].Status)
	}
}

func TestRuns(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	start := time.Unix(1700000000, 0)

	for i, id := range []string{"r1", "r2"} {
		if err := store.StartRun(ctx, id, start.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatalf("StartRun() error = %v", err)
		}
	}
	if err := store.FinishRun(ctx, RunSummary{RunID: "r1", FinishedAt: start.Add(time.Minute), Succeeded: 5, Failed: 1, Blocked: 2}); err != nil {
		t.Fatalf("FinishRun() error = %v", err)
	}

	runs, err := store.Runs(ctx, 10)
	if err != nil {
		t.Fatalf("Runs() error = %v", err)
	}
	if len(runs) != 2 || runs[0].RunID != "r2" {
		t.Fatalf("Runs() = %+v, want r2 first", runs)
	}
	if !runs[0].FinishedAt.IsZero() {
		t.Errorf("unfinished run has FinishedAt %v", runs[0].FinishedAt)
	}
	if runs[1].Succeeded != 5 || runs[1].Failed != 1 || runs[1].Blocked != 2 {
		t.Errorf("r1 counts = %+v", runs[1])
	}
}

func TestMemoryStoresAreIsolated(t *testing.T) {
	a, b := testStore(t), testStore(t)
	ctx := context.Background()

	if err := a.Record(ctx, entry("qc:A", "x", StatusSucceeded, time.Now())); err != nil {
		t.Fatal(err)
	}
	if got, _ := b.Lookup(ctx, "qc:A"); got != nil {
		t.Errorf("entry leaked between memory stores: %+v", got)
	}
}

func TestFileStorePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "ledger.db")

	store, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	if err := store.Record(ctx, entry("merge:G1", "fp", StatusSucceeded, time.Now())); err != nil {
		t.Fatal(err)
	}
	store.Close()

	reopened, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()
	got, err := reopened.Lookup(ctx, "merge:G1")
	if err != nil || got == nil {
		t.Fatalf("Lookup after reopen = %v, %v", got, err)
	}
}

func TestRecordAfterCloseIsLedgerWriteError(t *testing.T) {
	store, err := NewMemoryStore(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	store.Close()

	err = store.Record(context.Background(), entry("qc:A", "x", StatusSucceeded, time.Now()))
	var lerr *LedgerWriteError
	if !errors.As(err, &lerr) {
		t.Fatalf("Record() error = %v, want *LedgerWriteError", err)
	}
	if lerr.TaskKey != "qc:A" {
		t.Errorf("TaskKey = %q, want qc:A", lerr.TaskKey)
	}
}

func TestWriter_SerializesConcurrentEnqueues(t *testing.T) {
	store := testStore(t)
	w := NewWriter(context.Background(), store, 4)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w.Enqueue(entry("task", "fp", StatusSucceeded, time.Unix(int64(i), 0)))
		}(i)
	}
	wg.Wait()

	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	hist, err := store.History(context.Background(), "task")
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 20 {
		t.Errorf("history has %d entries, want 20", len(hist))
	}
}

type failingLedger struct {
	Ledger
	calls int
}

func (f *failingLedger) Record(ctx context.Context, e Entry) error {
	f.calls++
	return &LedgerWriteError{TaskKey: e.TaskKey, Err: errors.New("disk I/O error")}
}

func TestWriter_FailureClosesFailedAndDropsRest(t *testing.T) {
	fl := &failingLedger{}
	w := NewWriter(context.Background(), fl, 8)
	w.Enqueue(Entry{TaskKey: "a"})

	select {
	case <-w.Failed():
	case <-time.After(5 * time.Second):
		t.Fatal("Failed() not closed after write error")
	}

	w.Enqueue(Entry{TaskKey: "b"})
	err := w.Close()
	var lerr *LedgerWriteError
	if !errors.As(err, &lerr) || lerr.TaskKey != "a" {
		t.Fatalf("Close() error = %v, want LedgerWriteError for a", err)
	}
	if fl.calls != 1 {
		t.Errorf("Record called %d times, want 1", fl.calls)
	}
}

func TestFingerprint(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "out.txt"), []byte("hello\n"), 0644); err != nil {
		t.Fatal(err)
	}

	fp, err := Fingerprint(root, "out.txt", true)
	if err != nil {
		t.Fatalf("Fingerprint() error = %v", err)
	}
	if fp.Path != "out.txt" || fp.Size != 6 {
		t.Errorf("Fingerprint() = %+v", fp)
	}
	if want := "5891b5b522d5df086d0ff0b110fbd9d21bb4fc7163af34d08286a2e846f6be03"; fp.SHA256 != want {
		t.Errorf("SHA256 = %s, want %s", fp.SHA256, want)
	}

	if _, err := FingerprintAll(root, []string{"out.txt", "missing.txt"}, false); err == nil {
		t.Error("FingerprintAll() with a missing output returned nil error")
	}
}
