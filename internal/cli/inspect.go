package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/aristath/seqflow/internal/config"
	"github.com/aristath/seqflow/internal/ledger"
	"github.com/aristath/seqflow/internal/pipeline"
)

func graphCmd(ctx context.Context, env Env, args []string) error {
	var (
		c       common
		targets stringList
	)
	fs := newFlagSet("graph", env)
	c.register(fs)
	fs.Var(&targets, "target", "restrict the graph to what this output needs (repeatable)")
	if err := parse(fs, args); err != nil {
		return err
	}

	cfg, err := c.load(env)
	if err != nil {
		return err
	}
	ctx = c.withLogger(ctx, env.Stderr)

	p, err := pipeline.Build(ctx, cfg, targets)
	if err != nil {
		return err
	}
	return p.Graph.WriteDOT(env.Stdout)
}

// openLedger opens an existing ledger without creating one.
func openLedger(ctx context.Context, cfg *config.PipelineConfig) (*ledger.SQLiteStore, error) {
	path := cfg.LedgerFile()
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("no ledger at %s: nothing has run yet", path)
	}
	return ledger.NewSQLiteStore(ctx, path)
}

func historyCmd(ctx context.Context, env Env, args []string) error {
	var c common
	fs := newFlagSet("history", env)
	c.register(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return &ExitError{Code: ExitConstruction, Err: fmt.Errorf("history takes exactly one task key")}
	}
	key := fs.Arg(0)

	cfg, err := c.load(env)
	if err != nil {
		return err
	}
	store, err := openLedger(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.History(ctx, key)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("no recorded attempts of %s", key)
	}
	return writeHistory(env.Stdout, entries, time.Now())
}

func writeHistory(w io.Writer, entries []ledger.Entry, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "COMPLETED\tSTATUS\tEXIT\tDURATION\tOUTPUTS\tRUN")
	for _, e := range entries {
		var size uint64
		for _, o := range e.Outputs {
			size += uint64(o.Size)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
			humanize.RelTime(e.CompletedAt, now, "ago", "from now"),
			e.Status, e.ExitCode, e.Duration.Round(time.Millisecond),
			humanize.Bytes(size), shortID(e.RunID))
	}
	return tw.Flush()
}

func runsCmd(ctx context.Context, env Env, args []string) error {
	var (
		c     common
		limit int
	)
	fs := newFlagSet("runs", env)
	c.register(fs)
	fs.IntVar(&limit, "limit", 20, "number of runs to show")
	if err := parse(fs, args); err != nil {
		return err
	}

	cfg, err := c.load(env)
	if err != nil {
		return err
	}
	store, err := openLedger(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.Runs(ctx, limit)
	if err != nil {
		return err
	}
	return writeRuns(env.Stdout, runs, time.Now())
}

func writeRuns(w io.Writer, runs []ledger.RunSummary, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tDURATION\tSUCCEEDED\tFAILED\tBLOCKED")
	for _, r := range runs {
		took := "unfinished"
		if !r.FinishedAt.IsZero() {
			took = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(r.RunID), humanize.RelTime(r.StartedAt, now, "ago", "from now"), took,
			humanize.Comma(int64(r.Succeeded)), humanize.Comma(int64(r.Failed)), humanize.Comma(int64(r.Blocked)))
	}
	return tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
