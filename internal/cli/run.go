package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/aristath/seqflow/internal/ctxlog"
	"github.com/aristath/seqflow/internal/events"
	"github.com/aristath/seqflow/internal/ledger"
	"github.com/aristath/seqflow/internal/pipeline"
	"github.com/aristath/seqflow/internal/scheduler"
	"github.com/aristath/seqflow/internal/tui"
)

func runCmd(ctx context.Context, env Env, args []string) error {
	var (
		c       common
		targets stringList
		force   stringList
		dryRun  bool
		jobs    int
		useTUI  bool
	)
	fs := newFlagSet("run", env)
	c.register(fs)
	fs.Var(&targets, "target", "output path to build (repeatable, default everything)")
	fs.Var(&force, "force", "task key to re-run even if up to date (repeatable)")
	fs.BoolVar(&dryRun, "dry-run", false, "print the tasks that would run and exit")
	fs.IntVar(&jobs, "jobs", 0, "worker capacity in threads, overrides the config")
	fs.BoolVar(&useTUI, "tui", false, "show live progress in a terminal UI")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return &ExitError{Code: ExitConstruction, Err: fmt.Errorf("unexpected arguments: %v", fs.Args())}
	}

	cfg, err := c.load(env)
	if err != nil {
		return err
	}
	if jobs != 0 {
		cfg.Jobs = jobs
	}

	logOut := env.Stderr
	if useTUI && !dryRun {
		f, err := openRunLog(cfg.LogDirectory(), cfg.Workdir)
		if err != nil {
			return err
		}
		defer f.Close()
		logOut = f
	}
	ctx = c.withLogger(ctx, logOut)

	p, err := pipeline.Build(ctx, cfg, targets)
	if err != nil {
		return err
	}

	if dryRun {
		plan, err := p.Plan(ctx, force)
		if err != nil {
			return err
		}
		return writePlan(env.Stdout, plan)
	}

	opts := pipeline.RunOptions{Force: force, Procs: env.Procs}
	var report *scheduler.Report
	if useTUI {
		report, err = runWithTUI(ctx, p, opts)
	} else {
		report, err = p.Run(ctx, opts)
	}
	if report != nil {
		if werr := report.WriteText(env.Stdout); werr != nil {
			ctxlog.FromContext(ctx).Warn("writing report", "error", werr)
		}
	}

	var lwe *ledger.LedgerWriteError
	switch {
	case errors.As(err, &lwe):
		return &ExitError{Code: ExitFailed, Err: err}
	case err != nil:
		return err
	case !report.Success():
		return &ExitError{Code: ExitFailed}
	}
	return nil
}

// runWithTUI runs the pipeline while the TUI renders its events. Quitting
// the TUI cancels the run; after the run the TUI stays up until dismissed.
func runWithTUI(ctx context.Context, p *pipeline.Pipeline, opts pipeline.RunOptions) (*scheduler.Report, error) {
	bus := events.NewEventBus()
	defer bus.Close()
	opts.Bus = bus

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	tuiDone := make(chan error, 1)
	go func() {
		err := tui.Run(ctx, bus)
		cancelRun()
		tuiDone <- err
	}()

	report, err := p.Run(runCtx, opts)
	if tuiErr := <-tuiDone; tuiErr != nil {
		ctxlog.FromContext(ctx).Error("terminal UI failed", "error", tuiErr)
	}
	return report, err
}

func openRunLog(logDir, workdir string) (*os.File, error) {
	if logDir == "" {
		logDir = workdir
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	return os.OpenFile(filepath.Join(logDir, "seqflow.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}

func writePlan(w io.Writer, plan []scheduler.PlannedTask) error {
	if len(plan) == 0 {
		_, err := fmt.Fprintln(w, "nothing to do: all outputs are up to date")
		return err
	}
	fmt.Fprintf(w, "%d tasks would run:\n", len(plan))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i, t := range plan {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", i+1, t.Key, t.Reason)
		fmt.Fprintf(tw, "\t\t  $ %s\n", t.Command)
	}
	return tw.Flush()
}
