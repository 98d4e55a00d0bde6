// Package pipeline wires configuration, manifest, rules, graph, ledger and
// scheduler into one run.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aristath/seqflow/internal/backend"
	"github.com/aristath/seqflow/internal/config"
	"github.com/aristath/seqflow/internal/ctxlog"
	"github.com/aristath/seqflow/internal/events"
	"github.com/aristath/seqflow/internal/graph"
	"github.com/aristath/seqflow/internal/ledger"
	"github.com/aristath/seqflow/internal/manifest"
	"github.com/aristath/seqflow/internal/rules"
	"github.com/aristath/seqflow/internal/scheduler"
)

// Pipeline is a validated configuration linked into a task graph. Every
// construction error surfaces from Build, before any task runs.
type Pipeline struct {
	Config  *config.PipelineConfig
	Samples *manifest.Samples
	Catalog *rules.Catalog
	Graph   *graph.Graph
}

// Build validates cfg, loads the manifest and rules and links the graph.
// With targets the graph is restricted to what they need.
func Build(ctx context.Context, cfg *config.PipelineConfig, targets []string) (*Pipeline, error) {
	logger := ctxlog.FromContext(ctx)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	workdir, err := filepath.Abs(cfg.Workdir)
	if err != nil {
		return nil, fmt.Errorf("resolving workdir: %w", err)
	}
	cfg.Workdir = workdir

	manifestPath, err := filepath.Abs(cfg.Manifest)
	if err != nil {
		return nil, fmt.Errorf("resolving manifest path: %w", err)
	}
	samples, err := manifest.Load(manifestPath)
	if err != nil {
		return nil, err
	}
	logger.Info("manifest loaded", "path", manifestPath, "samples", samples.Len(), "groups", len(samples.Groups()))

	var cat *rules.Catalog
	if cfg.UseBuiltinRules() {
		if cat, err = rules.Builtin(cfg); err != nil {
			return nil, err
		}
		logger.Debug("builtin rules registered", "trim", cat.Trim.String())
	} else {
		cat = rules.NewCatalog(rules.ToolsFromConfig(cfg))
	}
	if cfg.RulesFile != "" {
		if err := rules.LoadHCL(cat, cfg.RulesFile); err != nil {
			return nil, err
		}
	}
	logger.Info("rules registered", "rules", cat.Len())

	b := graph.NewBuilder(samples, cat)
	if err := b.ExpandAll(); err != nil {
		return nil, err
	}
	g, err := b.Link(workdir)
	if err != nil {
		return nil, err
	}
	if len(targets) > 0 {
		if g, err = g.Subgraph(targets); err != nil {
			return nil, err
		}
	}
	logger.Info("graph linked", "tasks", g.Len(), "targets", len(targets))

	return &Pipeline{Config: cfg, Samples: samples, Catalog: cat, Graph: g}, nil
}

// OpenLedger opens the configured ledger file.
func (p *Pipeline) OpenLedger(ctx context.Context) (*ledger.SQLiteStore, error) {
	store, err := ledger.NewSQLiteStore(ctx, p.Config.LedgerFile())
	if err != nil {
		return nil, &ledger.LedgerWriteError{Err: err}
	}
	return store, nil
}

// RunOptions are the per-invocation settings of a run.
type RunOptions struct {
	Force    []string
	RunID    string
	Bus      *events.EventBus
	Procs    *backend.ProcessManager
	Runner   backend.Runner // defaults to a ProcessRunner in the workdir
	Breakers *scheduler.BreakerRegistry
}

// Scheduler builds the scheduler for one run over l.
func (p *Pipeline) Scheduler(l ledger.Ledger, opts RunOptions) (*scheduler.Scheduler, error) {
	logDir := p.Config.LogDirectory()
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	runner := opts.Runner
	if runner == nil {
		runner = backend.NewProcessRunner(p.Config.Workdir, opts.Procs)
	}

	retry := scheduler.DefaultRetryPolicy()
	if r := p.Config.Retry; r.InitialIntervalMS > 0 {
		retry.InitialInterval = r.InitialInterval()
		retry.MaxInterval = max(r.MaxInterval(), r.InitialInterval())
		retry.Multiplier = r.Multiplier
	}

	return scheduler.New(p.Graph, runner, l, scheduler.Options{
		Capacity:    p.Config.Jobs,
		Force:       opts.Force,
		RunID:       opts.RunID,
		LogDir:      logDir,
		HashOutputs: p.Config.HashOutputs,
		Retry:       retry,
		Bus:         opts.Bus,
		Breakers:    opts.Breakers,
	})
}

// Run opens the ledger, executes the graph and closes the ledger again.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (*scheduler.Report, error) {
	store, err := p.OpenLedger(ctx)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	s, err := p.Scheduler(store, opts)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	ctxlog.FromContext(ctx).Info("executing", "run_id", s.RunID(), "workdir", p.Config.Workdir, "jobs", p.Config.Jobs)
	report, err := s.Run(ctx)
	ctxlog.FromContext(ctx).Debug("run returned", "elapsed", time.Since(start).Round(time.Millisecond), "error", err)
	return report, err
}

// Plan returns the dry-run dispatch list. A missing ledger is not created.
func (p *Pipeline) Plan(ctx context.Context, force []string) ([]scheduler.PlannedTask, error) {
	var (
		store *ledger.SQLiteStore
		err   error
	)
	if _, statErr := os.Stat(p.Config.LedgerFile()); statErr == nil {
		store, err = p.OpenLedger(ctx)
	} else {
		store, err = ledger.NewMemoryStore(ctx)
	}
	if err != nil {
		return nil, err
	}
	defer store.Close()

	s, err := scheduler.New(p.Graph, nil, store, scheduler.Options{
		Capacity:    p.Config.Jobs,
		Force:       force,
		HashOutputs: p.Config.HashOutputs,
	})
	if err != nil {
		return nil, err
	}
	return s.Plan(ctx)
}
