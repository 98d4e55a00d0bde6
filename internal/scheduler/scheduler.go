// Package scheduler walks a task graph, re-running only the tasks whose
// outputs are stale, under a weighted concurrency limit.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/aristath/seqflow/internal/backend"
	"github.com/aristath/seqflow/internal/ctxlog"
	"github.com/aristath/seqflow/internal/events"
	"github.com/aristath/seqflow/internal/graph"
	"github.com/aristath/seqflow/internal/ledger"
)

// Options configures a Scheduler.
type Options struct {
	Capacity    int      // pool slots; values below 1 mean 1
	Force       []string // task keys whose up-to-date check is skipped
	RunID       string   // generated when empty
	LogDir      string   // per-task log directory
	HashOutputs bool     // record SHA-256 of outputs
	Retry       RetryPolicy
	Bus         *events.EventBus // optional
	Breakers    *BreakerRegistry // optional, shared across runs
}

// Scheduler executes one graph against one ledger.
type Scheduler struct {
	graph    *graph.Graph
	runner   backend.Runner
	ledger   ledger.Ledger
	opts     Options
	force    map[string]bool
	locks    *ResourceLockManager
	breakers *BreakerRegistry
}

// New creates a Scheduler. Forcing a key that is not in g is an
// UnknownTaskError.
func New(g *graph.Graph, runner backend.Runner, l ledger.Ledger, opts Options) (*Scheduler, error) {
	if opts.Capacity < 1 {
		opts.Capacity = 1
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.Retry == (RetryPolicy{}) {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.Breakers == nil {
		opts.Breakers = NewBreakerRegistry(nil)
	}

	force := make(map[string]bool, len(opts.Force))
	for _, key := range opts.Force {
		if _, ok := g.Node(key); !ok {
			return nil, &graph.UnknownTaskError{Key: key}
		}
		force[key] = true
	}

	return &Scheduler{
		graph:    g,
		runner:   runner,
		ledger:   l,
		opts:     opts,
		force:    force,
		locks:    NewResourceLockManager(),
		breakers: opts.Breakers,
	}, nil
}

// RunID returns the identifier this scheduler records its run under.
func (s *Scheduler) RunID() string { return s.opts.RunID }

// completion is what a worker hands back to the coordinator.
type completion struct {
	idx      int
	res      backend.Result
	attempts int
	outputs  []ledger.OutputFingerprint
	err      error
}

// run is the state of one Run call. Only the coordinator goroutine touches
// it; workers communicate through results.
type run struct {
	s       *Scheduler
	ctx     context.Context
	logger  *slog.Logger
	tasks   []*task
	index   map[string]int
	fps     []string
	ready   []int
	sem     *semaphore.Weighted
	results chan completion
	group   errgroup.Group
	writer  *ledger.Writer
	running int
}

// Run executes every stale task of the graph. Task failures are reported in
// the Report, not returned. The error is non-nil when the run was canceled
// or the ledger failed; the Report is still returned in both cases.
func (s *Scheduler) Run(ctx context.Context) (*Report, error) {
	logger := ctxlog.FromContext(ctx).With("run_id", s.opts.RunID)
	started := time.Now()

	if err := s.ledger.StartRun(ctx, s.opts.RunID, started); err != nil {
		return nil, asLedgerError(err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	order := s.graph.Order()
	r := &run{
		s:       s,
		ctx:     runCtx,
		logger:  logger,
		tasks:   make([]*task, len(order)),
		index:   make(map[string]int, len(order)),
		fps:     make([]string, len(order)),
		sem:     semaphore.NewWeighted(int64(s.opts.Capacity)),
		results: make(chan completion, len(order)),
		writer:  ledger.NewWriter(ctx, s.ledger, len(order)+1),
	}
	for i, key := range order {
		n, _ := s.graph.Node(key)
		fp, err := Fingerprint(n)
		if err != nil {
			r.writer.Close()
			return nil, err
		}
		r.index[key] = i
		r.fps[i] = fp
		r.tasks[i] = &task{
			node:     n,
			indegree: len(s.graph.Predecessors(key)),
			weight:   int64(min(n.Resources.Weight(), s.opts.Capacity)),
		}
	}

	logger.Info("run started", "tasks", len(order), "capacity", s.opts.Capacity)

	var fatal error
	for i, t := range r.tasks {
		// release may already have settled a root's successors.
		if t.indegree == 0 && t.state == StatePending {
			if err := r.evaluate(i); err != nil {
				fatal = err
				break
			}
		}
	}
	r.progress()

	stopping := fatal != nil
	if stopping {
		cancel()
	}
	done := ctx.Done()
	failed := r.writer.Failed()

	for {
		if !stopping {
			r.dispatch()
			if r.running == 0 && len(r.ready) > 0 {
				fatal = errors.New("ready tasks cannot be dispatched")
				break
			}
		}
		if r.running == 0 && (stopping || len(r.ready) == 0) {
			break
		}

		select {
		case c := <-r.results:
			if err := r.complete(c, stopping); err != nil && fatal == nil {
				fatal = err
				stopping = true
				cancel()
			}
		case <-done:
			done = nil
			if !stopping {
				logger.Warn("run canceled, waiting for running tasks", "running", r.running)
				stopping = true
				cancel()
			}
		case <-failed:
			failed = nil
			if fatal == nil {
				fatal = asLedgerError(r.writer.Err())
				logger.Error("ledger write failed, aborting run", "error", fatal)
			}
			stopping = true
			cancel()
		}
	}

	r.group.Wait()
	if err := r.writer.Close(); err != nil && fatal == nil {
		fatal = asLedgerError(err)
	}

	for _, t := range r.tasks {
		if !t.state.Terminal() {
			t.state = StateCancelled
		}
	}

	report := r.report(started, time.Now())
	summary := ledger.RunSummary{
		RunID:      s.opts.RunID,
		StartedAt:  started,
		FinishedAt: report.FinishedAt,
		Succeeded:  report.Count(StateSucceeded),
		Failed:     report.Count(StateFailed),
		Blocked:    report.Count(StateBlocked),
	}
	if err := s.ledger.FinishRun(context.WithoutCancel(ctx), summary); err != nil && fatal == nil {
		fatal = asLedgerError(err)
	}

	s.opts.Bus.Emit(events.RunFinishedEvent{
		RunID:     s.opts.RunID,
		Success:   fatal == nil && report.Success(),
		Duration:  report.Duration(),
		Timestamp: report.FinishedAt,
	})
	logger.Info("run finished",
		"succeeded", summary.Succeeded,
		"up_to_date", report.Count(StateUpToDate),
		"failed", summary.Failed,
		"blocked", summary.Blocked,
		"never_dispatched", report.Count(StateCancelled),
		"duration", report.Duration().Round(time.Millisecond))

	if fatal == nil && ctx.Err() != nil {
		fatal = ctx.Err()
	}
	return report, fatal
}

// evaluate decides a task whose predecessors have all settled.
func (r *run) evaluate(i int) error {
	t := r.tasks[i]
	reason, err := r.s.staleness(r.ctx, t.node, r.fps[i])
	if err != nil {
		return err
	}
	if reason == "" {
		t.state = StateUpToDate
		r.logger.Debug("task up to date", "task", t.node.Key)
		r.s.opts.Bus.Emit(events.TaskUpToDateEvent{ID: t.node.Key, Timestamp: time.Now()})
		return r.release(i)
	}
	t.state = StateReady
	t.reason = reason
	r.logger.Debug("task stale", "task", t.node.Key, "reason", reason)
	r.ready = append(r.ready, i)
	return nil
}

// release counts a settled task off its successors.
func (r *run) release(i int) error {
	for _, succ := range r.s.graph.Successors(r.tasks[i].node.Key) {
		j := r.index[succ]
		t := r.tasks[j]
		t.indegree--
		if t.indegree == 0 && t.state == StatePending {
			if err := r.evaluate(j); err != nil {
				return err
			}
		}
	}
	return nil
}

// dispatch starts every ready task that fits, first-fit in ready order.
func (r *run) dispatch() {
	remaining := r.ready[:0]
	for _, i := range r.ready {
		t := r.tasks[i]
		exclusive := t.node.Resources.Exclusive
		if !r.s.locks.TryLockAll(exclusive) {
			remaining = append(remaining, i)
			continue
		}
		if !r.sem.TryAcquire(t.weight) {
			r.s.locks.UnlockAll(exclusive)
			remaining = append(remaining, i)
			continue
		}
		r.start(i)
	}
	r.ready = remaining
}

func (r *run) start(i int) {
	t := r.tasks[i]
	n := t.node
	t.state = StateRunning
	t.started = time.Now()
	t.logPath = filepath.Join(r.s.opts.LogDir, backend.LogFileName(n.Key))
	r.running++

	r.logger.Info("task started", "task", n.Key, "reason", t.reason, "weight", t.weight)
	r.s.opts.Bus.Emit(events.TaskStartedEvent{
		ID:        n.Key,
		Rule:      n.Rule,
		Sample:    n.Sample,
		Group:     n.Group,
		Command:   n.Command.String(),
		LogPath:   t.logPath,
		Timestamp: t.started,
	})
	r.progress()

	logPath := t.logPath
	r.group.Go(func() error {
		r.results <- r.s.execute(r.ctx, i, n, logPath)
		return nil
	})
}

// execute runs one task on a worker goroutine. It must not touch run state.
func (s *Scheduler) execute(ctx context.Context, i int, n *graph.TaskNode, logPath string) completion {
	for _, out := range n.Outputs {
		if err := os.MkdirAll(filepath.Dir(s.graph.Path(out)), 0755); err != nil {
			return completion{idx: i, res: backend.Result{ExitCode: -1}, err: &TaskExecutionError{TaskKey: n.Key, ExitCode: -1, LogPath: logPath, Err: err}}
		}
	}

	req := backend.Request{
		TaskKey: n.Key,
		Command: n.Command,
		LogPath: logPath,
		Timeout: n.Timeout,
	}

	tool := n.Tool.Name
	if tool == "" {
		tool = n.Command.Program
	}
	notify := func(attempt int, err error, delay time.Duration) {
		ctxlog.FromContext(ctx).Warn("task attempt failed, retrying", "task", n.Key, "attempt", attempt, "delay", delay, "error", err)
		s.opts.Bus.Emit(events.TaskRetryingEvent{ID: n.Key, Attempt: attempt, Delay: delay, Err: err, Timestamp: time.Now()})
	}

	res, attempts, err := runWithRetry(ctx, s.runner, req, n.Retries, s.breakers.Get(tool), s.opts.Retry, notify)
	c := completion{idx: i, res: res, attempts: attempts}

	switch {
	case err != nil:
		c.err = &TaskExecutionError{TaskKey: n.Key, ExitCode: res.ExitCode, Canceled: res.Canceled, LogPath: logPath, Err: err}
	case !res.Success():
		c.err = &TaskExecutionError{TaskKey: n.Key, ExitCode: res.ExitCode, TimedOut: res.TimedOut, Canceled: res.Canceled, LogPath: logPath}
	default:
		outputs, ferr := ledger.FingerprintAll(s.graph.Root(), n.Outputs, s.opts.HashOutputs)
		if ferr != nil {
			c.err = &TaskExecutionError{TaskKey: n.Key, LogPath: logPath, Err: fmt.Errorf("declared output missing after successful exit: %w", ferr)}
		}
		c.outputs = outputs
	}
	return c
}

// complete applies a worker's result. Successors are only released while
// the run is still dispatching.
func (r *run) complete(c completion, stopping bool) error {
	t := r.tasks[c.idx]
	n := t.node
	r.sem.Release(t.weight)
	r.s.locks.UnlockAll(n.Resources.Exclusive)
	r.running--

	now := time.Now()
	t.attempts = c.attempts
	t.duration = now.Sub(t.started)
	t.exitCode = c.res.ExitCode

	if c.err == nil {
		t.state = StateSucceeded
		for _, o := range c.outputs {
			t.outBytes += o.Size
		}
		r.writer.Enqueue(ledger.Entry{
			TaskKey:     n.Key,
			Fingerprint: r.fps[c.idx],
			Status:      ledger.StatusSucceeded,
			ExitCode:    c.res.ExitCode,
			CompletedAt: now,
			Duration:    t.duration,
			Outputs:     c.outputs,
			LogPath:     t.logPath,
			RunID:       r.s.opts.RunID,
		})
		r.logger.Info("task succeeded", "task", n.Key, "duration", t.duration.Round(time.Millisecond), "attempts", c.attempts)
		r.s.opts.Bus.Emit(events.TaskCompletedEvent{ID: n.Key, Duration: t.duration, Timestamp: now})
		r.progress()
		if stopping {
			return nil
		}
		return r.release(c.idx)
	}

	t.state = StateFailed
	t.err = c.err

	var te *TaskExecutionError
	canceled := errors.As(c.err, &te) && te.Canceled
	if !canceled {
		r.writer.Enqueue(ledger.Entry{
			TaskKey:     n.Key,
			Fingerprint: r.fps[c.idx],
			Status:      ledger.StatusFailed,
			ExitCode:    c.res.ExitCode,
			CompletedAt: now,
			Duration:    t.duration,
			LogPath:     t.logPath,
			RunID:       r.s.opts.RunID,
		})
	}

	r.logger.Error("task failed", "task", n.Key, "error", c.err)
	r.s.opts.Bus.Emit(events.TaskFailedEvent{
		ID:        n.Key,
		Err:       c.err,
		ExitCode:  c.res.ExitCode,
		TimedOut:  c.res.TimedOut,
		LogPath:   t.logPath,
		Duration:  t.duration,
		Timestamp: now,
	})
	if !canceled {
		r.block(n.Key)
	}
	r.progress()
	return nil
}

// block marks every pending descendant of a failed task as Blocked.
func (r *run) block(failed string) {
	for _, key := range r.s.graph.Descendants(failed) {
		t := r.tasks[r.index[key]]
		if t.state != StatePending {
			continue
		}
		t.state = StateBlocked
		t.blockedBy = failed
		t.reason = "blocked by " + failed
		r.logger.Info("task blocked", "task", key, "blocked_by", failed)
		r.s.opts.Bus.Emit(events.TaskBlockedEvent{ID: key, BlockedBy: failed, Timestamp: time.Now()})
	}
}

func (r *run) progress() {
	if r.s.opts.Bus == nil {
		return
	}
	ev := events.DAGProgressEvent{Total: len(r.tasks), Timestamp: time.Now()}
	for _, t := range r.tasks {
		switch t.state {
		case StateSucceeded:
			ev.Succeeded++
		case StateUpToDate:
			ev.UpToDate++
		case StateRunning:
			ev.Running++
		case StateFailed:
			ev.Failed++
		case StateBlocked:
			ev.Blocked++
		default:
			ev.Pending++
		}
	}
	r.s.opts.Bus.Emit(ev)
}

func asLedgerError(err error) error {
	var lwe *ledger.LedgerWriteError
	if errors.As(err, &lwe) {
		return err
	}
	return &ledger.LedgerWriteError{Err: err}
}
