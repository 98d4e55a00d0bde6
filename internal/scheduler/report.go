package scheduler

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
)

// TaskReport is the terminal record of one task in a run.
type TaskReport struct {
	Key         string
	Rule        string
	State       State
	Reason      string // why it ran, or which task blocked it
	BlockedBy   string
	Attempts    int
	Duration    time.Duration
	ExitCode    int
	LogPath     string
	OutputBytes int64
	Err         error
}

// Report is the outcome of a run. Tasks are in topological order.
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Tasks      []TaskReport
}

func (r *run) report(started, finished time.Time) *Report {
	rep := &Report{
		RunID:      r.s.opts.RunID,
		StartedAt:  started,
		FinishedAt: finished,
		Tasks:      make([]TaskReport, 0, len(r.tasks)),
	}
	for _, t := range r.tasks {
		rep.Tasks = append(rep.Tasks, TaskReport{
			Key:         t.node.Key,
			Rule:        t.node.Rule,
			State:       t.state,
			Reason:      t.reason,
			BlockedBy:   t.blockedBy,
			Attempts:    t.attempts,
			Duration:    t.duration,
			ExitCode:    t.exitCode,
			LogPath:     t.logPath,
			OutputBytes: t.outBytes,
			Err:         t.err,
		})
	}
	return rep
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Count returns the number of tasks that ended in state s.
func (r *Report) Count(s State) int {
	n := 0
	for _, t := range r.Tasks {
		if t.State == s {
			n++
		}
	}
	return n
}

// Success reports whether every task either ran successfully or was current.
func (r *Report) Success() bool {
	for _, t := range r.Tasks {
		if t.State != StateSucceeded && t.State != StateUpToDate {
			return false
		}
	}
	return true
}

// Task returns the report of one task.
func (r *Report) Task(key string) (TaskReport, bool) {
	for _, t := range r.Tasks {
		if t.Key == key {
			return t, true
		}
	}
	return TaskReport{}, false
}

// Failures returns the failed tasks, each the head of a failed branch.
func (r *Report) Failures() []TaskReport {
	var out []TaskReport
	for _, t := range r.Tasks {
		if t.State == StateFailed {
			out = append(out, t)
		}
	}
	return out
}

// BlockedBy returns the keys blocked by the failed task key.
func (r *Report) BlockedBy(key string) []string {
	var out []string
	for _, t := range r.Tasks {
		if t.BlockedBy == key {
			out = append(out, t.Key)
		}
	}
	return out
}

// WriteText renders the report for a terminal.
func (r *Report) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "run %s finished in %s: %d succeeded, %d up-to-date, %d failed, %d blocked, %d never-dispatched\n",
		r.RunID,
		r.Duration().Round(time.Millisecond),
		r.Count(StateSucceeded),
		r.Count(StateUpToDate),
		r.Count(StateFailed),
		r.Count(StateBlocked),
		r.Count(StateCancelled))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, t := range r.Tasks {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", t.State, t.Key, detail(t))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	failures := r.Failures()
	if len(failures) == 0 {
		return nil
	}
	fmt.Fprintln(w, "failures:")
	for _, t := range failures {
		fmt.Fprintf(w, "  %v\n", t.Err)
		if blocked := r.BlockedBy(t.Key); len(blocked) > 0 {
			fmt.Fprintf(w, "    blocked %s: %s\n", plural(len(blocked), "task", "tasks"), strings.Join(blocked, ", "))
		}
	}
	return nil
}

func detail(t TaskReport) string {
	switch t.State {
	case StateSucceeded:
		s := fmt.Sprintf("%s  %s", t.Duration.Round(time.Millisecond), humanize.Bytes(uint64(t.OutputBytes)))
		if t.Attempts > 1 {
			s += fmt.Sprintf("  on %s attempt", humanize.Ordinal(t.Attempts))
		}
		return s
	case StateFailed:
		if t.ExitCode > 0 {
			return fmt.Sprintf("%s  exit %d  log: %s", t.Duration.Round(time.Millisecond), t.ExitCode, t.LogPath)
		}
		return fmt.Sprintf("%s  log: %s", t.Duration.Round(time.Millisecond), t.LogPath)
	case StateBlocked:
		return "blocked by " + t.BlockedBy
	default:
		return ""
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return humanize.Comma(int64(n)) + " " + many
}
