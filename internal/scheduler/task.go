package scheduler

import (
	"time"

	"github.com/aristath/seqflow/internal/graph"
)

// State is the lifecycle state of a task within one run.
type State int

const (
	StatePending   State = iota // Waiting for predecessors
	StateReady                  // Predecessors settled and outputs stale
	StateRunning                // Dispatched to a worker
	StateSucceeded              // Ran, exited cleanly, outputs verified
	StateFailed                 // Ran and failed, or outputs missing afterwards
	StateBlocked                // An upstream task failed
	StateUpToDate               // Outputs current, not dispatched
	StateCancelled              // Never dispatched because the run stopped
)

var stateNames = [...]string{
	StatePending:   "pending",
	StateReady:     "ready",
	StateRunning:   "running",
	StateSucceeded: "succeeded",
	StateFailed:    "failed",
	StateBlocked:   "blocked",
	StateUpToDate:  "up-to-date",
	StateCancelled: "never-dispatched",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Terminal reports whether no further transition can happen in this run.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateBlocked, StateUpToDate, StateCancelled:
		return true
	}
	return false
}

// task is the coordinator's bookkeeping for one graph node.
type task struct {
	node      *graph.TaskNode
	state     State
	indegree  int
	weight    int64
	reason    string // why it is stale, or which task blocked it
	attempts  int
	started   time.Time
	duration  time.Duration
	exitCode  int
	logPath   string
	outBytes  int64
	err       error
	blockedBy string
}
