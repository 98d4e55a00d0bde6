package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	TaskID() string
}

// Topic constants
const (
	TopicTask = "task"
	TopicDAG  = "dag"
)

// Event type constants
const (
	EventTypeTaskStarted   = "task.started"
	EventTypeTaskRetrying  = "task.retrying"
	EventTypeTaskCompleted = "task.completed"
	EventTypeTaskFailed    = "task.failed"
	EventTypeTaskBlocked   = "task.blocked"
	EventTypeTaskUpToDate  = "task.up_to_date"
	EventTypeDAGProgress   = "dag.progress"
	EventTypeRunFinished   = "dag.finished"
)

// TaskStartedEvent is published when a task is dispatched to a worker.
type TaskStartedEvent struct {
	ID        string
	Rule      string
	Sample    string
	Group     string
	Command   string
	LogPath   string
	Timestamp time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) TaskID() string    { return e.ID }

// TaskRetryingEvent is published before a failed attempt is retried.
type TaskRetryingEvent struct {
	ID        string
	Attempt   int // the attempt about to start, 2 for the first retry
	Delay     time.Duration
	Err       error
	Timestamp time.Time
}

func (e TaskRetryingEvent) EventType() string { return EventTypeTaskRetrying }
func (e TaskRetryingEvent) TaskID() string    { return e.ID }

// TaskCompletedEvent is published when a task succeeds and its outputs are verified.
type TaskCompletedEvent struct {
	ID        string
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) TaskID() string    { return e.ID }

// TaskFailedEvent is published when a task fails.
type TaskFailedEvent struct {
	ID        string
	Err       error
	ExitCode  int
	TimedOut  bool
	LogPath   string
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) TaskID() string    { return e.ID }

// TaskBlockedEvent is published when a task will not run because an
// upstream task failed.
type TaskBlockedEvent struct {
	ID        string
	BlockedBy string
	Timestamp time.Time
}

func (e TaskBlockedEvent) EventType() string { return EventTypeTaskBlocked }
func (e TaskBlockedEvent) TaskID() string    { return e.ID }

// TaskUpToDateEvent is published when a task is skipped because its outputs
// are current.
type TaskUpToDateEvent struct {
	ID        string
	Timestamp time.Time
}

func (e TaskUpToDateEvent) EventType() string { return EventTypeTaskUpToDate }
func (e TaskUpToDateEvent) TaskID() string    { return e.ID }

// DAGProgressEvent is published when DAG progress changes.
type DAGProgressEvent struct {
	Total     int
	Succeeded int
	UpToDate  int
	Running   int
	Failed    int
	Blocked   int
	Pending   int
	Timestamp time.Time
}

func (e DAGProgressEvent) EventType() string { return EventTypeDAGProgress }
func (e DAGProgressEvent) TaskID() string    { return "" }

// Done returns the number of tasks in a terminal state.
func (e DAGProgressEvent) Done() int {
	return e.Succeeded + e.UpToDate + e.Failed + e.Blocked
}

// RunFinishedEvent is published once, after the last task settles.
type RunFinishedEvent struct {
	RunID     string
	Success   bool
	Duration  time.Duration
	Timestamp time.Time
}

func (e RunFinishedEvent) EventType() string { return EventTypeRunFinished }
func (e RunFinishedEvent) TaskID() string    { return "" }

// TopicOf returns the topic an event belongs on.
func TopicOf(e Event) string {
	switch e.(type) {
	case DAGProgressEvent, RunFinishedEvent:
		return TopicDAG
	default:
		return TopicTask
	}
}
