package scheduler

import "fmt"

// TaskExecutionError is the failure of one task. It stays local to the task
// and its descendants.
type TaskExecutionError struct {
	TaskKey  string
	ExitCode int
	TimedOut bool
	Canceled bool
	LogPath  string
	Err      error // set when the process could not run or outputs were missing
}

func (e *TaskExecutionError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("task %s: %v (log: %s)", e.TaskKey, e.Err, e.LogPath)
	case e.TimedOut:
		return fmt.Sprintf("task %s timed out (log: %s)", e.TaskKey, e.LogPath)
	case e.Canceled:
		return fmt.Sprintf("task %s canceled", e.TaskKey)
	default:
		return fmt.Sprintf("task %s exited with status %d (log: %s)", e.TaskKey, e.ExitCode, e.LogPath)
	}
}

func (e *TaskExecutionError) Unwrap() error { return e.Err }
