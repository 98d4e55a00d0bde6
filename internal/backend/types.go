package backend

import (
	"context"
	"strings"
	"time"
)

// Command is a fully resolved external invocation. No shell is involved
// unless Program is one.
type Command struct {
	Program string
	Args    []string
	Env     []string // extra KEY=VALUE pairs on top of the inherited environment
	Dir     string   // working directory; empty means the runner's default
}

// String renders the command shell-quoted, for dry runs and log headers.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, shellQuote(c.Program))
	for _, a := range c.Args {
		parts = append(parts, shellQuote(a))
	}
	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, func(r rune) bool {
		return !(r == '-' || r == '_' || r == '.' || r == '/' || r == '=' || r == ':' || r == ',' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'))
	}) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Request asks a Runner to execute one task's command.
type Request struct {
	TaskKey string
	Command Command
	LogPath string        // append-only diagnostic stream for this task
	Timeout time.Duration // 0 means no limit
}

// Result describes how the external process ended.
type Result struct {
	ExitCode int // -1 when killed by a signal, timeout or cancellation
	LogPath  string
	TimedOut bool
	Canceled bool
	Duration time.Duration
}

// Success reports whether the process exited cleanly.
func (r Result) Success() bool {
	return r.ExitCode == 0 && !r.TimedOut && !r.Canceled
}

// Runner is the side-effect boundary of a task. A non-nil error means the
// process could not be run at all (missing binary, unwritable log); a
// process that ran and failed is reported through Result.
type Runner interface {
	Run(ctx context.Context, req Request) (Result, error)
}
