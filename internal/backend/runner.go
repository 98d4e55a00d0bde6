package backend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ProcessRunner runs commands as local subprocesses, appending their
// stdout and stderr to the per-task log file.
type ProcessRunner struct {
	workDir string
	procMgr *ProcessManager
}

// NewProcessRunner creates a runner executing in workDir. The
// ProcessManager is optional; if nil, subprocesses are not tracked.
func NewProcessRunner(workDir string, procMgr *ProcessManager) *ProcessRunner {
	return &ProcessRunner{workDir: workDir, procMgr: procMgr}
}

// Run executes req.Command and waits for it.
func (r *ProcessRunner) Run(ctx context.Context, req Request) (Result, error) {
	res := Result{ExitCode: -1, LogPath: req.LogPath}

	logFile, err := openLog(req.LogPath)
	if err != nil {
		return res, err
	}
	defer logFile.Close()

	fmt.Fprintf(logFile, "=== %s %s\n$ %s\n", time.Now().UTC().Format(time.RFC3339), req.TaskKey, req.Command)

	runCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	cmd := newCommand(runCtx, req.Command.Program, req.Command.Args...)
	cmd.Dir = req.Command.Dir
	if cmd.Dir == "" {
		cmd.Dir = r.workDir
	}
	if len(req.Command.Env) > 0 {
		cmd.Env = append(os.Environ(), req.Command.Env...)
	}
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	start := time.Now()
	if err := cmd.Start(); err != nil {
		fmt.Fprintf(logFile, "=== failed to start: %v\n", err)
		return res, fmt.Errorf("failed to start %s: %w", req.Command.Program, err)
	}

	if r.procMgr != nil {
		r.procMgr.Track(cmd)
		defer r.procMgr.Untrack(cmd)
	}

	waitErr := cmd.Wait()
	res.Duration = time.Since(start)

	switch {
	case waitErr == nil:
		res.ExitCode = 0
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		res.TimedOut = true
	case ctx.Err() != nil:
		res.Canceled = true
	default:
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return res, fmt.Errorf("waiting for %s: %w", req.Command.Program, waitErr)
		}
		res.ExitCode = exitErr.ExitCode()
	}

	fmt.Fprintf(logFile, "=== exit %d after %s (timed out: %t, canceled: %t)\n",
		res.ExitCode, res.Duration.Round(time.Millisecond), res.TimedOut, res.Canceled)
	return res, nil
}

func openLog(path string) (*os.File, error) {
	if path == "" {
		return nil, fmt.Errorf("no log path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening task log: %w", err)
	}
	return f, nil
}

// LogFileName derives the per-task log file name from a task key, e.g.
// "align:S1" becomes "align.S1.log".
func LogFileName(taskKey string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r == ':':
			return '.'
		case r == '/' || r == '\\' || r == ' ' || r == os.PathSeparator:
			return '_'
		default:
			return r
		}
	}, taskKey)
	return name + ".log"
}
