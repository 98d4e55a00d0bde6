package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aristath/seqflow/internal/backend"
	"github.com/aristath/seqflow/internal/cli"
	"github.com/aristath/seqflow/internal/config"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	// Create signal-aware context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Subprocesses of in-flight tasks, killed on shutdown
	pm := backend.NewProcessManager()

	global, _, err := config.DefaultPaths()
	if err != nil {
		slog.Warn("skipping global config", "error", err)
		global = ""
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			// Restore default signal handling (second Ctrl+C = force exit)
			stop()
			slog.Warn("shutdown signal received, stopping running tasks")
			if err := pm.KillAll(); err != nil {
				slog.Error("killing subprocesses", "error", err)
			}
		case <-done:
		}
	}()

	return cli.Main(ctx, cli.Env{
		Stdout:       stdout,
		Stderr:       stderr,
		GlobalConfig: global,
		Procs:        pm,
	}, args)
}
