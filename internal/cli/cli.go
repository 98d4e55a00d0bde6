// Package cli implements the seqflow command line.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/aristath/seqflow/internal/backend"
	"github.com/aristath/seqflow/internal/config"
	"github.com/aristath/seqflow/internal/ctxlog"
	"github.com/aristath/seqflow/internal/graph"
)

// Exit codes.
const (
	ExitOK           = 0
	ExitFailed       = 1 // one or more tasks failed, or the run aborted
	ExitConstruction = 2 // bad usage, config, manifest, rules or graph
)

// ExitError carries the process exit code for err.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// Env is what a command needs from the process around it.
type Env struct {
	Stdout       io.Writer
	Stderr       io.Writer
	GlobalConfig string // global config file; empty skips it
	Procs        *backend.ProcessManager
}

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, env Env, args []string) error
}

var commands = []command{
	{"run", "execute the pipeline (or print the plan with --dry-run)", runCmd},
	{"graph", "print the task graph in Graphviz DOT", graphCmd},
	{"history", "show every recorded attempt of a task", historyCmd},
	{"runs", "list recent runs", runsCmd},
	{"init-config", "write a starter config file", initConfigCmd},
}

// Main runs the command named by args[0] and returns the exit code.
func Main(ctx context.Context, env Env, args []string) int {
	err := Run(ctx, env, args)
	if err == nil {
		return ExitOK
	}
	code := ExitCode(err)
	if !errors.Is(err, flag.ErrHelp) && code != ExitOK {
		var ee *ExitError
		if !errors.As(err, &ee) || ee.Err != nil {
			fmt.Fprintf(env.Stderr, "seqflow: %v\n", err)
		}
	}
	return code
}

// Run dispatches args to a subcommand.
func Run(ctx context.Context, env Env, args []string) error {
	if len(args) == 0 {
		usage(env.Stderr)
		return &ExitError{Code: ExitConstruction}
	}
	name := args[0]
	if name == "help" || name == "-h" || name == "--help" {
		usage(env.Stdout)
		return nil
	}
	for _, c := range commands {
		if c.name == name {
			return c.run(ctx, env, args[1:])
		}
	}
	usage(env.Stderr)
	return &ExitError{Code: ExitConstruction, Err: fmt.Errorf("unknown command %q", name)}
}

// ExitCode maps err to a process exit code.
func ExitCode(err error) int {
	if err == nil || errors.Is(err, flag.ErrHelp) {
		return ExitOK
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	if graph.IsConstructionError(err) {
		return ExitConstruction
	}
	return ExitFailed
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: seqflow <command> [flags]")
	fmt.Fprintln(w)
	for _, c := range commands {
		fmt.Fprintf(w, "  %-12s %s\n", c.name, c.usage)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'seqflow <command> -h' for the flags of a command.")
}

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// common holds the flags every pipeline command accepts.
type common struct {
	configPath string
	manifest   string
	rulesFile  string
	workdir    string
	logLevel   string
	logFormat  string
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "project config file (default .seqflow/config.json)")
	fs.StringVar(&c.manifest, "manifest", "", "sample manifest, overrides the config")
	fs.StringVar(&c.rulesFile, "rules", "", "HCL rules file, overrides the config")
	fs.StringVar(&c.workdir, "workdir", "", "working directory, overrides the config")
	fs.StringVar(&c.logLevel, "log-level", "info", "debug, info, warn or error")
	fs.StringVar(&c.logFormat, "log-format", "text", "text or json")
}

// load reads the global and project config and applies flag overrides.
func (c *common) load(env Env) (*config.PipelineConfig, error) {
	project := c.configPath
	if project == "" {
		_, project, _ = config.DefaultPaths()
	}
	cfg, err := config.Load(env.GlobalConfig, project)
	if err != nil {
		return nil, &ExitError{Code: ExitConstruction, Err: err}
	}
	if c.manifest != "" {
		cfg.Manifest = c.manifest
	}
	if c.rulesFile != "" {
		cfg.RulesFile = c.rulesFile
	}
	if c.workdir != "" {
		cfg.Workdir = c.workdir
	}
	return cfg, nil
}

func (c *common) withLogger(ctx context.Context, w io.Writer) context.Context {
	return ctxlog.WithLogger(ctx, ctxlog.New(c.logLevel, c.logFormat, w))
}

// parse parses args, turning flag errors into usage exits.
func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return &ExitError{Code: ExitConstruction}
	}
	return nil
}

func newFlagSet(name string, env Env) *flag.FlagSet {
	fs := flag.NewFlagSet("seqflow "+name, flag.ContinueOnError)
	fs.SetOutput(env.Stderr)
	return fs
}
