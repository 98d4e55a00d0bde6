// Package rules holds parameterized task templates and the catalog they are
// registered in.
package rules

import (
	"fmt"
	"time"

	"github.com/aristath/seqflow/internal/backend"
	"github.com/aristath/seqflow/internal/manifest"
)

// Scope says what a rule is instantiated over.
type Scope int

const (
	ScopeSample Scope = iota // one task per sample (fan-out)
	ScopeGroup               // one task per merge-group (fan-in)
	ScopeGlobal              // exactly one task
)

func (s Scope) String() string {
	switch s {
	case ScopeSample:
		return "sample"
	case ScopeGroup:
		return "group"
	case ScopeGlobal:
		return "global"
	default:
		return fmt.Sprintf("Scope(%d)", int(s))
	}
}

// ParseScope parses "sample", "group" or "global". Empty means sample.
func ParseScope(s string) (Scope, error) {
	switch s {
	case "", "sample":
		return ScopeSample, nil
	case "group":
		return ScopeGroup, nil
	case "global":
		return ScopeGlobal, nil
	default:
		return 0, fmt.Errorf("unknown scope %q (want sample, group or global)", s)
	}
}

// ToolBinding pins an external tool to a command and version.
type ToolBinding struct {
	Name    string
	Command string
	Version string
}

// Resources is what a task occupies while running.
type Resources struct {
	Threads   int      // slots taken from the pool capacity; <1 counts as 1
	Exclusive []string // named resources no two running tasks may share
}

// Weight returns the number of pool slots the task occupies.
func (r Resources) Weight() int {
	if r.Threads < 1 {
		return 1
	}
	return r.Threads
}

// Binding is everything a command builder may look at.
type Binding struct {
	Key     string
	Rule    string
	Sample  string
	Group   string
	Inputs  []string
	Outputs []string
	Params  map[string]string
	Threads int
	Tool    ToolBinding
}

// CommandBuilder turns a resolved binding into an external command. It must
// be pure: the same binding always yields the same command.
type CommandBuilder func(b Binding) (backend.Command, error)

// Wildcards is the expansion context handed to path patterns.
type Wildcards struct {
	Sample  *manifest.Sample  // bound sample, sample scope only
	Group   string            // bound group, group scope only
	Samples []manifest.Sample // domain for sample placeholders (group members or all samples)
	Groups  []string          // domain for {group} in global scope
}

// PathSource resolves a rule's input or output paths for one binding.
type PathSource interface {
	Resolve(w Wildcards) ([]string, error)
}

// PathFunc adapts a function to PathSource.
type PathFunc func(w Wildcards) ([]string, error)

// Resolve calls f.
func (f PathFunc) Resolve(w Wildcards) ([]string, error) {
	return f(w)
}

// RuleTemplate is a parameterized task template. Immutable once registered.
type RuleTemplate struct {
	Name      string
	Scope     Scope
	Tool      string // key into the catalog's tool bindings; empty for none
	Inputs    PathSource
	Outputs   PathSource
	Params    map[string]string
	Command   CommandBuilder
	Resources Resources
	Timeout   time.Duration // 0 means no limit
	Retries   int
	Env       map[string]string
}

func (t *RuleTemplate) validate() error {
	if t.Name == "" {
		return &TemplateError{Msg: "rule has no name"}
	}
	if t.Outputs == nil {
		return &TemplateError{Rule: t.Name, Msg: "no outputs declared"}
	}
	if t.Command == nil {
		return &TemplateError{Rule: t.Name, Msg: "no command"}
	}
	if t.Retries < 0 {
		return &TemplateError{Rule: t.Name, Msg: "retries must not be negative"}
	}
	if t.Timeout < 0 {
		return &TemplateError{Rule: t.Name, Msg: "timeout must not be negative"}
	}
	return nil
}
