package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aristath/seqflow/internal/config"
	"github.com/aristath/seqflow/internal/manifest"
	"github.com/aristath/seqflow/internal/rules"
)

// ErrInvalidGraph is matched by every graph construction error.
var ErrInvalidGraph = errors.New("invalid task graph")

// CyclicDependencyError names the task keys of one dependency cycle. The
// first key is repeated at the end.
type CyclicDependencyError struct {
	Cycle []string
}

func (e *CyclicDependencyError) Error() string {
	return "cyclic dependency: " + strings.Join(e.Cycle, " -> ")
}

func (e *CyclicDependencyError) Is(target error) bool { return target == ErrInvalidGraph }

// MissingInput is one input path nothing produces and that does not exist.
type MissingInput struct {
	TaskKey string
	Path    string
}

// UnresolvedInputError lists every unresolved input found during linking.
type UnresolvedInputError struct {
	Missing []MissingInput
}

func (e *UnresolvedInputError) Error() string {
	parts := make([]string, 0, len(e.Missing))
	for _, m := range e.Missing {
		parts = append(parts, fmt.Sprintf("%s needs %s", m.TaskKey, m.Path))
	}
	return fmt.Sprintf("%d unresolved input(s): %s", len(e.Missing), strings.Join(parts, "; "))
}

func (e *UnresolvedInputError) Is(target error) bool { return target == ErrInvalidGraph }

// AmbiguousOutputError is returned when two tasks declare the same output.
type AmbiguousOutputError struct {
	Path      string
	Producers []string
}

func (e *AmbiguousOutputError) Error() string {
	return fmt.Sprintf("output %s declared by more than one task: %s", e.Path, strings.Join(e.Producers, ", "))
}

func (e *AmbiguousOutputError) Is(target error) bool { return target == ErrInvalidGraph }

// UnknownTargetError is returned for a target path no task produces.
type UnknownTargetError struct {
	Target string
}

func (e *UnknownTargetError) Error() string {
	return fmt.Sprintf("no task produces target %s", e.Target)
}

func (e *UnknownTargetError) Is(target error) bool { return target == ErrInvalidGraph }

// UnknownTaskError is returned for a forced task key that is not in the graph.
type UnknownTaskError struct {
	Key string
}

func (e *UnknownTaskError) Error() string {
	return fmt.Sprintf("cannot force %s: no task has that key", e.Key)
}

func (e *UnknownTaskError) Is(target error) bool { return target == ErrInvalidGraph }

// IsConstructionError reports whether err happened while building the graph
// or anything it is built from: config, manifest, rules, linking.
func IsConstructionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrInvalidGraph) {
		return true
	}
	var (
		cfgErr  *config.ConfigError
		manErr  *manifest.ManifestError
		dupErr  *rules.DuplicateRuleError
		tmplErr *rules.TemplateError
	)
	return errors.As(err, &cfgErr) || errors.As(err, &manErr) ||
		errors.As(err, &dupErr) || errors.As(err, &tmplErr)
}
