package scheduler

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/mitchellh/hashstructure/v2"

	"github.com/aristath/seqflow/internal/graph"
	"github.com/aristath/seqflow/internal/ledger"
)

// fingerprintInput is everything that, when changed, invalidates outputs.
type fingerprintInput struct {
	Rule        string
	Inputs      []string
	Outputs     []string
	Params      map[string]string
	Program     string
	Args        []string
	Env         []string
	ToolCommand string
	ToolVersion string
}

// Fingerprint hashes the resolved parameters of a task. Equal tasks always
// produce equal fingerprints across runs.
func Fingerprint(n *graph.TaskNode) (string, error) {
	h, err := hashstructure.Hash(fingerprintInput{
		Rule:        n.Rule,
		Inputs:      n.Inputs,
		Outputs:     n.Outputs,
		Params:      n.Params,
		Program:     n.Command.Program,
		Args:        n.Command.Args,
		Env:         n.Command.Env,
		ToolCommand: n.Tool.Command,
		ToolVersion: n.Tool.Version,
	}, hashstructure.FormatV2, nil)
	if err != nil {
		return "", fmt.Errorf("fingerprinting %s: %w", n.Key, err)
	}
	return strconv.FormatUint(h, 16), nil
}

// staleness decides whether n must run. An empty reason means its outputs
// are current. Errors come only from the ledger.
func (s *Scheduler) staleness(ctx context.Context, n *graph.TaskNode, fp string) (string, error) {
	if s.force[n.Key] {
		return "forced", nil
	}

	// Outputs must exist; track the oldest.
	var oldest os.FileInfo
	var oldestPath string
	for _, out := range n.Outputs {
		info, err := os.Stat(s.graph.Path(out))
		if err != nil {
			return "missing output " + out, nil
		}
		if oldest == nil || info.ModTime().Before(oldest.ModTime()) {
			oldest, oldestPath = info, out
		}
	}

	if oldest != nil {
		for _, in := range n.Inputs {
			info, err := os.Stat(s.graph.Path(in))
			if err != nil {
				return "missing input " + in, nil
			}
			if info.ModTime().After(oldest.ModTime()) {
				return fmt.Sprintf("input %s is newer than output %s", in, oldestPath), nil
			}
		}
	}

	entry, err := s.ledger.Lookup(ctx, n.Key)
	if err != nil {
		return "", fmt.Errorf("ledger lookup for %s: %w", n.Key, err)
	}
	switch {
	case entry == nil:
		return "no ledger entry", nil
	case !entry.Succeeded():
		return "last attempt failed", nil
	case entry.Fingerprint != fp:
		return "parameters changed", nil
	}

	for _, rec := range entry.Outputs {
		if reason := s.outputDrift(rec); reason != "" {
			return reason, nil
		}
	}
	return "", nil
}

// outputDrift compares a recorded output with the file on disk.
func (s *Scheduler) outputDrift(rec ledger.OutputFingerprint) string {
	now, err := ledger.Fingerprint(s.graph.Root(), rec.Path, s.opts.HashOutputs && rec.SHA256 != "")
	if err != nil {
		return "missing output " + rec.Path
	}
	if now.Size != rec.Size {
		return fmt.Sprintf("output %s changed size since it was recorded", rec.Path)
	}
	if rec.SHA256 != "" && now.SHA256 != "" && now.SHA256 != rec.SHA256 {
		return fmt.Sprintf("output %s changed content since it was recorded", rec.Path)
	}
	return ""
}
