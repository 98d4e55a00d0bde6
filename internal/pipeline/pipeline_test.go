package pipeline

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/aristath/seqflow/internal/config"
	"github.com/aristath/seqflow/internal/graph"
	"github.com/aristath/seqflow/internal/scheduler"
)

const testRules = `
rule "count" {
  inputs  = ["{read1}"]
  outputs = ["counts/{sample}.txt"]
  command = ["sh", "-c", "test {sample} != $FAIL_SAMPLE && wc -l < {i:0} | tr -d ' ' > {o:0}"]
  env     = { FAIL_SAMPLE = "none" }
}

rule "merge" {
  scope   = "group"
  inputs  = ["counts/{sample}.txt"]
  outputs = ["merged/{group}.txt"]
  command = ["sh", "-c", "cat {i} > {o:0}"]
}

rule "report" {
  scope   = "global"
  inputs  = ["merged/{group}.txt"]
  outputs = ["report.txt"]
  command = ["sh", "-c", "cat {i} > {o:0}"]
}
`

// project lays out reads, a manifest and a rules file under a temp dir.
func project(t *testing.T, rules string) *config.PipelineConfig {
	t.Helper()
	dir := t.TempDir()

	write := func(rel, content string) {
		p := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	fastq := map[string]int{"A": 1, "B": 2, "C": 3}
	for id, n := range fastq {
		write("reads/"+id+"_1.fq", strings.Repeat("@r\nACGT\n+\nIIII\n", n))
		write("reads/"+id+"_2.fq", strings.Repeat("@r\nTGCA\n+\nIIII\n", n))
	}
	write("samples.tsv", "sample\tread1\tread2\tgroup\n"+
		"A\treads/A_1.fq\treads/A_2.fq\tG1\n"+
		"B\treads/B_1.fq\treads/B_2.fq\tG1\n"+
		"C\treads/C_1.fq\treads/C_2.fq\tG2\n")
	write("rules.hcl", rules)

	off := false
	cfg := config.DefaultConfig()
	cfg.Manifest = filepath.Join(dir, "samples.tsv")
	cfg.RulesFile = filepath.Join(dir, "rules.hcl")
	cfg.BuiltinRules = &off
	cfg.Workdir = dir
	cfg.Jobs = 2
	return cfg
}

func mustBuild(t *testing.T, cfg *config.PipelineConfig, targets ...string) *Pipeline {
	t.Helper()
	p, err := Build(context.Background(), cfg, targets)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return p
}

func mustRun(t *testing.T, p *Pipeline, opts RunOptions) *scheduler.Report {
	t.Helper()
	rep, err := p.Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return rep
}

func ran(rep *scheduler.Report) []string {
	var out []string
	for _, task := range rep.Tasks {
		if task.State == scheduler.StateSucceeded || task.State == scheduler.StateFailed {
			out = append(out, task.Key)
		}
	}
	return out
}

func ageAll(t *testing.T, root string, d time.Duration) {
	t.Helper()
	past := time.Now().Add(-d)
	err := filepath.WalkDir(root, func(p string, e fs.DirEntry, err error) error {
		if err != nil || e.IsDir() || strings.Contains(p, ".seqflow") {
			return err
		}
		return os.Chtimes(p, past, past)
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestEndToEnd(t *testing.T) {
	cfg := project(t, testRules)
	p := mustBuild(t, cfg)

	if p.Graph.Len() != 6 {
		t.Fatalf("graph has %d tasks, want 3 count + 2 merge + 1 report", p.Graph.Len())
	}

	rep := mustRun(t, p, RunOptions{})
	if !rep.Success() {
		var buf strings.Builder
		rep.WriteText(&buf)
		t.Fatalf("first run failed:\n%s", buf.String())
	}
	report, err := os.ReadFile(filepath.Join(cfg.Workdir, "report.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Fields(string(report)); !cmp.Equal(got, []string{"4", "8", "12"}) {
		t.Errorf("report.txt = %q, want line counts of A, B then C", report)
	}
	if _, err := os.Stat(filepath.Join(cfg.Workdir, ".seqflow", "logs", "count.A.log")); err != nil {
		t.Errorf("per-task log missing: %v", err)
	}

	// Nothing changed: nothing runs.
	rep = mustRun(t, mustBuild(t, cfg), RunOptions{})
	if got := ran(rep); len(got) != 0 {
		t.Errorf("second run executed %v, want nothing", got)
	}
	if rep.Count(scheduler.StateUpToDate) != 6 {
		t.Errorf("second run up-to-date count = %d, want 6", rep.Count(scheduler.StateUpToDate))
	}

	// A newer read re-runs its consumer and everything downstream of it.
	ageAll(t, cfg.Workdir, time.Hour)
	now := time.Now()
	if err := os.Chtimes(filepath.Join(cfg.Workdir, "reads", "B_1.fq"), now, now); err != nil {
		t.Fatal(err)
	}
	rep = mustRun(t, mustBuild(t, cfg), RunOptions{})
	if diff := cmp.Diff([]string{"count:B", "merge:G1", "report"}, ran(rep)); diff != "" {
		t.Errorf("third run mismatch (-want +got):\n%s", diff)
	}
}

func TestPartialFailure(t *testing.T) {
	cfg := project(t, strings.Replace(testRules, `FAIL_SAMPLE = "none"`, `FAIL_SAMPLE = "B"`, 1))
	rep := mustRun(t, mustBuild(t, cfg), RunOptions{})

	want := map[string]scheduler.State{
		"count:A":  scheduler.StateSucceeded,
		"count:B":  scheduler.StateFailed,
		"count:C":  scheduler.StateSucceeded,
		"merge:G1": scheduler.StateBlocked,
		"merge:G2": scheduler.StateSucceeded,
		"report":   scheduler.StateBlocked,
	}
	got := make(map[string]scheduler.State)
	for _, task := range rep.Tasks {
		got[task.Key] = task.State
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("states mismatch (-want +got):\n%s", diff)
	}

	failed, _ := rep.Task("count:B")
	var te *scheduler.TaskExecutionError
	if !errors.As(failed.Err, &te) || te.ExitCode != 1 {
		t.Errorf("count:B error = %v, want exit status 1", failed.Err)
	}
	if !strings.HasSuffix(te.LogPath, "count.B.log") {
		t.Errorf("LogPath = %q", te.LogPath)
	}
}

func TestTargetsRestrictTheRun(t *testing.T) {
	cfg := project(t, testRules)
	p := mustBuild(t, cfg, "merged/G2.txt")

	rep := mustRun(t, p, RunOptions{})
	if diff := cmp.Diff([]string{"count:C", "merge:G2"}, ran(rep)); diff != "" {
		t.Errorf("targeted run mismatch (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(filepath.Join(cfg.Workdir, "report.txt")); !os.IsNotExist(err) {
		t.Error("report.txt exists after a run targeting merged/G2.txt")
	}
}

func TestPlanDoesNotExecute(t *testing.T) {
	cfg := project(t, testRules)
	p := mustBuild(t, cfg)

	plan, err := p.Plan(context.Background(), nil)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(plan) != 6 {
		t.Errorf("plan has %d tasks, want 6", len(plan))
	}
	if plan[len(plan)-1].Key != "report" {
		t.Errorf("last planned task = %s, want report", plan[len(plan)-1].Key)
	}
	if _, err := os.Stat(cfg.LedgerFile()); !os.IsNotExist(err) {
		t.Error("dry run created the ledger")
	}
	if _, err := os.Stat(filepath.Join(cfg.Workdir, "counts")); !os.IsNotExist(err) {
		t.Error("dry run produced outputs")
	}
}

func TestBuildWithBuiltinRules(t *testing.T) {
	cfg := project(t, "")
	on, paired := true, true
	cfg.BuiltinRules = &on
	cfg.RulesFile = ""
	cfg.Params.PairedEnd = &paired
	cfg.Params.GenomeDir = "/ref/star"
	cfg.Params.Annotation = "/ref/genes.gtf"

	p := mustBuild(t, cfg)

	for _, key := range []string{"umi_extract:A", "trim:B", "align:C", "merge:G1", "multiqc"} {
		if _, ok := p.Graph.Node(key); !ok {
			t.Errorf("graph has no task %s", key)
		}
	}
	if preds := p.Graph.Predecessors("align:A"); !slices.Contains(preds, "trim:A") {
		t.Errorf("align:A predecessors = %v, want trim:A among them", preds)
	}
	if preds := p.Graph.Predecessors("multiqc"); !slices.Contains(preds, "align:B") {
		t.Errorf("multiqc predecessors = %v, want align:B among them", preds)
	}
}

func TestBuildConstructionErrors(t *testing.T) {
	tests := []struct {
		name    string
		rules   string
		mutate  func(*config.PipelineConfig)
		targets []string
		check   func(error) bool
	}{
		{
			name:   "missing manifest key",
			rules:  testRules,
			mutate: func(c *config.PipelineConfig) { c.Manifest = "" },
			check: func(err error) bool {
				var ce *config.ConfigError
				return errors.As(err, &ce) && ce.Key == "manifest"
			},
		},
		{
			name: "cycle",
			rules: `
rule "ping" {
  inputs  = ["pong/{sample}"]
  outputs = ["ping/{sample}"]
  command = ["true"]
}
rule "pong" {
  inputs  = ["ping/{sample}"]
  outputs = ["pong/{sample}"]
  command = ["true"]
}`,
			check: func(err error) bool {
				var ce *graph.CyclicDependencyError
				return errors.As(err, &ce)
			},
		},
		{
			name: "unresolved input",
			rules: `
rule "needs" {
  inputs  = ["nowhere/{sample}.bam"]
  outputs = ["x/{sample}"]
  command = ["true"]
}`,
			check: func(err error) bool {
				var ue *graph.UnresolvedInputError
				return errors.As(err, &ue)
			},
		},
		{
			name:    "unknown target",
			rules:   testRules,
			targets: []string{"merged/G9.txt"},
			check: func(err error) bool {
				var ue *graph.UnknownTargetError
				return errors.As(err, &ue)
			},
		},
		{
			name:  "unbound tool",
			rules: `rule "x" {` + "\n" + `  tool = "bwa"` + "\n" + `  outputs = ["x"]` + "\n" + `  command = ["{tool}"]` + "\n}",
			check: func(err error) bool {
				var ce *config.ConfigError
				return errors.As(err, &ce) && ce.Key == "tools.bwa"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := project(t, tt.rules)
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			_, err := Build(context.Background(), cfg, tt.targets)
			if err == nil {
				t.Fatal("Build() succeeded")
			}
			if !tt.check(err) {
				t.Errorf("Build() error = %v (%T), wrong kind", err, err)
			}
			if !graph.IsConstructionError(err) {
				t.Errorf("IsConstructionError(%v) = false", err)
			}
		})
	}
}
