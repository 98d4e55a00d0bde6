package rules

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/aristath/seqflow/internal/manifest"
)

const countRules = `
rule "count_reads" {
  tool    = "samtools"
  inputs  = ["dedup/{sample}.bam"]
  outputs = ["counts/{sample}.txt"]
  command = ["sh", "-c", "{tool} view -c {i:0} > {o:0}"]
  params  = { min_mapq = 30, primary_only = true, label = "dedup" }
  threads = 2
  timeout = "30m"
  retries = 1
  exclusive = ["disk"]
}

rule "group_summary" {
  scope   = "group"
  inputs  = ["counts/{sample}.txt"]
  outputs = ["summary/{group}.txt"]
  command = ["sh", "-c", "cat {i} > {o:0}"]
}
`

func TestParseHCL(t *testing.T) {
	cat := NewCatalog(map[string]ToolBinding{"samtools": {Command: "samtools"}})
	if err := ParseHCL(cat, []byte(countRules), "rules.hcl"); err != nil {
		t.Fatalf("ParseHCL() error = %v", err)
	}

	count, ok := cat.Get("count_reads")
	if !ok {
		t.Fatal("count_reads not registered")
	}
	if count.Scope != ScopeSample {
		t.Errorf("scope = %v, want sample", count.Scope)
	}
	if count.Timeout != 30*time.Minute || count.Retries != 1 {
		t.Errorf("timeout/retries = %v/%d", count.Timeout, count.Retries)
	}
	if diff := cmp.Diff(Resources{Threads: 2, Exclusive: []string{"disk"}}, count.Resources); diff != "" {
		t.Errorf("resources mismatch (-want +got):\n%s", diff)
	}
	wantParams := map[string]string{"min_mapq": "30", "primary_only": "true", "label": "dedup"}
	if diff := cmp.Diff(wantParams, count.Params); diff != "" {
		t.Errorf("params mismatch (-want +got):\n%s", diff)
	}

	s := manifest.Sample{ID: "s1", Group: "g"}
	out, err := count.Outputs.Resolve(Wildcards{Sample: &s})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	cmd, err := count.Command(Binding{
		Rule: "count_reads", Sample: "s1", Inputs: []string{"dedup/s1.bam"}, Outputs: out,
		Tool: ToolBinding{Command: "samtools"},
	})
	if err != nil {
		t.Fatalf("Command() error = %v", err)
	}
	if got, want := cmd.Args[1], "samtools view -c dedup/s1.bam > counts/s1.txt"; got != want {
		t.Errorf("script = %q, want %q", got, want)
	}

	summary, _ := cat.Get("group_summary")
	if summary.Scope != ScopeGroup || summary.Params != nil {
		t.Errorf("group_summary = scope %v params %v", summary.Scope, summary.Params)
	}
}

func TestLoadHCL_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.hcl")
	if err := os.WriteFile(path, []byte(countRules), 0644); err != nil {
		t.Fatal(err)
	}
	cat := NewCatalog(map[string]ToolBinding{"samtools": {Command: "samtools"}})
	if err := LoadHCL(cat, path); err != nil {
		t.Fatalf("LoadHCL() error = %v", err)
	}
	if cat.Len() != 2 {
		t.Errorf("Len() = %d, want 2", cat.Len())
	}
}

func TestParseHCL_Errors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantDup bool
		wantTpl bool
	}{
		{
			name: "syntax error",
			src:  `rule "x" {`,
		},
		{
			name: "missing outputs",
			src:  `rule "x" { command = ["true"] }`,
		},
		{
			name: "bad scope",
			src: `
rule "x" {
  scope = "lane"
  outputs = ["a"]
  command = ["true"]
}`,
			wantTpl: true,
		},
		{
			name: "bad timeout",
			src: `
rule "x" {
  timeout = "soon"
  outputs = ["a"]
  command = ["true"]
}`,
			wantTpl: true,
		},
		{
			name: "nested params",
			src: `
rule "x" {
  params = { a = [1] }
  outputs = ["a"]
  command = ["true"]
}`,
			wantTpl: true,
		},
		{
			name: "unknown path placeholder",
			src: `
rule "x" {
  outputs = ["{lane}.txt"]
  command = ["true"]
}`,
			wantTpl: true,
		},
		{
			name: "duplicate names",
			src: `
rule "x" {
  outputs = ["a"]
  command = ["true"]
}
rule "x" {
  outputs = ["b"]
  command = ["true"]
}`,
			wantDup: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ParseHCL(NewCatalog(nil), []byte(tt.src), "rules.hcl")
			if err == nil {
				t.Fatal("ParseHCL() error = nil")
			}
			var dup *DuplicateRuleError
			if tt.wantDup && !errors.As(err, &dup) {
				t.Errorf("error = %v, want *DuplicateRuleError", err)
			}
			var terr *TemplateError
			if tt.wantTpl && !errors.As(err, &terr) {
				t.Errorf("error = %v, want *TemplateError", err)
			}
		})
	}
}
