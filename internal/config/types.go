package config

import (
	"path/filepath"
	"time"
)

// ToolConfig binds an external tool name to the command that runs it.
type ToolConfig struct {
	Command string `json:"command"`           // Binary or path (e.g., "STAR", "/opt/bin/samtools")
	Version string `json:"version,omitempty"` // Recorded in task parameters so upgrades invalidate outputs
}

// ParamsConfig holds the analysis parameters the builtin rules read.
type ParamsConfig struct {
	PairedEnd          *bool   `json:"paired_end,omitempty"` // Required: absent is an error
	Adapter            string  `json:"adapter"`
	TrimQuality        int     `json:"trim_quality"`
	TrimMinLength      int     `json:"trim_min_length"`
	UMILocation        string  `json:"umi_location"` // "read1" or "read2"
	UMILength          int     `json:"umi_length"`
	MinCoverage        int     `json:"min_coverage"`
	MinVariantFraction float64 `json:"min_variant_fraction"`
	MaxReadLength      int     `json:"max_read_length,omitempty"` // 0 disables read truncation
	MinBaseQuality     int     `json:"min_base_quality"`
	GenomeDir          string  `json:"genome_dir"`
	Annotation         string  `json:"annotation"`
	Reference          string  `json:"reference,omitempty"` // Enables variant calling when set
}

// RetryConfig shapes the backoff between retried task attempts.
type RetryConfig struct {
	InitialIntervalMS int     `json:"initial_interval_ms"`
	MaxIntervalMS     int     `json:"max_interval_ms"`
	Multiplier        float64 `json:"multiplier"`
}

// InitialInterval returns the first backoff delay.
func (r RetryConfig) InitialInterval() time.Duration {
	return time.Duration(r.InitialIntervalMS) * time.Millisecond
}

// MaxInterval returns the backoff delay cap.
func (r RetryConfig) MaxInterval() time.Duration {
	return time.Duration(r.MaxIntervalMS) * time.Millisecond
}

// PipelineConfig is the top-level configuration.
type PipelineConfig struct {
	Manifest     string                `json:"manifest"`
	RulesFile    string                `json:"rules_file,omitempty"`
	BuiltinRules *bool                 `json:"builtin_rules,omitempty"` // Absent means true
	Workdir      string                `json:"workdir"`
	LedgerPath   string                `json:"ledger_path"` // Relative paths resolve against Workdir
	LogDir       string                `json:"log_dir"`     // Relative paths resolve against Workdir
	Jobs         int                   `json:"jobs"`
	HashOutputs  bool                  `json:"hash_outputs"`
	Tools        map[string]ToolConfig `json:"tools"`
	Params       ParamsConfig          `json:"params"`
	Retry        RetryConfig           `json:"retry"`
}

// UseBuiltinRules reports whether the builtin RNA-seq rules are registered.
func (c *PipelineConfig) UseBuiltinRules() bool {
	return c.BuiltinRules == nil || *c.BuiltinRules
}

// LedgerFile returns the ledger database path.
func (c *PipelineConfig) LedgerFile() string {
	return c.underWorkdir(c.LedgerPath)
}

// LogDirectory returns the directory holding per-task logs.
func (c *PipelineConfig) LogDirectory() string {
	return c.underWorkdir(c.LogDir)
}

func (c *PipelineConfig) underWorkdir(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Workdir, p)
}
