package config

import "runtime"

// DefaultConfig returns the default configuration with the builtin tool
// bindings and parameter defaults. Required keys are left empty.
func DefaultConfig() *PipelineConfig {
	return &PipelineConfig{
		Workdir:    ".",
		LedgerPath: ".seqflow/ledger.db",
		LogDir:     ".seqflow/logs",
		Jobs:       runtime.NumCPU(),
		Tools: map[string]ToolConfig{
			"umi_tools": {Command: "umi_tools"},
			"fastqc":    {Command: "fastqc"},
			"cutadapt":  {Command: "cutadapt"},
			"STAR":      {Command: "STAR"},
			"samtools":  {Command: "samtools"},
			"varscan":   {Command: "varscan"},
			"multiqc":   {Command: "multiqc"},
		},
		Params: ParamsConfig{
			Adapter:            "AGATCGGAAGAGC",
			TrimQuality:        20,
			TrimMinLength:      20,
			UMILocation:        "read1",
			UMILength:          12,
			MinCoverage:        8,
			MinVariantFraction: 0.2,
			MinBaseQuality:     20,
		},
		Retry: RetryConfig{
			InitialIntervalMS: 500,
			MaxIntervalMS:     30000,
			Multiplier:        2.0,
		},
	}
}
