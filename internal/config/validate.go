package config

import "fmt"

// ConfigError reports a missing or invalid configuration key.
type ConfigError struct {
	Key string
	Msg string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Msg)
}

// Validate checks required keys and value ranges. It returns the first
// problem found. Tool bindings are checked when rules are registered.
// The analysis parameters are only required by the builtin rules.
func (c *PipelineConfig) Validate() error {
	if c.Manifest == "" {
		return &ConfigError{Key: "manifest", Msg: "required"}
	}
	if c.UseBuiltinRules() {
		switch {
		case c.Params.PairedEnd == nil:
			return &ConfigError{Key: "params.paired_end", Msg: "required (true or false)"}
		case c.Params.GenomeDir == "":
			return &ConfigError{Key: "params.genome_dir", Msg: "required"}
		case c.Params.Annotation == "":
			return &ConfigError{Key: "params.annotation", Msg: "required"}
		}
	} else if c.RulesFile == "" {
		return &ConfigError{Key: "rules_file", Msg: "required when builtin_rules is false"}
	}

	switch {
	case c.Jobs < 1:
		return &ConfigError{Key: "jobs", Msg: fmt.Sprintf("must be at least 1, got %d", c.Jobs)}
	case c.Params.UMILocation != "read1" && c.Params.UMILocation != "read2":
		return &ConfigError{Key: "params.umi_location", Msg: fmt.Sprintf("must be read1 or read2, got %q", c.Params.UMILocation)}
	case c.Params.UMILength < 1:
		return &ConfigError{Key: "params.umi_length", Msg: "must be positive"}
	case c.Params.MinVariantFraction < 0 || c.Params.MinVariantFraction > 1:
		return &ConfigError{Key: "params.min_variant_fraction", Msg: "must be between 0 and 1"}
	case c.Params.MaxReadLength < 0:
		return &ConfigError{Key: "params.max_read_length", Msg: "must not be negative"}
	case c.Retry.Multiplier < 1:
		return &ConfigError{Key: "retry.multiplier", Msg: "must be at least 1"}
	}

	for name, tool := range c.Tools {
		if tool.Command == "" {
			return &ConfigError{Key: "tools." + name + ".command", Msg: "empty command"}
		}
	}
	return nil
}

// PairedEnd reports the configured read layout. Call after Validate.
func (c *PipelineConfig) PairedEnd() bool {
	return c.Params.PairedEnd != nil && *c.Params.PairedEnd
}
