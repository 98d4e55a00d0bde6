package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config, defaults.
// Missing files are not errors; malformed JSON returns an error.
func Load(globalPath, projectPath string) (*PipelineConfig, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	return cfg, nil
}

// DefaultPaths returns the conventional config locations.
// Global: ~/.seqflow/config.json
// Project: .seqflow/config.json (relative to cwd)
func DefaultPaths() (global, project string, err error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(homeDir, ".seqflow", "config.json"), filepath.Join(".seqflow", "config.json"), nil
}

// mergeConfigFile decodes a JSON config file on top of base. Keys present in
// the file overwrite, tool bindings merge field by field per tool, unknown
// keys are ignored. Missing files are silently skipped.
func mergeConfigFile(base *PipelineConfig, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var overlay struct {
		Tools map[string]json.RawMessage `json:"tools"`
	}
	if err := json.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	// encoding/json leaves absent fields untouched but replaces whole map
	// values, so tools are decoded onto their existing bindings below.
	tools := base.Tools
	base.Tools = nil
	if err := json.Unmarshal(data, base); err != nil {
		base.Tools = tools
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	if tools == nil {
		tools = make(map[string]ToolConfig, len(overlay.Tools))
	}
	base.Tools = tools

	for name, raw := range overlay.Tools {
		tool := tools[name]
		if err := json.Unmarshal(raw, &tool); err != nil {
			return fmt.Errorf("parsing %s: tools.%s: %w", path, name, err)
		}
		tools[name] = tool
	}
	return nil
}
