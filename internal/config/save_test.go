package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestSaveCreatesParentDir(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "nested", "deep", "config.json")

	if err := Save(DefaultConfig(), path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Config file was not created: %v", err)
	}
	var loaded PipelineConfig
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("Config file contains invalid JSON: %v", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.json")

	cfg := DefaultConfig()
	cfg.Manifest = "samples.tsv"
	cfg.Jobs = 12
	cfg.HashOutputs = true
	cfg.Params.PairedEnd = boolPtr(true)
	cfg.Params.GenomeDir = "/ref/star"
	cfg.Params.Annotation = "/ref/genes.gtf"
	cfg.Tools["STAR"] = ToolConfig{Command: "STAR", Version: "2.7.11b"}

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Manifest != "samples.tsv" {
		t.Errorf("manifest = %q", loaded.Manifest)
	}
	if loaded.Jobs != 12 || !loaded.HashOutputs {
		t.Errorf("jobs/hash_outputs = %d/%v", loaded.Jobs, loaded.HashOutputs)
	}
	if !loaded.PairedEnd() {
		t.Error("paired_end lost in round trip")
	}
	if loaded.Tools["STAR"].Version != "2.7.11b" {
		t.Errorf("STAR version = %q", loaded.Tools["STAR"].Version)
	}
	if err := loaded.Validate(); err != nil {
		t.Errorf("round-tripped config invalid: %v", err)
	}
}

func TestSaveOverwritesExisting(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.json")

	cfg1 := DefaultConfig()
	cfg1.Manifest = "first.tsv"
	if err := Save(cfg1, path); err != nil {
		t.Fatalf("First save failed: %v", err)
	}

	cfg2 := DefaultConfig()
	cfg2.Manifest = "second.tsv"
	if err := Save(cfg2, path); err != nil {
		t.Fatalf("Second save failed: %v", err)
	}

	loaded, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Manifest != "second.tsv" {
		t.Errorf("Expected 'second.tsv', got '%s'", loaded.Manifest)
	}
}
