package jit

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jit.toml")
	content := `
min_execution_count = 2500
max_instruction_sequence = 30
enable_optimizations = false
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MinExecutionCount != 2500 {
		t.Errorf("MinExecutionCount = %d, want 2500", cfg.MinExecutionCount)
	}
	if cfg.MaxInstructionSequence != 30 {
		t.Errorf("MaxInstructionSequence = %d, want 30", cfg.MaxInstructionSequence)
	}
	if cfg.EnableOptimizations {
		t.Error("EnableOptimizations = true, want false")
	}
	// Unlisted fields keep their defaults.
	if !cfg.FallbackOnFailure {
		t.Error("FallbackOnFailure lost its default")
	}
	if cfg.MinAvgExecutionTime != 10*time.Microsecond {
		t.Errorf("MinAvgExecutionTime = %v, want 10us", cfg.MinAvgExecutionTime)
	}
	if cfg.ThresholdUpdateInterval != 1024 {
		t.Errorf("ThresholdUpdateInterval = %d, want 1024", cfg.ThresholdUpdateInterval)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("missing file: expected an error")
	}

	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("min_execution_count = {"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("malformed file: expected an error")
	}
}

func TestConfigNormalize(t *testing.T) {
	cfg := Config{MinExecutionCount: 50}.Normalize()
	if cfg.MinExecutionCount != 50 {
		t.Errorf("explicit MinExecutionCount overwritten: %d", cfg.MinExecutionCount)
	}
	if cfg.MaxInstructionSequence != 50 {
		t.Errorf("MaxInstructionSequence = %d, want default 50", cfg.MaxInstructionSequence)
	}
	if cfg.ThresholdUpdateInterval != 1024 {
		t.Errorf("ThresholdUpdateInterval = %d, want default 1024", cfg.ThresholdUpdateInterval)
	}
	// A zero average-time floor stays zero: it means the test is off.
	if cfg.MinAvgExecutionTime != 0 {
		t.Errorf("MinAvgExecutionTime = %v, want 0", cfg.MinAvgExecutionTime)
	}
}
