package jit

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config controls when and how the dispatcher compiles. Zero fields are
// replaced by defaults in Normalize.
type Config struct {
	// MinExecutionCount is the execution count a region must reach before
	// the profiler runs its candidacy test. Seeds the adaptive threshold.
	MinExecutionCount uint64 `toml:"min_execution_count"`

	// MaxInstructionSequence bounds the window of instructions compiled
	// around a hot line.
	MaxInstructionSequence int `toml:"max_instruction_sequence"`

	// MinAvgExecutionTime is the average interpreted iteration time a
	// region must show before compiling it can pay off. Zero disables the
	// test; Normalize deliberately leaves it alone.
	MinAvgExecutionTime time.Duration `toml:"min_avg_execution_time"`

	// EnableOptimizations runs the type specializer before code
	// generation.
	EnableOptimizations bool `toml:"enable_optimizations"`

	// FallbackOnFailure makes compile errors invisible to the host: the
	// dispatcher records the failure and keeps interpreting. When false,
	// Step surfaces the compile error to the embedding host (never to the
	// script).
	FallbackOnFailure bool `toml:"fallback_on_failure"`

	// ThresholdUpdateInterval is the number of dispatch steps between
	// adaptive threshold updates.
	ThresholdUpdateInterval uint64 `toml:"threshold_update_interval"`
}

func DefaultConfig() Config {
	return Config{
		MinExecutionCount:       1000,
		MaxInstructionSequence:  50,
		MinAvgExecutionTime:     10 * time.Microsecond,
		EnableOptimizations:     true,
		FallbackOnFailure:       true,
		ThresholdUpdateInterval: 1024,
	}
}

// Normalize fills unset fields with defaults.
func (c Config) Normalize() Config {
	def := DefaultConfig()
	if c.MinExecutionCount == 0 {
		c.MinExecutionCount = def.MinExecutionCount
	}
	if c.MaxInstructionSequence == 0 {
		c.MaxInstructionSequence = def.MaxInstructionSequence
	}
	if c.ThresholdUpdateInterval == 0 {
		c.ThresholdUpdateInterval = def.ThresholdUpdateInterval
	}
	return c
}

// LoadConfig reads a TOML config file. Missing fields fall back to
// defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read jit config: %w", err)
	}
	c := DefaultConfig()
	if err := toml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("failed to parse jit config: %w", err)
	}
	return c.Normalize(), nil
}
