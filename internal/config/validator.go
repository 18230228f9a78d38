package config

import (
	"fmt"
)

// Validate checks configuration invariants.
func Validate(cfg *Config) error {
	switch cfg.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "", "auto", "text", "json":
	default:
		return fmt.Errorf("invalid log format %q", cfg.Log.Format)
	}

	if cfg.Index.ChunkSize <= 0 {
		return fmt.Errorf("index.chunk_size must be positive, got %d", cfg.Index.ChunkSize)
	}
	if cfg.Index.ChunkOverlap < 0 || cfg.Index.ChunkOverlap >= cfg.Index.ChunkSize {
		return fmt.Errorf("index.chunk_overlap must be in [0, chunk_size), got %d", cfg.Index.ChunkOverlap)
	}
	if cfg.Index.Parallelism <= 0 {
		return fmt.Errorf("index.parallelism must be positive, got %d", cfg.Index.Parallelism)
	}

	if cfg.Workflow.MaxAttempts <= 0 {
		return fmt.Errorf("workflow.max_attempts must be positive, got %d", cfg.Workflow.MaxAttempts)
	}

	if cfg.LLM.MaxSteps <= 0 {
		return fmt.Errorf("llm.max_steps must be positive, got %d", cfg.LLM.MaxSteps)
	}
	if cfg.LLM.MaxBudget <= 0 {
		return fmt.Errorf("llm.max_budget must be positive, got %d", cfg.LLM.MaxBudget)
	}

	return nil
}
