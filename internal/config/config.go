package config

import (
	"time"
)

// Config holds all application configuration.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	State    StateConfig    `mapstructure:"state"`
	Index    IndexConfig    `mapstructure:"index"`
	Agents   AgentsConfig   `mapstructure:"agents"`
	Workflow WorkflowConfig `mapstructure:"workflow"`
	Git      GitConfig      `mapstructure:"git"`
	Process  ProcessConfig  `mapstructure:"process"`
	LLM      LLMConfig      `mapstructure:"llm"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StateConfig configures durable storage.
type StateConfig struct {
	// Dir holds the sqlite databases (workspaces, workflows, index).
	Dir string `mapstructure:"dir"`
}

// IndexConfig configures the ingestion pipeline.
type IndexConfig struct {
	ChunkSize      int           `mapstructure:"chunk_size"`
	ChunkOverlap   int           `mapstructure:"chunk_overlap"`
	Parallelism    int           `mapstructure:"parallelism"`
	StaleAfter     time.Duration `mapstructure:"stale_after"`
	ExcludeGlobs   []string      `mapstructure:"exclude_globs"`
	EmbeddingModel string        `mapstructure:"embedding_model"`
}

// AgentsConfig configures the agent registry.
type AgentsConfig struct {
	// Dirs are watched for *.md agent definition files.
	Dirs            []string `mapstructure:"dirs"`
	DefaultProvider string   `mapstructure:"default_provider"`
}

// WorkflowConfig configures workflow execution.
type WorkflowConfig struct {
	MaxAttempts  int    `mapstructure:"max_attempts"`
	BranchPrefix string `mapstructure:"branch_prefix"`
	DraftPRs     bool   `mapstructure:"draft_prs"`
}

// GitConfig configures git and gh invocation.
type GitConfig struct {
	DefaultBase string `mapstructure:"default_base"`
}

// ProcessConfig configures the process gateway.
type ProcessConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	GracePeriod time.Duration `mapstructure:"grace_period"`
	Preflight   bool          `mapstructure:"preflight"`
}

// LLMConfig configures provider calls.
type LLMConfig struct {
	Timeout   time.Duration  `mapstructure:"timeout"`
	MaxSteps  int            `mapstructure:"max_steps"`
	MaxBudget int            `mapstructure:"max_budget"` // token budget per ReAct run
	Providers []ProviderSpec `mapstructure:"providers"`
}

// ProviderSpec declares one CLI-backed LLM provider. The command receives
// the prompt on stdin and writes the completion to stdout.
type ProviderSpec struct {
	ID      string   `mapstructure:"id"`
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
}
