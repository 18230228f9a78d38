package config

import (
	"os"
	"path/filepath"
)

// DefaultConfigYAML is written by `aura init` as a starting point.
const DefaultConfigYAML = `# Aura configuration
# Values not specified here use sensible defaults.

log:
  level: info
  format: auto

index:
  chunk_size: 1600
  chunk_overlap: 200
  parallelism: 4
  stale_after: 24h

agents:
  dirs:
    - .aura/agents
  default_provider: ""

workflow:
  max_attempts: 2
  branch_prefix: aura/
  draft_prs: true

process:
  timeout: 30s
  grace_period: 3s

llm:
  timeout: 120s
  max_steps: 10
  max_budget: 100000
`

// WriteDefault writes the default configuration to path unless it exists.
// The write is atomic so a crash never leaves a truncated config behind.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return atomicWriteFile(path, []byte(DefaultConfigYAML), 0o644)
}
