package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := loadFromDir(t, "")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "auto", cfg.Log.Format)
	assert.Equal(t, 1600, cfg.Index.ChunkSize)
	assert.Equal(t, 200, cfg.Index.ChunkOverlap)
	assert.Equal(t, 4, cfg.Index.Parallelism)
	assert.Equal(t, 24*time.Hour, cfg.Index.StaleAfter)
	assert.Equal(t, []string{".aura/agents"}, cfg.Agents.Dirs)
	assert.Equal(t, 2, cfg.Workflow.MaxAttempts)
	assert.Equal(t, "aura/", cfg.Workflow.BranchPrefix)
	assert.True(t, cfg.Workflow.DraftPRs)
	assert.Equal(t, 30*time.Second, cfg.Process.Timeout)
	assert.Equal(t, 3*time.Second, cfg.Process.GracePeriod)
	assert.Equal(t, 120*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 10, cfg.LLM.MaxSteps)
	assert.Equal(t, 100000, cfg.LLM.MaxBudget)
	assert.NotEmpty(t, cfg.State.Dir)
}

// loadFromDir loads config from an explicit file in a temp directory so the
// test never picks up a developer's real .aura.yaml.
func loadFromDir(t *testing.T, content string) (*Config, error) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, ".aura.yaml")
	if content != "" {
		require.NoError(t, os.WriteFile(path, []byte(content), 0o640))
		return NewLoader().WithConfigFile(path).Load()
	}
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o640))
	return NewLoader().WithConfigFile(path).Load()
}

func TestLoadProjectFile(t *testing.T) {
	cfg, err := loadFromDir(t, `
log:
  level: debug
index:
  chunk_size: 800
  chunk_overlap: 100
llm:
  providers:
    - id: claude
      command: claude
      args: ["-p", "--model", "{model}"]
`)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 800, cfg.Index.ChunkSize)
	assert.Equal(t, 100, cfg.Index.ChunkOverlap)
	// Unset keys keep their defaults.
	assert.Equal(t, 4, cfg.Index.Parallelism)

	require.Len(t, cfg.LLM.Providers, 1)
	assert.Equal(t, "claude", cfg.LLM.Providers[0].ID)
	assert.Equal(t, []string{"-p", "--model", "{model}"}, cfg.LLM.Providers[0].Args)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	t.Setenv("AURA_LOG_LEVEL", "error")
	cfg, err := loadFromDir(t, "log:\n  level: debug\n")
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestLoadFlagOverridesEnv(t *testing.T) {
	t.Setenv("AURA_LOG_LEVEL", "error")

	v := viper.New()
	v.Set("log.level", "warn") // what a bound CLI flag does
	cfg, err := NewLoaderWithViper(v).WithConfigFile(writeConfig(t, "log:\n  level: debug\n")).Load()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".aura.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o640))
	return path
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	_, err := loadFromDir(t, "log:\n  level: loud\n")
	require.Error(t, err)

	_, err = loadFromDir(t, "index:\n  chunk_size: -1\n")
	require.Error(t, err)

	_, err = loadFromDir(t, "index:\n  chunk_size: 100\n  chunk_overlap: 100\n")
	require.Error(t, err)

	_, err = loadFromDir(t, "workflow:\n  max_attempts: 0\n")
	require.Error(t, err)
}

func TestWriteDefaultCreatesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", ".aura.yaml")
	require.NoError(t, WriteDefault(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "chunk_size: 1600")

	// A second call never clobbers an edited file.
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o640))
	require.NoError(t, WriteDefault(path))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "log:\n  level: debug\n", string(data))
}

func TestDefaultConfigIsLoadable(t *testing.T) {
	cfg, err := loadFromDir(t, DefaultConfigYAML)
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 1600, cfg.Index.ChunkSize)
}
