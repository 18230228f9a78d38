package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		v:         viper.New(),
		envPrefix: "AURA",
	}
}

// NewLoaderWithViper creates a loader using an existing viper instance.
// This allows integration with CLI flag bindings.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{
		v:         v,
		envPrefix: "AURA",
	}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads configuration from all sources.
// Precedence (highest to lowest):
// 1. CLI flags (set via viper.BindPFlag)
// 2. Environment variables (AURA_*)
// 3. Project config (.aura.yaml in current directory)
// 4. User config (~/.config/aura/config.yaml)
// 5. Defaults
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName(".aura")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "aura"))
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults configures default values.
func (l *Loader) setDefaults() {
	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "auto")

	l.v.SetDefault("state.dir", defaultStateDir())

	l.v.SetDefault("index.chunk_size", 1600)
	l.v.SetDefault("index.chunk_overlap", 200)
	l.v.SetDefault("index.parallelism", 4)
	l.v.SetDefault("index.stale_after", "24h")
	l.v.SetDefault("index.exclude_globs", []string{
		"**/.git/**", "**/node_modules/**", "**/bin/**", "**/obj/**", "**/vendor/**",
	})

	l.v.SetDefault("agents.dirs", []string{".aura/agents"})
	l.v.SetDefault("agents.default_provider", "")

	l.v.SetDefault("workflow.max_attempts", 2)
	l.v.SetDefault("workflow.branch_prefix", "aura/")
	l.v.SetDefault("workflow.draft_prs", true)

	l.v.SetDefault("git.default_base", "")

	l.v.SetDefault("process.timeout", "30s")
	l.v.SetDefault("process.grace_period", "3s")
	l.v.SetDefault("process.preflight", false)

	l.v.SetDefault("llm.timeout", "120s")
	l.v.SetDefault("llm.max_steps", 10)
	l.v.SetDefault("llm.max_budget", 100000)
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".aura/state"
	}
	return filepath.Join(home, ".local", "share", "aura")
}
