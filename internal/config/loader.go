package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading.
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load loads the configuration from file, falling back to defaults when the
// file does not exist. Environment variables prefixed MEMORYD_ override file
// values (MEMORYD_LLM_API_KEY → llm.api_key).
func (l *Loader) Load() (*Config, error) {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return nil, fmt.Errorf("failed to determine config path")
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.SetEnvPrefix("MEMORYD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal only consults the environment for keys viper knows about, so
	// the overridable keys are bound explicitly.
	for _, key := range []string{
		"data_dir",
		"logging.level",
		"vector_store.url", "vector_store.api_key",
		"graph_store.url", "graph_store.database", "graph_store.username", "graph_store.password",
		"llm.provider", "llm.api_key", "llm.chat_model", "llm.embedding_model",
		"snapshot.dir", "snapshot.schedule",
		"metrics.host", "metrics.port",
	} {
		_ = v.BindEnv(key)
	}

	if _, err := os.Stat(configPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".memoryd")
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "memoryd.log")
	}
	if cfg.Snapshot.Dir == "" {
		cfg.Snapshot.Dir = filepath.Join(cfg.DataDir, "snapshots")
	}

	return cfg, nil
}

// Save writes the configuration to file.
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to determine config path")
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("data_dir", cfg.DataDir)
	v.Set("logging", cfg.Logging)
	v.Set("vector_store", cfg.VectorStore)
	v.Set("graph_store", cfg.GraphStore)
	v.Set("llm", cfg.LLM)
	v.Set("chunking", cfg.Chunking)
	v.Set("ingestion", cfg.Ingestion)
	v.Set("query", cfg.Query)
	v.Set("resilience", cfg.Resilience)
	v.Set("snapshot", cfg.Snapshot)
	v.Set("metrics", cfg.Metrics)

	if err := v.WriteConfig(); err != nil {
		if os.IsNotExist(err) {
			if err := v.SafeWriteConfig(); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
		} else {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}

	return nil
}

// GetConfigPath returns the config file path.
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".memoryd", "memoryd.json")
}

// Load is a convenience function that creates a loader and loads the config.
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}
