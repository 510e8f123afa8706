package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoader(t *testing.T) {
	loader := NewLoader("/path/to/config.json")
	assert.NotNil(t, loader)
	assert.Equal(t, "/path/to/config.json", loader.configPath)
}

func TestLoaderLoad(t *testing.T) {
	t.Run("load default config when file doesn't exist", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "nonexistent.json")

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.NotNil(t, cfg)
		assert.Equal(t, "openai", cfg.LLM.Provider)
		assert.Equal(t, 0.3, cfg.Query.MinScore)
	})

	t.Run("load config from file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		testConfig := `{
			"llm": {
				"provider": "anthropic",
				"api_key": "sk-ant-test-key",
				"chat_model": "claude-sonnet-4"
			},
			"vector_store": {
				"url": "http://qdrant.internal:6333"
			}
		}`
		err := os.WriteFile(configPath, []byte(testConfig), 0644)
		require.NoError(t, err)

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.Equal(t, "anthropic", cfg.LLM.Provider)
		assert.Equal(t, "sk-ant-test-key", cfg.LLM.APIKey)
		assert.Equal(t, "claude-sonnet-4", cfg.LLM.ChatModel)
		assert.Equal(t, "http://qdrant.internal:6333", cfg.VectorStore.URL)
		assert.Equal(t, "neo4j", cfg.GraphStore.Database, "unset fields keep their defaults")
	})

	t.Run("set default paths", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		err := os.WriteFile(configPath, []byte(`{}`), 0644)
		require.NoError(t, err)

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.NotEmpty(t, cfg.DataDir)
		assert.NotEmpty(t, cfg.Logging.File)
		assert.NotEmpty(t, cfg.Snapshot.Dir)
	})

	t.Run("data dir drives derived paths", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		err := os.WriteFile(configPath, []byte(`{"data_dir": "/var/lib/memoryd"}`), 0644)
		require.NoError(t, err)

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.Equal(t, "/var/lib/memoryd", cfg.DataDir)
		assert.Equal(t, filepath.Join("/var/lib/memoryd", "memoryd.log"), cfg.Logging.File)
		assert.Equal(t, filepath.Join("/var/lib/memoryd", "snapshots"), cfg.Snapshot.Dir)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "invalid.json")

		err := os.WriteFile(configPath, []byte("invalid json"), 0644)
		require.NoError(t, err)

		loader := NewLoader(configPath)
		_, err = loader.Load()

		assert.Error(t, err)
	})
}

func TestLoaderSave(t *testing.T) {
	t.Run("save config to file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		cfg := DefaultConfig()
		cfg.LLM.Provider = "anthropic"
		cfg.LLM.APIKey = "sk-ant-test-key"

		loader := NewLoader(configPath)
		err := loader.Save(cfg)

		require.NoError(t, err)

		_, err = os.Stat(configPath)
		assert.NoError(t, err)

		loadedCfg, err := NewLoader(configPath).Load()
		require.NoError(t, err)
		assert.Equal(t, "anthropic", loadedCfg.LLM.Provider)
		assert.Equal(t, "sk-ant-test-key", loadedCfg.LLM.APIKey)
	})

	t.Run("create directory if not exists", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "subdir", "config.json")

		loader := NewLoader(configPath)
		err := loader.Save(DefaultConfig())

		require.NoError(t, err)

		_, err = os.Stat(filepath.Dir(configPath))
		assert.NoError(t, err)
	})
}

func TestLoaderEnvOverride(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{"llm": {"provider": "openai"}}`), 0644))

	t.Setenv("MEMORYD_LLM_API_KEY", "sk-from-env")

	cfg, err := NewLoader(configPath).Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", cfg.LLM.APIKey)
}

func TestLoaderGetConfigPath(t *testing.T) {
	t.Run("custom path", func(t *testing.T) {
		loader := NewLoader("/custom/path/config.json")
		assert.Equal(t, "/custom/path/config.json", loader.GetConfigPath())
	})

	t.Run("default path", func(t *testing.T) {
		loader := NewLoader("")
		path := loader.GetConfigPath()
		assert.NotEmpty(t, path)
		assert.Contains(t, path, ".memoryd")
	})
}
