package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IAmMonkeyBoy/context-memory-store/internal/config"
)

func TestRootCommand(t *testing.T) {
	t.Run("version flag", func(t *testing.T) {
		cmd := GetRootCmd()
		cmd.SetArgs([]string{"--version"})

		output := &bytes.Buffer{}
		cmd.SetOut(output)

		err := cmd.Execute()
		require.NoError(t, err)

		assert.Contains(t, output.String(), "memoryd version")
		assert.Contains(t, output.String(), GetVersion())
	})

	t.Run("help flag", func(t *testing.T) {
		cmd := GetRootCmd()
		cmd.SetArgs([]string{"--help"})

		output := &bytes.Buffer{}
		cmd.SetOut(output)

		err := cmd.Execute()
		require.NoError(t, err)

		helpText := output.String()
		assert.Contains(t, helpText, "memoryd")
		assert.Contains(t, helpText, "serve")
		assert.Contains(t, helpText, "status")
	})

	t.Run("global flags", func(t *testing.T) {
		cmd := GetRootCmd()

		configFlag := cmd.PersistentFlags().Lookup("config")
		require.NotNil(t, configFlag)
		assert.Equal(t, "", configFlag.DefValue)

		logLevelFlag := cmd.PersistentFlags().Lookup("log-level")
		require.NotNil(t, logLevelFlag)
		assert.Equal(t, "", logLevelFlag.DefValue)
	})
}

func TestGetVersion(t *testing.T) {
	version := GetVersion()
	assert.NotEmpty(t, version)
	assert.True(t, strings.HasPrefix(version, "0."))
}

func TestBuildStackWithEmbeddedBackends(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LLM.Provider = "fake"
	cfg.VectorStore.URL = ""
	cfg.GraphStore.URL = ""
	cfg.Snapshot.Dir = t.TempDir()

	stack, err := buildStack(cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, stack.manager)
	require.NotNil(t, stack.engine)
	defer stack.manager.Close()

	ctx := t.Context()
	require.NoError(t, stack.manager.Start(ctx, "proj"))
	assert.Equal(t, []string{"proj"}, stack.manager.Running())
	require.NoError(t, stack.manager.Stop(ctx, "proj", "test"))
}

func TestBuildLLMRejectsUnknownProvider(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LLM.Provider = "gemini"

	_, err := buildLLM(cfg, resilienceConfig(cfg.Resilience), zerolog.Nop())
	assert.Error(t, err)
}
