package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateProvider(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateProvider("openai"))
	assert.NoError(t, v.ValidateProvider("anthropic"))
	assert.NoError(t, v.ValidateProvider("fake"))
	assert.Error(t, v.ValidateProvider("gemini"))
	assert.Error(t, v.ValidateProvider(""))
}

func TestValidateAPIKey(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name     string
		key      string
		provider string
		wantErr  bool
	}{
		{"valid openai key", "sk-abc123", "openai", false},
		{"valid anthropic key", "sk-ant-abc123", "anthropic", false},
		{"openai key for anthropic", "sk-abc123", "anthropic", true},
		{"garbage openai key", "not-a-key", "openai", true},
		{"empty key", "", "openai", true},
		{"fake needs no key", "", "fake", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateAPIKey(tt.key, tt.provider)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateURL(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateURL("http://localhost:6333", "vector_store"))
	assert.NoError(t, v.ValidateURL("https://qdrant.example.com", "vector_store"))
	assert.NoError(t, v.ValidateURL("", "vector_store"), "empty selects the embedded store")
	assert.Error(t, v.ValidateURL("localhost:6333", "vector_store"))
	assert.Error(t, v.ValidateURL("ftp://host", "vector_store"))
}

func TestValidateChunking(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateChunking(ChunkingConfig{MaxChunkSize: 1000, Overlap: 100}))
	assert.Error(t, v.ValidateChunking(ChunkingConfig{MaxChunkSize: 0}))
	assert.Error(t, v.ValidateChunking(ChunkingConfig{MaxChunkSize: 100, Overlap: -1}))
	assert.Error(t, v.ValidateChunking(ChunkingConfig{MaxChunkSize: 100, Overlap: 100}))
}

func TestValidateLogLevel(t *testing.T) {
	v := NewValidator()

	for _, level := range []string{"debug", "info", "warn", "error"} {
		assert.NoError(t, v.ValidateLogLevel(level))
	}
	assert.Error(t, v.ValidateLogLevel("verbose"))
	assert.Error(t, v.ValidateLogLevel(""))
}

func TestValidateMinScore(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateMinScore(0))
	assert.NoError(t, v.ValidateMinScore(0.3))
	assert.NoError(t, v.ValidateMinScore(1))
	assert.Error(t, v.ValidateMinScore(-0.1))
	assert.Error(t, v.ValidateMinScore(1.1))
}

func TestValidateConfigAccumulatesErrors(t *testing.T) {
	v := NewValidator()

	cfg := DefaultConfig()
	cfg.LLM.Provider = "gemini"
	cfg.VectorStore.URL = "not a url"
	cfg.Chunking.Overlap = cfg.Chunking.MaxChunkSize
	cfg.Logging.Level = "loud"
	cfg.Query.MinScore = 2

	errs := v.ValidateConfig(cfg)
	assert.GreaterOrEqual(t, len(errs), 5, "every problem is reported, not just the first")
}

func TestValidateConfigMissingAPIKey(t *testing.T) {
	v := NewValidator()

	cfg := DefaultConfig()
	cfg.LLM.Provider = "openai"
	cfg.LLM.APIKey = ""

	errs := v.ValidateConfig(cfg)
	assert.NotEmpty(t, errs)
}
