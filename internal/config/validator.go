package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validator validates configuration values.
type Validator struct{}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateProvider validates the LLM provider name.
func (v *Validator) ValidateProvider(provider string) error {
	switch provider {
	case "openai", "anthropic", "fake":
		return nil
	}
	return fmt.Errorf("invalid llm provider: %s (must be one of: openai, anthropic, fake)", provider)
}

// ValidateAPIKey validates an API key format for the given provider.
func (v *Validator) ValidateAPIKey(key, provider string) error {
	if provider == "fake" {
		return nil
	}
	if key == "" {
		return fmt.Errorf("%s API key is required", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}

// ValidateURL validates a backend endpoint URL.
func (v *Validator) ValidateURL(raw, name string) error {
	if raw == "" {
		return nil // empty selects the embedded store
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid %s url: %s", name, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid %s url scheme: %s (must be http or https)", name, u.Scheme)
	}
	return nil
}

// ValidateLogLevel validates the log level.
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateChunking validates chunker parameters.
func (v *Validator) ValidateChunking(cfg ChunkingConfig) error {
	if cfg.MaxChunkSize <= 0 {
		return fmt.Errorf("chunking.max_chunk_size must be positive, got %d", cfg.MaxChunkSize)
	}
	if cfg.Overlap < 0 {
		return fmt.Errorf("chunking.overlap must be >= 0, got %d", cfg.Overlap)
	}
	if cfg.Overlap >= cfg.MaxChunkSize {
		return fmt.Errorf("chunking.overlap (%d) must be smaller than max_chunk_size (%d)", cfg.Overlap, cfg.MaxChunkSize)
	}
	return nil
}

// ValidateMinScore validates a similarity floor.
func (v *Validator) ValidateMinScore(score float64) error {
	if score < 0 || score > 1 {
		return fmt.Errorf("query.min_score must be between 0 and 1, got %g", score)
	}
	return nil
}

// ValidateConfig performs comprehensive validation, accumulating every
// problem instead of stopping at the first.
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if err := v.ValidateProvider(cfg.LLM.Provider); err != nil {
		errors = append(errors, err)
	} else if err := v.ValidateAPIKey(cfg.LLM.APIKey, cfg.LLM.Provider); err != nil {
		errors = append(errors, err)
	}
	if cfg.LLM.EmbeddingDimension < 0 {
		errors = append(errors, fmt.Errorf("llm.embedding_dimension must be >= 0"))
	}
	if cfg.LLM.MaxBatchSize < 0 {
		errors = append(errors, fmt.Errorf("llm.max_batch_size must be >= 0"))
	}
	if cfg.LLM.ConcurrentBatches < 0 {
		errors = append(errors, fmt.Errorf("llm.concurrent_batches must be >= 0"))
	}

	if err := v.ValidateURL(cfg.VectorStore.URL, "vector_store"); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateURL(cfg.GraphStore.URL, "graph_store"); err != nil {
		errors = append(errors, err)
	}
	if cfg.VectorStore.TimeoutSeconds < 0 {
		errors = append(errors, fmt.Errorf("vector_store.timeout_seconds must be >= 0"))
	}
	if cfg.GraphStore.TimeoutSeconds < 0 {
		errors = append(errors, fmt.Errorf("graph_store.timeout_seconds must be >= 0"))
	}

	if err := v.ValidateChunking(cfg.Chunking); err != nil {
		errors = append(errors, err)
	}

	if cfg.Ingestion.Workers < 0 {
		errors = append(errors, fmt.Errorf("ingestion.workers must be >= 0"))
	}
	if cfg.Ingestion.SummaryMaxWords < 0 {
		errors = append(errors, fmt.Errorf("ingestion.summary_max_words must be >= 0"))
	}

	if cfg.Query.DefaultLimit < 0 {
		errors = append(errors, fmt.Errorf("query.default_limit must be >= 0"))
	}
	if err := v.ValidateMinScore(cfg.Query.MinScore); err != nil {
		errors = append(errors, err)
	}

	if cfg.Resilience.MaxAttempts < 0 {
		errors = append(errors, fmt.Errorf("resilience.max_attempts must be >= 0"))
	}
	if cfg.Resilience.InitialBackoffMs < 0 {
		errors = append(errors, fmt.Errorf("resilience.initial_backoff_ms must be >= 0"))
	}
	if cfg.Resilience.MaxBackoffMs < 0 {
		errors = append(errors, fmt.Errorf("resilience.max_backoff_ms must be >= 0"))
	}
	if cfg.Resilience.BreakerThreshold < 0 {
		errors = append(errors, fmt.Errorf("resilience.breaker_threshold must be >= 0"))
	}
	if cfg.Resilience.BreakerCooldownSeconds < 0 {
		errors = append(errors, fmt.Errorf("resilience.breaker_cooldown_seconds must be >= 0"))
	}
	if cfg.Resilience.RequestTimeoutSeconds < 0 {
		errors = append(errors, fmt.Errorf("resilience.request_timeout_seconds must be >= 0"))
	}

	if cfg.Snapshot.DrainTimeoutSeconds < 0 {
		errors = append(errors, fmt.Errorf("snapshot.drain_timeout_seconds must be >= 0"))
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port <= 0 || cfg.Metrics.Port > 65535 {
			errors = append(errors, fmt.Errorf("metrics.port must be between 1 and 65535, got %d", cfg.Metrics.Port))
		}
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	return errors
}
