package config

import (
	"encoding/json"
)

// Config is the full memoryd configuration.
type Config struct {
	// DataDir is where snapshots, logs and the audit trail live.
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	Logging     LoggingConfig     `json:"logging" mapstructure:"logging"`
	VectorStore VectorStoreConfig `json:"vector_store" mapstructure:"vector_store"`
	GraphStore  GraphStoreConfig  `json:"graph_store" mapstructure:"graph_store"`
	LLM         LLMConfig         `json:"llm" mapstructure:"llm"`
	Chunking    ChunkingConfig    `json:"chunking" mapstructure:"chunking"`
	Ingestion   IngestionConfig   `json:"ingestion" mapstructure:"ingestion"`
	Query       QueryConfig       `json:"query" mapstructure:"query"`
	Resilience  ResilienceConfig  `json:"resilience" mapstructure:"resilience"`
	Snapshot    SnapshotConfig    `json:"snapshot" mapstructure:"snapshot"`
	Metrics     MetricsConfig     `json:"metrics" mapstructure:"metrics"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level    string `json:"level" mapstructure:"level"`
	File     string `json:"file" mapstructure:"file"`
	MaxSize  int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge   int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress bool   `json:"compress" mapstructure:"compress"`
}

// VectorStoreConfig points at the Qdrant endpoint. An empty URL selects the
// embedded in-memory store.
type VectorStoreConfig struct {
	URL            string `json:"url" mapstructure:"url"`
	APIKey         string `json:"api_key" mapstructure:"api_key"`
	TimeoutSeconds int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// GraphStoreConfig points at the Neo4j HTTP endpoint. An empty URL selects
// the embedded in-memory store.
type GraphStoreConfig struct {
	URL            string `json:"url" mapstructure:"url"`
	Database       string `json:"database" mapstructure:"database"`
	Username       string `json:"username" mapstructure:"username"`
	Password       string `json:"password" mapstructure:"password"`
	TimeoutSeconds int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// LLMConfig selects and configures the LLM provider. Provider "fake" runs
// the deterministic in-process service, useful for development.
type LLMConfig struct {
	Provider           string `json:"provider" mapstructure:"provider"` // openai, anthropic, fake
	APIKey             string `json:"api_key" mapstructure:"api_key"`
	ChatModel          string `json:"chat_model" mapstructure:"chat_model"`
	EmbeddingModel     string `json:"embedding_model" mapstructure:"embedding_model"`
	EmbeddingDimension int    `json:"embedding_dimension" mapstructure:"embedding_dimension"`
	MaxBatchSize       int    `json:"max_batch_size" mapstructure:"max_batch_size"`
	ConcurrentBatches  int    `json:"concurrent_batches" mapstructure:"concurrent_batches"`
}

// ChunkingConfig controls document splitting.
type ChunkingConfig struct {
	MaxChunkSize int `json:"max_chunk_size" mapstructure:"max_chunk_size"`
	Overlap      int `json:"overlap" mapstructure:"overlap"`
}

// IngestionConfig controls the ingestion pipeline.
type IngestionConfig struct {
	Workers              int  `json:"workers" mapstructure:"workers"`
	ProcessRelationships bool `json:"process_relationships" mapstructure:"process_relationships"`
	GenerateSummaries    bool `json:"generate_summaries" mapstructure:"generate_summaries"`
	SummaryMaxWords      int  `json:"summary_max_words" mapstructure:"summary_max_words"`
}

// QueryConfig controls context retrieval defaults.
type QueryConfig struct {
	DefaultLimit int     `json:"default_limit" mapstructure:"default_limit"`
	MinScore     float64 `json:"min_score" mapstructure:"min_score"`
}

// ResilienceConfig controls retry, circuit breaking and per-attempt timeouts
// for all backend calls.
type ResilienceConfig struct {
	MaxAttempts            int `json:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs       int `json:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs           int `json:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	BreakerThreshold       int `json:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldownSeconds int `json:"breaker_cooldown_seconds" mapstructure:"breaker_cooldown_seconds"`
	RequestTimeoutSeconds  int `json:"request_timeout_seconds" mapstructure:"request_timeout_seconds"`
}

// SnapshotConfig controls snapshot export.
type SnapshotConfig struct {
	Dir                 string `json:"dir" mapstructure:"dir"`
	Schedule            string `json:"schedule" mapstructure:"schedule"` // cron expression, empty disables
	DrainTimeoutSeconds int    `json:"drain_timeout_seconds" mapstructure:"drain_timeout_seconds"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Host    string `json:"host" mapstructure:"host"`
	Port    int    `json:"port" mapstructure:"port"`
}

// DefaultConfig returns a config with default values.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:    "info",
			MaxSize:  100,
			MaxAge:   7,
			Compress: true,
		},
		VectorStore: VectorStoreConfig{
			URL:            "http://localhost:6333",
			TimeoutSeconds: 30,
		},
		GraphStore: GraphStoreConfig{
			URL:            "http://localhost:7474",
			Database:       "neo4j",
			TimeoutSeconds: 30,
		},
		LLM: LLMConfig{
			Provider:          "openai",
			ChatModel:         "gpt-4-turbo",
			EmbeddingModel:    "text-embedding-3-small",
			MaxBatchSize:      50,
			ConcurrentBatches: 4,
		},
		Chunking: ChunkingConfig{
			MaxChunkSize: 1000,
			Overlap:      100,
		},
		Ingestion: IngestionConfig{
			ProcessRelationships: true,
			SummaryMaxWords:      60,
		},
		Query: QueryConfig{
			DefaultLimit: 10,
			MinScore:     0.3,
		},
		Resilience: ResilienceConfig{
			MaxAttempts:            3,
			InitialBackoffMs:       200,
			MaxBackoffMs:           5000,
			BreakerThreshold:       5,
			BreakerCooldownSeconds: 30,
			RequestTimeoutSeconds:  30,
		},
		Snapshot: SnapshotConfig{
			DrainTimeoutSeconds: 30,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    9090,
		},
	}
}

// String returns a JSON representation of the config with secrets redacted.
func (c *Config) String() string {
	clone := *c
	if clone.LLM.APIKey != "" {
		clone.LLM.APIKey = "***"
	}
	if clone.VectorStore.APIKey != "" {
		clone.VectorStore.APIKey = "***"
	}
	if clone.GraphStore.Password != "" {
		clone.GraphStore.Password = "***"
	}
	data, _ := json.MarshalIndent(&clone, "", "  ")
	return string(data)
}
