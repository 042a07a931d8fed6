// Package config loads runtime configuration from environment variables,
// following the env-var-first idiom the rest of this codebase uses: no YAML,
// no config server, just os.Getenv with typed defaults applied once at boot.
package config

import "time"

// OpenAIConfig configures the OpenAI-compatible LLM client. A local
// llama.cpp-style server is the default target (BaseURL points at it).
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	API         string // "completions" or "responses"
	ExtraParams map[string]any
	LogPayloads bool
}

// AnthropicPromptCacheConfig controls which message segments get Anthropic
// prompt-cache breakpoints.
type AnthropicPromptCacheConfig struct {
	Enabled       bool
	CacheSystem   bool
	CacheTools    bool
	CacheMessages bool
}

type AnthropicConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	ExtraParams map[string]any
	PromptCache AnthropicPromptCacheConfig
}

type GoogleConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout int // seconds
}

// LLMClientConfig selects and configures the active LLM provider.
type LLMClientConfig struct {
	Provider   string // "openai" (default, local-compatible) | "anthropic" | "google"
	OpenAI     OpenAIConfig
	Anthropic  AnthropicConfig
	Google     GoogleConfig
	Concurrency int // global gateway semaphore capacity
	Timeout     time.Duration
}

// EmbeddingConfig configures the embedding HTTP endpoint.
type EmbeddingConfig struct {
	BaseURL   string
	Path      string
	Model     string
	APIKey    string
	APIHeader string
	Dimension int
	Timeout   int // seconds
}

// VectorConfig selects and configures the VectorStore backend.
type VectorConfig struct {
	Backend    string // "qdrant" | "postgres" | "memory"
	QdrantURL  string
	QdrantKey  string
	Metric     string
}

// DatabaseConfig configures the relational/graph Postgres connection.
type DatabaseConfig struct {
	URL string
}

// S3SSEConfig configures server-side encryption for the S3 object store.
type S3SSEConfig struct {
	Mode     string // "", "sse-s3", "sse-kms"
	KMSKeyID string
}

type S3Config struct {
	Bucket                string
	Region                string
	Endpoint              string
	Prefix                string
	AccessKey             string
	SecretKey             string
	UsePathStyle          bool
	TLSInsecureSkipVerify bool
	SSE                   S3SSEConfig
}

// ObjectStoreConfig selects and configures the document byte-storage backend.
type ObjectStoreConfig struct {
	Backend    string // "disk" | "s3"
	StorageRoot string
	S3          S3Config
}

// RedisConfig configures the progress/cancellation bus backend.
type RedisConfig struct {
	URL string // empty => in-process fallback bus, single-instance only
}

// AdminConfig configures the bearer-token admin surface and the refusal to
// auto-create a default account.
type AdminConfig struct {
	APIToken              string
	BootstrapEmail        string
	BootstrapPasswordHash string
}

// ObsConfig configures OpenTelemetry tracing/metrics export.
type ObsConfig struct {
	OTLP           string
	ServiceName    string
	ServiceVersion string
	Environment    string
}

// RetrievalConfig holds the Hybrid Retriever's tunables (§4.4).
type RetrievalConfig struct {
	TopK                    int
	VectorScoreThreshold    float64
	MaxHops                 int
	GraphEdgeScoreThreshold float64
	GraphNodeCap            int
	ContextTokenBudget      int
}

// SessionConfig holds chat-session tunables (§4.5, §4.8 via session TTL).
type SessionConfig struct {
	TTLMinutes   int
	HistoryTurns int
}

// IngestionConfig holds the Ingestion Orchestrator's concurrency tunables (§4.1, §5).
type IngestionConfig struct {
	WorkerConcurrency int
	MaxDocumentBytes  int64
	MaxPDFPages       int
}

// Config is the fully resolved runtime configuration.
type Config struct {
	HTTPAddr string
	LogLevel string
	LogPath  string

	LLMClient LLMClientConfig
	Embedding EmbeddingConfig
	Vector    VectorConfig
	Database  DatabaseConfig
	Object    ObjectStoreConfig
	Redis     RedisConfig
	Admin     AdminConfig
	OTel      ObsConfig
	Retrieval RetrievalConfig
	Session   SessionConfig
	Ingestion IngestionConfig
}
