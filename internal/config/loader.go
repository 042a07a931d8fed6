package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"ragforge/internal/apperr"
)

// Load reads configuration from environment variables (optionally from a
// local .env file, which never overrides variables already set in the OS
// environment).
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{}

	cfg.HTTPAddr = firstNonEmpty(getenv("HTTP_ADDR"), ":8080")
	cfg.LogLevel = firstNonEmpty(getenv("LOG_LEVEL"), "info")
	cfg.LogPath = getenv("LOG_PATH")

	cfg.LLMClient.Provider = firstNonEmpty(getenv("LLM_PROVIDER"), "openai")
	cfg.LLMClient.OpenAI.BaseURL = getenv("LLM_BASE_URL")
	cfg.LLMClient.OpenAI.Model = getenv("LLM_MODEL")
	cfg.LLMClient.OpenAI.APIKey = getenv("LLM_API_KEY")
	cfg.LLMClient.OpenAI.API = firstNonEmpty(getenv("LLM_API"), "completions")
	cfg.LLMClient.Anthropic.APIKey = getenv("ANTHROPIC_API_KEY")
	cfg.LLMClient.Anthropic.BaseURL = getenv("ANTHROPIC_BASE_URL")
	cfg.LLMClient.Anthropic.Model = firstNonEmpty(getenv("ANTHROPIC_MODEL"), cfg.LLMClient.OpenAI.Model)
	cfg.LLMClient.Google.APIKey = getenv("GOOGLE_LLM_API_KEY")
	cfg.LLMClient.Google.BaseURL = getenv("GOOGLE_LLM_BASE_URL")
	cfg.LLMClient.Google.Model = firstNonEmpty(getenv("GOOGLE_LLM_MODEL"), cfg.LLMClient.OpenAI.Model)
	cfg.LLMClient.Concurrency = intOr(getenv("LLM_CONCURRENCY"), 2)
	cfg.LLMClient.Timeout = time.Duration(intOr(getenv("LLM_TIMEOUT_SECONDS"), 120)) * time.Second
	cfg.LLMClient.Google.Timeout = intOr(getenv("LLM_TIMEOUT_SECONDS"), 120)

	cfg.Embedding.BaseURL = getenv("EMBEDDING_BASE_URL")
	cfg.Embedding.Path = firstNonEmpty(getenv("EMBEDDING_PATH"), "/v1/embeddings")
	cfg.Embedding.Model = getenv("EMBEDDING_MODEL")
	cfg.Embedding.APIKey = getenv("EMBEDDING_API_KEY")
	cfg.Embedding.APIHeader = firstNonEmpty(getenv("EMBEDDING_API_HEADER"), "Authorization")
	cfg.Embedding.Dimension = intOr(getenv("EMBEDDING_DIM"), 768)
	cfg.Embedding.Timeout = intOr(getenv("EMBEDDING_TIMEOUT_SECONDS"), 30)

	cfg.Vector.Backend = firstNonEmpty(getenv("VECTOR_BACKEND"), "qdrant")
	cfg.Vector.QdrantURL = getenv("QDRANT_URL")
	cfg.Vector.QdrantKey = getenv("QDRANT_API_KEY")
	cfg.Vector.Metric = firstNonEmpty(getenv("VECTOR_METRIC"), "cosine")

	cfg.Database.URL = getenv("DATABASE_URL")

	cfg.Object.Backend = firstNonEmpty(getenv("OBJECT_STORE_BACKEND"), "disk")
	cfg.Object.StorageRoot = firstNonEmpty(getenv("STORAGE_ROOT"), "./data/documents")
	cfg.Object.S3.Bucket = getenv("S3_BUCKET")
	cfg.Object.S3.Region = getenv("S3_REGION")
	cfg.Object.S3.Endpoint = getenv("S3_ENDPOINT")
	cfg.Object.S3.Prefix = getenv("S3_PREFIX")
	cfg.Object.S3.AccessKey = getenv("S3_ACCESS_KEY")
	cfg.Object.S3.SecretKey = getenv("S3_SECRET_KEY")
	cfg.Object.S3.UsePathStyle = boolOr(getenv("S3_USE_PATH_STYLE"), false)
	cfg.Object.S3.SSE.Mode = getenv("S3_SSE_MODE")
	cfg.Object.S3.SSE.KMSKeyID = getenv("S3_SSE_KMS_KEY_ID")

	cfg.Redis.URL = getenv("REDIS_URL")

	cfg.Admin.APIToken = getenv("ADMIN_API_TOKEN")
	cfg.Admin.BootstrapEmail = getenv("ADMIN_BOOTSTRAP_EMAIL")
	cfg.Admin.BootstrapPasswordHash = getenv("ADMIN_BOOTSTRAP_PASSWORD_HASH")

	cfg.OTel.OTLP = getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	cfg.OTel.ServiceName = firstNonEmpty(getenv("OTEL_SERVICE_NAME"), "ragforge")
	cfg.OTel.ServiceVersion = firstNonEmpty(getenv("OTEL_SERVICE_VERSION"), "dev")
	cfg.OTel.Environment = firstNonEmpty(getenv("OTEL_ENVIRONMENT"), "development")

	cfg.Retrieval.TopK = intOr(getenv("TOP_K"), 8)
	cfg.Retrieval.VectorScoreThreshold = floatOr(getenv("VECTOR_SCORE_THRESHOLD"), 0.7)
	cfg.Retrieval.MaxHops = intOr(getenv("MAX_HOPS"), 2)
	cfg.Retrieval.GraphEdgeScoreThreshold = floatOr(getenv("GRAPH_EDGE_SCORE_THRESHOLD"), 0.7)
	cfg.Retrieval.GraphNodeCap = intOr(getenv("GRAPH_NODE_CAP"), 20)
	cfg.Retrieval.ContextTokenBudget = intOr(getenv("CONTEXT_TOKEN_BUDGET"), 3000)

	cfg.Session.TTLMinutes = intOr(getenv("SESSION_TTL_MIN"), 30)
	cfg.Session.HistoryTurns = intOr(getenv("HISTORY_TURNS"), 10)

	cfg.Ingestion.WorkerConcurrency = intOr(getenv("WORKER_CONCURRENCY"), 3)
	cfg.Ingestion.MaxDocumentBytes = int64(intOr(getenv("MAX_DOCUMENT_BYTES"), 104857600))
	cfg.Ingestion.MaxPDFPages = intOr(getenv("MAX_PDF_PAGES"), 2000)

	return cfg, validate(cfg)
}

// validate enforces the boot-time refusals called out in §6: no weak/default
// admin credentials, ever.
func validate(cfg Config) error {
	if cfg.Admin.APIToken == "" {
		return apperr.Validationf("ADMIN_API_TOKEN is required")
	}
	weak := map[string]bool{"admin": true, "password": true, "changeme": true, "": true}
	if weak[strings.ToLower(cfg.Admin.BootstrapPasswordHash)] {
		return apperr.Validationf("ADMIN_BOOTSTRAP_PASSWORD_HASH must not be a default/weak value")
	}
	if cfg.Database.URL == "" {
		return apperr.Validationf("DATABASE_URL is required")
	}
	return nil
}

func getenv(key string) string { return strings.TrimSpace(os.Getenv(key)) }

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func intOr(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func floatOr(v string, def float64) float64 {
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func boolOr(v string, def bool) bool {
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
