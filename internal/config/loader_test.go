package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func withEnv(t *testing.T, kv map[string]string, fn func()) {
	t.Helper()
	for k, v := range kv {
		old, had := os.LookupEnv(k)
		os.Setenv(k, v)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			} else {
				os.Unsetenv(k)
			}
		})
	}
	fn()
}

func baseValidEnv() map[string]string {
	return map[string]string{
		"ADMIN_API_TOKEN":               "s3cr3t-token",
		"ADMIN_BOOTSTRAP_PASSWORD_HASH": "$2a$10$abcdefghijklmnopqrstuv",
		"DATABASE_URL":                  "postgres://localhost:5432/ragforge",
	}
}

func TestLoad_Defaults(t *testing.T) {
	withEnv(t, baseValidEnv(), func() {
		cfg, err := Load()
		require.NoError(t, err)
		require.Equal(t, 8, cfg.Retrieval.TopK)
		require.Equal(t, 0.7, cfg.Retrieval.VectorScoreThreshold)
		require.Equal(t, 2, cfg.Retrieval.MaxHops)
		require.Equal(t, 0.7, cfg.Retrieval.GraphEdgeScoreThreshold)
		require.Equal(t, 20, cfg.Retrieval.GraphNodeCap)
		require.Equal(t, 3000, cfg.Retrieval.ContextTokenBudget)
		require.Equal(t, 3, cfg.Ingestion.WorkerConcurrency)
		require.Equal(t, 2, cfg.LLMClient.Concurrency)
		require.Equal(t, "disk", cfg.Object.Backend)
		require.Equal(t, "qdrant", cfg.Vector.Backend)
	})
}

func TestLoad_MissingAdminToken(t *testing.T) {
	env := baseValidEnv()
	delete(env, "ADMIN_API_TOKEN")
	withEnv(t, env, func() {
		_, err := Load()
		require.Error(t, err)
	})
}

func TestLoad_RejectsWeakAdminPasswordHash(t *testing.T) {
	env := baseValidEnv()
	env["ADMIN_BOOTSTRAP_PASSWORD_HASH"] = "admin"
	withEnv(t, env, func() {
		_, err := Load()
		require.Error(t, err)
	})
}

func TestLoad_OverridesFromEnv(t *testing.T) {
	env := baseValidEnv()
	env["TOP_K"] = "12"
	env["WORKER_CONCURRENCY"] = "5"
	env["VECTOR_BACKEND"] = "memory"
	withEnv(t, env, func() {
		cfg, err := Load()
		require.NoError(t, err)
		require.Equal(t, 12, cfg.Retrieval.TopK)
		require.Equal(t, 5, cfg.Ingestion.WorkerConcurrency)
		require.Equal(t, "memory", cfg.Vector.Backend)
	})
}
