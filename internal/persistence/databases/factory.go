package databases

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"ragforge/internal/config"
)

// NewManager constructs the three partitioned stores (§3: vector, graph,
// relational) from configuration. The default is memory-backed so tests and
// local development need no live infrastructure (§10); DATABASE_URL, when
// set, promotes graph/meta to their Postgres-backed implementations and
// VECTOR_BACKEND (which the config loader defaults to qdrant; an empty
// backend here means memory) selects between qdrant, postgres/pgvector, and
// memory for the vector store specifically, since a production deployment
// usually wants Qdrant even while everything else stays on one Postgres
// instance.
func NewManager(ctx context.Context, cfg config.Config) (Manager, error) {
	var m Manager

	switch cfg.Vector.Backend {
	case "", "memory":
		m.Vector = NewMemoryVector()
	case "qdrant":
		v, err := NewQdrantVector(cfg.Vector.QdrantURL, cfg.Vector.Metric)
		if err != nil {
			return Manager{}, fmt.Errorf("connect qdrant: %w", err)
		}
		m.Vector = v
	case "postgres", "pgvector":
		pool, err := newPgPool(ctx, cfg.Database.URL)
		if err != nil {
			return Manager{}, fmt.Errorf("connect postgres (vector): %w", err)
		}
		m.Vector = NewPostgresVector(pool, cfg.Embedding.Dimension, cfg.Vector.Metric)
	default:
		return Manager{}, fmt.Errorf("unsupported vector backend: %s", cfg.Vector.Backend)
	}

	m.Graph = NewMemoryGraph()
	m.Meta = NewMemoryMetaStore()

	if cfg.Database.URL != "" {
		pool, err := newPgPool(ctx, cfg.Database.URL)
		if err != nil {
			return Manager{}, fmt.Errorf("connect postgres: %w", err)
		}
		m.Graph = NewPostgresGraph(pool)
		m.Meta = NewPostgresMetaStore(pool)
	}

	if err := m.Meta.Init(ctx); err != nil {
		return Manager{}, fmt.Errorf("init meta store: %w", err)
	}
	return m, nil
}

func newPgPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 8
	cfg.MinConns = 0
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(cctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
