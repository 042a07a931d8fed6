package databases

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// pgVector is a pgvector-backed VectorStore, used as an alternative to Qdrant
// for deployments that want a single relational datastore. tenant_id and
// version are ordinary columns here rather than separate collections, since
// Postgres has no per-tenant collection primitive.
type pgVector struct {
	pool       *pgxpool.Pool
	dimensions int
	metric     string // cosine|l2|ip
}

func NewPostgresVector(pool *pgxpool.Pool, dimensions int, metric string) VectorStore {
	ctx := context.Background()
	_, _ = pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`)
	vecType := "vector"
	if dimensions > 0 {
		vecType = fmt.Sprintf("vector(%d)", dimensions)
	}
	_, _ = pool.Exec(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS embeddings (
  tenant_id TEXT NOT NULL,
  version INT NOT NULL,
  id TEXT NOT NULL,
  vec %s,
  metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
  PRIMARY KEY (tenant_id, version, id)
);
`, vecType))
	_, _ = pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS embeddings_tenant_version ON embeddings(tenant_id, version)`)
	return &pgVector{pool: pool, dimensions: dimensions, metric: strings.ToLower(strings.TrimSpace(metric))}
}

// EnsureCollection is a no-op: the shared embeddings table already scopes
// rows by (tenant_id, version).
func (p *pgVector) EnsureCollection(context.Context, string, int, int) error { return nil }

func (p *pgVector) DropCollection(ctx context.Context, tenantID string, version int) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM embeddings WHERE tenant_id=$1 AND version=$2`, tenantID, version)
	return err
}

func (p *pgVector) Upsert(ctx context.Context, tenantID string, version int, id string, vector []float32, metadata map[string]string) error {
	vecLit := toVectorLiteral(vector)
	_, err := p.pool.Exec(ctx, `
INSERT INTO embeddings(tenant_id, version, id, vec, metadata) VALUES($1,$2,$3,$4::vector,$5)
ON CONFLICT (tenant_id, version, id) DO UPDATE SET vec=EXCLUDED.vec, metadata=EXCLUDED.metadata
`, tenantID, version, id, vecLit, metadata)
	return err
}

func (p *pgVector) Delete(ctx context.Context, tenantID string, version int, id string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM embeddings WHERE tenant_id=$1 AND version=$2 AND id=$3`, tenantID, version, id)
	return err
}

func (p *pgVector) SimilaritySearch(ctx context.Context, tenantID string, version int, vector []float32, k int, filter map[string]string) ([]VectorResult, error) {
	if k <= 0 {
		k = 10
	}
	vecLit := toVectorLiteral(vector)
	op := "<=>" // cosine distance
	scoreExpr := "1 - (vec <=> $1::vector)"
	switch p.metric {
	case "l2", "euclidean":
		op = "<->"
		scoreExpr = "-(vec <-> $1::vector)" // higher is better (less distance)
	case "ip", "dot":
		op = "<#>"
		scoreExpr = "-(vec <#> $1::vector)" // maximize inner product
	}
	args := []any{vecLit, k, tenantID, version}
	where := "WHERE tenant_id=$3 AND version=$4"
	if len(filter) > 0 {
		where += " AND metadata @> $5"
		args = append(args, filter)
	}
	query := fmt.Sprintf(`SELECT id, %s AS score, metadata FROM embeddings %s ORDER BY vec %s $1::vector LIMIT $2`, scoreExpr, where, op)
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]VectorResult, 0, k)
	for rows.Next() {
		var r VectorResult
		var md map[string]string
		if err := rows.Scan(&r.ID, &r.Score, &md); err != nil {
			return nil, err
		}
		r.Metadata = md
		out = append(out, r)
	}
	return out, rows.Err()
}

func toVectorLiteral(v []float32) string {
	if len(v) == 0 {
		return "[]"
	}
	b := strings.Builder{}
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(fmt.Sprintf("%g", x))
	}
	b.WriteByte(']')
	return b.String()
}
