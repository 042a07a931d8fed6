package databases

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgGraph is a Postgres-backed GraphDB. Nodes and edges are plain rows
// scoped by (tenant_id, version), per §3's ownership summary: no object
// graph with in-process cycles, just rows fetched per query (§9).
type pgGraph struct{ pool *pgxpool.Pool }

func NewPostgresGraph(pool *pgxpool.Pool) GraphDB {
	ctx := context.Background()
	_, _ = pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS graph_nodes (
  id TEXT NOT NULL,
  tenant_id TEXT NOT NULL,
  version INT NOT NULL,
  kind TEXT NOT NULL,
  name TEXT NOT NULL,
  normalized_name TEXT NOT NULL,
  chunk_ids TEXT[] NOT NULL DEFAULT '{}',
  props JSONB NOT NULL DEFAULT '{}'::jsonb,
  PRIMARY KEY (tenant_id, version, id)
);
CREATE INDEX IF NOT EXISTS graph_nodes_name_idx ON graph_nodes(tenant_id, version, kind, normalized_name);

CREATE TABLE IF NOT EXISTS graph_edges (
  tenant_id TEXT NOT NULL,
  version INT NOT NULL,
  src_id TEXT NOT NULL,
  dst_id TEXT NOT NULL,
  kind TEXT NOT NULL,
  score DOUBLE PRECISION NOT NULL,
  PRIMARY KEY (tenant_id, version, src_id, dst_id, kind)
);
CREATE INDEX IF NOT EXISTS graph_edges_src_idx ON graph_edges(tenant_id, version, src_id);
`)
	return &pgGraph{pool: pool}
}

func normalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

func (g *pgGraph) UpsertNode(ctx context.Context, node GraphNode) error {
	props := node.Props
	if props == nil {
		props = map[string]any{}
	}
	_, err := g.pool.Exec(ctx, `
INSERT INTO graph_nodes(id, tenant_id, version, kind, name, normalized_name, chunk_ids, props)
VALUES($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (tenant_id, version, id) DO UPDATE SET
  name=EXCLUDED.name, normalized_name=EXCLUDED.normalized_name,
  chunk_ids=EXCLUDED.chunk_ids, props=EXCLUDED.props
`, node.ID, node.TenantID, node.Version, string(node.Kind), node.Name, normalizeName(node.Name), node.ChunkIDs, props)
	return err
}

func (g *pgGraph) UpsertEdge(ctx context.Context, edge GraphEdge) error {
	tenantID, version, err := g.ownerOf(ctx, edge.SrcID)
	if err != nil {
		return err
	}
	_, err = g.pool.Exec(ctx, `
INSERT INTO graph_edges(tenant_id, version, src_id, dst_id, kind, score)
VALUES($1,$2,$3,$4,$5,$6)
ON CONFLICT (tenant_id, version, src_id, dst_id, kind) DO UPDATE SET score=EXCLUDED.score
`, tenantID, version, edge.SrcID, edge.DstID, string(edge.Kind), edge.Score)
	return err
}

// ownerOf resolves the (tenant, version) partition for a node id, since
// GraphEdge only carries node ids, not their owning partition.
func (g *pgGraph) ownerOf(ctx context.Context, nodeID string) (string, int, error) {
	row := g.pool.QueryRow(ctx, `SELECT tenant_id, version FROM graph_nodes WHERE id=$1 LIMIT 1`, nodeID)
	var tenantID string
	var version int
	if err := row.Scan(&tenantID, &version); err != nil {
		return "", 0, err
	}
	return tenantID, version, nil
}

func (g *pgGraph) GetNode(ctx context.Context, tenantID string, version int, id string) (GraphNode, bool, error) {
	row := g.pool.QueryRow(ctx, `
SELECT id, tenant_id, version, kind, name, chunk_ids, props
FROM graph_nodes WHERE tenant_id=$1 AND version=$2 AND id=$3
`, tenantID, version, id)
	n, err := scanNode(row)
	if err == pgx.ErrNoRows {
		return GraphNode{}, false, nil
	}
	if err != nil {
		return GraphNode{}, false, err
	}
	return n, true, nil
}

func (g *pgGraph) FindByName(ctx context.Context, tenantID string, version int, kind NodeKind, name string) (GraphNode, bool, error) {
	row := g.pool.QueryRow(ctx, `
SELECT id, tenant_id, version, kind, name, chunk_ids, props
FROM graph_nodes WHERE tenant_id=$1 AND version=$2 AND kind=$3 AND normalized_name=$4
`, tenantID, version, string(kind), normalizeName(name))
	n, err := scanNode(row)
	if err == pgx.ErrNoRows {
		return GraphNode{}, false, nil
	}
	if err != nil {
		return GraphNode{}, false, err
	}
	return n, true, nil
}

func (g *pgGraph) Neighbors(ctx context.Context, tenantID string, version int, id string, minScore float64) ([]GraphEdge, error) {
	rows, err := g.pool.Query(ctx, `
SELECT src_id, dst_id, kind, score FROM graph_edges
WHERE tenant_id=$1 AND version=$2 AND src_id=$3 AND score>=$4
ORDER BY score DESC
`, tenantID, version, id, minScore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []GraphEdge
	for rows.Next() {
		var e GraphEdge
		var kind string
		if err := rows.Scan(&e.SrcID, &e.DstID, &kind, &e.Score); err != nil {
			return nil, err
		}
		e.Kind = EdgeKind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (g *pgGraph) SeedByKeyword(ctx context.Context, tenantID string, version int, keyword string, limit int) ([]GraphNode, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := g.pool.Query(ctx, `
SELECT id, tenant_id, version, kind, name, chunk_ids, props
FROM graph_nodes WHERE tenant_id=$1 AND version=$2 AND normalized_name LIKE '%'||$3||'%'
LIMIT $4
`, tenantID, version, normalizeName(keyword), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []GraphNode
	for rows.Next() {
		n, err := scanNodeRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (g *pgGraph) NodesByChunk(ctx context.Context, tenantID string, version int, chunkID string) ([]GraphNode, error) {
	rows, err := g.pool.Query(ctx, `
SELECT id, tenant_id, version, kind, name, chunk_ids, props
FROM graph_nodes WHERE tenant_id=$1 AND version=$2 AND $3=ANY(chunk_ids)
`, tenantID, version, chunkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []GraphNode
	for rows.Next() {
		n, err := scanNodeRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (g *pgGraph) DeleteVersion(ctx context.Context, tenantID string, version int) error {
	if _, err := g.pool.Exec(ctx, `DELETE FROM graph_edges WHERE tenant_id=$1 AND version=$2`, tenantID, version); err != nil {
		return err
	}
	_, err := g.pool.Exec(ctx, `DELETE FROM graph_nodes WHERE tenant_id=$1 AND version=$2`, tenantID, version)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (GraphNode, error) {
	var n GraphNode
	var kind string
	var props map[string]any
	if err := row.Scan(&n.ID, &n.TenantID, &n.Version, &kind, &n.Name, &n.ChunkIDs, &props); err != nil {
		return GraphNode{}, err
	}
	n.Kind = NodeKind(kind)
	n.Props = props
	return n, nil
}

func scanNodeRows(rows pgx.Rows) (GraphNode, error) {
	return scanNode(rows)
}
