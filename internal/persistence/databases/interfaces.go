package databases

import (
	"context"

	"ragforge/internal/persistence"
)

// VectorResult represents a single nearest neighbor lookup result.
type VectorResult struct {
	ID       string
	Score    float64 // cosine similarity, higher is closer
	Metadata map[string]string
}

// VectorStore is the chunk-embedding index, partitioned per tenant+version
// via the collection naming convention chatbot_{tenant_uuid}_v{version}.
// Every operation is explicitly scoped to a tenant+version so a Qdrant-backed
// implementation can route to the correct collection.
type VectorStore interface {
	Upsert(ctx context.Context, tenantID string, version int, id string, vector []float32, metadata map[string]string) error
	Delete(ctx context.Context, tenantID string, version int, id string) error
	SimilaritySearch(ctx context.Context, tenantID string, version int, vector []float32, k int, filter map[string]string) ([]VectorResult, error)
	// EnsureCollection creates the tenant+version-scoped collection if absent.
	EnsureCollection(ctx context.Context, tenantID string, version int, dim int) error
	// DropCollection removes a tenant+version's vector collection entirely,
	// used during build-version cleanup.
	DropCollection(ctx context.Context, tenantID string, version int) error
}

// NodeKind enumerates the knowledge-graph node types produced by the Entity
// & Relation Extractor.
type NodeKind string

const (
	NodeConcept    NodeKind = "concept"
	NodeDefinition NodeKind = "definition"
	NodeProcess    NodeKind = "process"
)

// EdgeKind enumerates the supported relation types.
type EdgeKind string

const (
	EdgeRelatedTo EdgeKind = "RELATED_TO"
	EdgeDefines   EdgeKind = "DEFINES"
	EdgeDependsOn EdgeKind = "DEPENDS_ON"
)

// GraphNode is one knowledge-graph node, scoped to a tenant+version.
type GraphNode struct {
	ID        string
	TenantID  string
	Version   int
	Kind      NodeKind
	Name      string
	ChunkIDs  []string
	Props     map[string]any
}

// GraphEdge is one directed, scored relation between two nodes.
type GraphEdge struct {
	SrcID string
	DstID string
	Kind  EdgeKind
	Score float64
}

// GraphDB is the tenant+version-partitioned knowledge-graph store consulted
// by the Hybrid Retriever's expansion step and populated by the Graph
// Builder.
type GraphDB interface {
	UpsertNode(ctx context.Context, node GraphNode) error
	UpsertEdge(ctx context.Context, edge GraphEdge) error
	GetNode(ctx context.Context, tenantID string, version int, id string) (GraphNode, bool, error)
	// FindByName looks up a node by its normalized name within a tenant+version,
	// used to dedup entities across chunks during ingestion.
	FindByName(ctx context.Context, tenantID string, version int, kind NodeKind, name string) (GraphNode, bool, error)
	// Neighbors returns nodes reachable from id via edges scoring at least
	// minScore, used for the Hybrid Retriever's 2-hop expansion.
	Neighbors(ctx context.Context, tenantID string, version int, id string, minScore float64) ([]GraphEdge, error)
	// SeedByKeyword finds candidate nodes by substring match on name, used
	// when the vector search returns no candidates at all (the graph
	// expansion step must still run in that case, never be skipped).
	SeedByKeyword(ctx context.Context, tenantID string, version int, keyword string, limit int) ([]GraphNode, error)
	// NodesByChunk finds nodes whose ChunkIDs contain chunkID, used by the
	// Hybrid Retriever to seed graph expansion from a vector search hit.
	NodesByChunk(ctx context.Context, tenantID string, version int, chunkID string) ([]GraphNode, error)
	// DeleteVersion removes every node and edge for a tenant+version, used
	// during build-version cleanup.
	DeleteVersion(ctx context.Context, tenantID string, version int) error
}

// Manager holds concrete database backends resolved from configuration.
type Manager struct {
	Vector VectorStore
	Graph  GraphDB
	Meta   persistence.MetaStore
}

// Close attempts to close any underlying pools. It's a no-op for memory backends.
func (m Manager) Close() {
	if c, ok := any(m.Vector).(interface{ Close() }); ok {
		c.Close()
	}
	if c, ok := any(m.Graph).(interface{ Close() }); ok {
		c.Close()
	}
	if m.Meta != nil {
		m.Meta.Close()
	}
}
