package retrieval

import "ragforge/internal/persistence/databases"

// SourceKind distinguishes where a ContextItem came from.
type SourceKind string

const (
	SourceVector SourceKind = "vector"
	SourceGraph  SourceKind = "graph"
)

// ContextItem is one piece of assembled context, carrying enough source
// metadata for the Answer Streamer to attribute it (SPEC_FULL.md §4.4 step 7).
type ContextItem struct {
	Source SourceKind
	Score  float64

	// Vector-sourced fields.
	ChunkID    string
	DocumentID string
	Filename   string
	Page       int
	Section    string
	ChunkIndex int
	Text       string

	// Graph-sourced fields.
	EntityID   string
	EntityName string
	EntityKind databases.NodeKind
	Hops       int // 0 = seed node, 1/2 = expansion depth

	MaxEdgeScore float64 // max incident edge score, used in the fused score
}

// Query is the Hybrid Retriever's input contract (SPEC_FULL.md §4.4).
type Query struct {
	Text         string
	TenantID     string
	Version      int
	IncludeGraph bool
	TopK         int
}

// Options carries the tunables from config.RetrievalConfig.
type Options struct {
	TopK                 int
	VectorScoreThreshold float64
	MaxHops              int
	GraphEdgeScoreThreshold float64
	GraphNodeCap          int
	ContextTokenBudget    int
}
