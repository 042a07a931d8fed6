package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"ragforge/internal/persistence/databases"
)

type fakeEmbedder struct{ vec []float32 }

func (f fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

func TestRetriever_Retrieve_VectorAndGraphFusion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	vector := databases.NewMemoryVector()
	graph := databases.NewMemoryGraph()

	require.NoError(t, vector.Upsert(ctx, "t1", 1, "chunk-1", []float32{1, 0, 0}, map[string]string{
		"document_id": "doc1", "filename": "a.pdf", "page": "1", "section": "Intro",
		"chunk_index": "0", "text": "Latency is the time between request and response.",
	}))

	require.NoError(t, graph.UpsertNode(ctx, databases.GraphNode{
		ID: "n1", TenantID: "t1", Version: 1, Kind: databases.NodeDefinition, Name: "Latency",
		ChunkIDs: []string{"chunk-1"}, Props: map[string]any{"description": "response delay"},
	}))
	require.NoError(t, graph.UpsertNode(ctx, databases.GraphNode{
		ID: "n2", TenantID: "t1", Version: 1, Kind: databases.NodeConcept, Name: "Performance",
		ChunkIDs: []string{}, Props: map[string]any{},
	}))
	require.NoError(t, graph.UpsertEdge(ctx, databases.GraphEdge{
		SrcID: "n1", DstID: "n2", Kind: databases.EdgeRelatedTo, Score: 0.8,
	}))

	r := New(vector, graph, fakeEmbedder{vec: []float32{1, 0, 0}}, Options{})
	items, err := r.Retrieve(ctx, Query{Text: "What is latency?", TenantID: "t1", Version: 1, IncludeGraph: true, TopK: 5})
	require.NoError(t, err)
	require.NotEmpty(t, items)

	require.Equal(t, SourceGraph, items[0].Source)
	require.Equal(t, "Latency", items[0].EntityName)

	var sawVector bool
	for _, it := range items {
		if it.Source == SourceVector {
			sawVector = true
			require.Equal(t, "doc1", it.DocumentID)
			require.InDelta(t, 0.7*1.0+0.3*0.8, it.Score, 0.0001)
		}
	}
	require.True(t, sawVector)
}

func TestRetriever_Retrieve_BelowThresholdFallsBackToKeywordSeeding(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	vector := databases.NewMemoryVector()
	graph := databases.NewMemoryGraph()

	require.NoError(t, vector.Upsert(ctx, "t1", 1, "chunk-1", []float32{0, 1, 0}, map[string]string{"text": "unrelated"}))
	require.NoError(t, graph.UpsertNode(ctx, databases.GraphNode{
		ID: "n1", TenantID: "t1", Version: 1, Kind: databases.NodeConcept, Name: "Gateway",
	}))

	r := New(vector, graph, fakeEmbedder{vec: []float32{1, 0, 0}}, Options{})
	items, err := r.Retrieve(ctx, Query{Text: "Tell me about the Gateway", TenantID: "t1", Version: 1, IncludeGraph: true, TopK: 5})
	require.NoError(t, err)

	var sawGateway bool
	for _, it := range items {
		if it.EntityName == "Gateway" {
			sawGateway = true
		}
	}
	require.True(t, sawGateway)
}

func TestTruncateToBudget_AlwaysKeepsFirstItem(t *testing.T) {
	t.Parallel()
	items := []ContextItem{
		{Text: "a very long piece of text that exceeds the tiny budget all by itself"},
		{Text: "second"},
	}
	out := truncateToBudget(items, 1)
	require.Len(t, out, 1)
}
