package graphbuild

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"ragforge/internal/extract"
	"ragforge/internal/persistence/databases"
)

func TestBuilder_Build_DedupsAndFiltersEdges(t *testing.T) {
	t.Parallel()
	graph := databases.NewMemoryGraph()
	b := NewBuilder(graph, NewLocks())

	result := extract.Result{
		Entities: []extract.Entity{
			{Name: "Latency", Kind: databases.NodeDefinition, Description: "the time between request and response", Confidence: 0.9, ChunkIDs: []string{"c1"}},
			{Name: "Throughput", Kind: databases.NodeDefinition, Description: "requests per second", Confidence: 0.9, ChunkIDs: []string{"c2"}},
		},
		Relations: []extract.Relation{
			{SourceName: "Latency", TargetName: "Throughput", Kind: databases.EdgeRelatedTo, Score: 0.8},
			{SourceName: "Latency", TargetName: "Unknown Entity", Kind: databases.EdgeRelatedTo, Score: 0.9},
		},
	}

	n, err := b.Build(context.Background(), "tenant1", 1, result)
	require.NoError(t, err)
	require.GreaterOrEqual(t, n, 2)

	latency, found, err := graph.FindByName(context.Background(), "tenant1", 1, databases.NodeDefinition, "Latency")
	require.NoError(t, err)
	require.True(t, found)

	edges, err := graph.Neighbors(context.Background(), "tenant1", 1, latency.ID, 0)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	require.Equal(t, 0.8, edges[0].Score)
}

func TestBuilder_Build_SecondDocumentMergesByName(t *testing.T) {
	t.Parallel()
	graph := databases.NewMemoryGraph()
	b := NewBuilder(graph, NewLocks())
	ctx := context.Background()

	_, err := b.Build(ctx, "tenant1", 1, extract.Result{
		Entities: []extract.Entity{
			{Name: "Latency", Kind: databases.NodeDefinition, Description: "short", Confidence: 0.5, ChunkIDs: []string{"c1"}},
		},
	})
	require.NoError(t, err)

	_, err = b.Build(ctx, "tenant1", 1, extract.Result{
		Entities: []extract.Entity{
			{Name: "latency", Kind: databases.NodeDefinition, Description: "a longer and more complete definition", Confidence: 0.9, ChunkIDs: []string{"c2"}},
		},
	})
	require.NoError(t, err)

	node, found, err := graph.FindByName(ctx, "tenant1", 1, databases.NodeDefinition, "Latency")
	require.NoError(t, err)
	require.True(t, found)
	require.ElementsMatch(t, []string{"c1", "c2"}, node.ChunkIDs)
	require.Equal(t, "a longer and more complete definition", node.Props["description"])
}
