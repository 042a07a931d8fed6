package databases

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"ragforge/internal/config"
)

func TestMemoryVector_UpsertAndQuery(t *testing.T) {
	t.Parallel()
	v := NewMemoryVector()
	ctx := context.Background()
	require.NoError(t, v.EnsureCollection(ctx, "tenant1", 1, 2))
	require.NoError(t, v.Upsert(ctx, "tenant1", 1, "a", []float32{1, 0}, map[string]string{"label": "A"}))
	require.NoError(t, v.Upsert(ctx, "tenant1", 1, "b", []float32{0, 1}, nil))
	require.NoError(t, v.Upsert(ctx, "tenant1", 1, "c", []float32{1, 1}, nil))
	// A different tenant+version partition must never leak into results.
	require.NoError(t, v.Upsert(ctx, "tenant2", 1, "a", []float32{0, 1}, nil))

	res, err := v.SimilaritySearch(ctx, "tenant1", 1, []float32{0.9, 0.1}, 2, nil)
	require.NoError(t, err)
	require.Len(t, res, 2)
	require.Equal(t, "a", res[0].ID)

	require.NoError(t, v.DropCollection(ctx, "tenant1", 1))
	res, err = v.SimilaritySearch(ctx, "tenant1", 1, []float32{0.9, 0.1}, 2, nil)
	require.NoError(t, err)
	require.Empty(t, res)
}

func TestMemoryGraph_Basics(t *testing.T) {
	t.Parallel()
	g := NewMemoryGraph()
	ctx := context.Background()
	n1 := GraphNode{ID: "n1", TenantID: "t", Version: 1, Kind: NodeConcept, Name: "Alice"}
	n2 := GraphNode{ID: "n2", TenantID: "t", Version: 1, Kind: NodeConcept, Name: "Bob"}
	require.NoError(t, g.UpsertNode(ctx, n1))
	require.NoError(t, g.UpsertNode(ctx, n2))
	require.NoError(t, g.UpsertEdge(ctx, GraphEdge{SrcID: "n1", DstID: "n2", Kind: EdgeRelatedTo, Score: 0.9}))

	neigh, err := g.Neighbors(ctx, "t", 1, "n1", 0.5)
	require.NoError(t, err)
	require.Len(t, neigh, 1)
	require.Equal(t, "n2", neigh[0].DstID)

	got, ok, err := g.GetNode(ctx, "t", 1, "n1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Alice", got.Name)

	found, ok, err := g.FindByName(ctx, "t", 1, NodeConcept, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "n1", found.ID)

	require.NoError(t, g.DeleteVersion(ctx, "t", 1))
	_, ok, err = g.GetNode(ctx, "t", 1, "n1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFactory_DefaultsAreMemory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mgr, err := NewManager(ctx, config.Config{})
	require.NoError(t, err)
	require.NotNil(t, mgr.Vector)
	require.NotNil(t, mgr.Graph)
	require.NotNil(t, mgr.Meta)
}
