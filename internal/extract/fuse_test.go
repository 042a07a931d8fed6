package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"ragforge/internal/llm"
	"ragforge/internal/persistence/databases"
)

func TestFuseEntities_MergesByNormalizedNameAndKind(t *testing.T) {
	t.Parallel()
	candidates := []Entity{
		{Name: "Latency", Kind: databases.NodeDefinition, Description: "short", Confidence: 0.6, ChunkIDs: []string{"c1"}},
		{Name: "latency!", Kind: databases.NodeDefinition, Description: "a much longer description", Confidence: 0.9, ChunkIDs: []string{"c2"}},
		{Name: "Latency", Kind: databases.NodeConcept, Description: "", Confidence: 0.5, ChunkIDs: []string{"c3"}},
	}
	out := FuseEntities(candidates)

	require.Len(t, out, 2)
	var defn Entity
	for _, e := range out {
		if e.Kind == databases.NodeDefinition {
			defn = e
		}
	}
	require.Equal(t, 0.9, defn.Confidence)
	require.Equal(t, "a much longer description", defn.Description)
	require.ElementsMatch(t, []string{"c1", "c2"}, defn.ChunkIDs)
}

func TestFilterRelations_DropsLowScore(t *testing.T) {
	t.Parallel()
	rels := []Relation{
		{SourceName: "A", TargetName: "B", Kind: databases.EdgeRelatedTo, Score: 0.49},
		{SourceName: "A", TargetName: "C", Kind: databases.EdgeRelatedTo, Score: 0.5},
	}
	out := filterRelations(rels)
	require.Len(t, out, 1)
	require.Equal(t, "C", out[0].TargetName)
}

type fakeChatter struct {
	content string
	err     error
}

func (f fakeChatter) Chat(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string) (llm.Message, error) {
	if f.err != nil {
		return llm.Message{}, f.err
	}
	return llm.Message{Role: "assistant", Content: f.content}, nil
}

func TestExtractor_Run_FusesRuleAndLLMPasses(t *testing.T) {
	t.Parallel()
	chat := fakeChatter{content: `{"entities":[{"name":"Gateway","type":"concept","description":"entry point"}],"relations":[]}`}
	ex := &Extractor{Chatter: chat, Model: "test-model"}

	chunks := []ChunkInput{
		{ID: "c1", Text: "Latency is defined as the time between request and response.", Headings: nil},
	}
	result, err := ex.Run(context.Background(), chunks)
	require.NoError(t, err)

	var names []string
	for _, e := range result.Entities {
		names = append(names, e.Name)
	}
	require.ElementsMatch(t, []string{"Latency", "Gateway"}, names)
}
