package extract

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ragforge/internal/persistence/databases"
)

func TestRuleBasedPass_Definitions(t *testing.T) {
	t.Parallel()
	text := "Latency is defined as the time between request and response.\n" +
		"Throughput: the number of requests served per second.\n" +
		"This sentence has a colon in it: but is far too long to look like a glossary term."
	ents := RuleBasedPass("c1", text, nil)

	require.Len(t, ents, 2)
	require.Equal(t, "Latency", ents[0].Name)
	require.Equal(t, databases.NodeDefinition, ents[0].Kind)
	require.Equal(t, ruleConfidence, ents[0].Confidence)
	require.Equal(t, "Throughput", ents[1].Name)
}

func TestRuleBasedPass_NumberedProcedure(t *testing.T) {
	t.Parallel()
	text := "1. Open the valve slowly.\n2. Wait for pressure to stabilize.\n3. Close the valve."
	ents := RuleBasedPass("c2", text, []string{"Startup Procedure"})

	require.Len(t, ents, 2)
	require.Equal(t, databases.NodeProcess, ents[0].Kind)
	require.Equal(t, "Startup Procedure", ents[0].Name)
}

func TestRuleBasedPass_HeadingsBecomeConcepts(t *testing.T) {
	t.Parallel()
	ents := RuleBasedPass("c3", "no patterns here", []string{"Overview"})
	require.Len(t, ents, 1)
	require.Equal(t, databases.NodeConcept, ents[0].Kind)
	require.InDelta(t, ruleConfidence*0.8, ents[0].Confidence, 0.0001)
}

func TestNormalize(t *testing.T) {
	t.Parallel()
	require.Equal(t, "request latency", Normalize("  Request-Latency! "))
	require.Equal(t, "api gateway", Normalize("API, Gateway."))
}
