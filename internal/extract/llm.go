package extract

import (
	"context"
	"encoding/json"
	"strings"

	"ragforge/internal/apperr"
	"ragforge/internal/llm"
	"ragforge/internal/persistence/databases"
)

// Chatter is the minimal LLM surface the extractor needs; satisfied by
// *gateway.Gateway in production and a fake in tests.
type Chatter interface {
	Chat(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string) (llm.Message, error)
}

// llmEntity/llmRelation mirror the closed schema the extraction prompt
// enforces (SPEC_FULL.md §4.3: "closed relation-type set and an integer-score
// hint normalized to [0,1]").
type llmEntity struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

type llmRelation struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"relation_type"`
	Score  int    `json:"score"` // integer 0-100, normalized to [0,1] below
}

type llmResponse struct {
	Entities  []llmEntity   `json:"entities"`
	Relations []llmRelation `json:"relations"`
}

const systemPrompt = `You extract entities and relations from a document chunk for a knowledge graph.
Respond with ONLY a JSON object of the form:
{"entities":[{"name":"...","type":"concept|definition|process","description":"..."}],
 "relations":[{"source":"...","target":"...","relation_type":"RELATED_TO|DEFINES|DEPENDS_ON","score":0-100}]}
No prose, no markdown fences, just the JSON object.`

// LLMPass prompts the gateway for a structured extraction over one chunk.
// A response that fails schema validation is discarded for that chunk and
// is not treated as fatal (SPEC_FULL.md §4.3).
func LLMPass(ctx context.Context, g Chatter, model string, chunkID string, chunkText string) ([]Entity, []Relation, error) {
	msgs := []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: chunkText},
	}
	out, err := g.Chat(ctx, msgs, nil, model)
	if err != nil {
		if ae, ok := err.(*apperr.Error); ok && ae.Kind == apperr.Permanent {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	var parsed llmResponse
	if err := json.Unmarshal([]byte(extractJSON(out.Content)), &parsed); err != nil {
		return nil, nil, nil // schema validation failure: discarded, not fatal
	}

	entities := make([]Entity, 0, len(parsed.Entities))
	for _, e := range parsed.Entities {
		kind := parseNodeKind(e.Type)
		if kind == "" || strings.TrimSpace(e.Name) == "" {
			continue
		}
		entities = append(entities, Entity{
			Name: strings.TrimSpace(e.Name), Kind: kind, Description: strings.TrimSpace(e.Description),
			Confidence: 0.75, ChunkIDs: []string{chunkID},
		})
	}

	relations := make([]Relation, 0, len(parsed.Relations))
	for _, r := range parsed.Relations {
		kind := parseEdgeKind(r.Type)
		if kind == "" || strings.TrimSpace(r.Source) == "" || strings.TrimSpace(r.Target) == "" {
			continue
		}
		score := float64(r.Score) / 100.0
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		relations = append(relations, Relation{
			SourceName: strings.TrimSpace(r.Source), TargetName: strings.TrimSpace(r.Target),
			Kind: kind, Score: score, Context: chunkID,
		})
	}
	return entities, relations, nil
}

func parseNodeKind(s string) databases.NodeKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "concept":
		return databases.NodeConcept
	case "definition":
		return databases.NodeDefinition
	case "process":
		return databases.NodeProcess
	default:
		return ""
	}
}

func parseEdgeKind(s string) databases.EdgeKind {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(databases.EdgeRelatedTo):
		return databases.EdgeRelatedTo
	case string(databases.EdgeDefines):
		return databases.EdgeDefines
	case string(databases.EdgeDependsOn):
		return databases.EdgeDependsOn
	default:
		return ""
	}
}

// extractJSON trims a response down to its outermost {...} object, tolerating
// models that wrap JSON in prose or markdown code fences despite instructions.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return s
	}
	return s[start : end+1]
}
