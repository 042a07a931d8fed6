package retrieval

import (
	"context"
	"sort"
	"strconv"

	"ragforge/internal/persistence/databases"
)

// Embedder is the minimal surface the retriever needs from the LLM Gateway.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever implements the Hybrid Retriever algorithm of SPEC_FULL.md §4.4.
type Retriever struct {
	Vector databases.VectorStore
	Graph  databases.GraphDB
	Embed  Embedder
	Opts   Options
}

// New builds a Retriever, applying the SPEC_FULL.md §6 defaults to any zero
// fields in opts.
func New(vector databases.VectorStore, graph databases.GraphDB, embed Embedder, opts Options) *Retriever {
	if opts.TopK <= 0 {
		opts.TopK = 8
	}
	if opts.VectorScoreThreshold <= 0 {
		opts.VectorScoreThreshold = 0.7
	}
	if opts.MaxHops <= 0 {
		opts.MaxHops = 2
	}
	if opts.GraphEdgeScoreThreshold <= 0 {
		opts.GraphEdgeScoreThreshold = 0.7
	}
	if opts.GraphNodeCap <= 0 {
		opts.GraphNodeCap = 20
	}
	if opts.ContextTokenBudget <= 0 {
		opts.ContextTokenBudget = 3000
	}
	return &Retriever{Vector: vector, Graph: graph, Embed: embed, Opts: opts}
}

// Retrieve runs the full hybrid retrieval algorithm and returns a
// priority-ordered, token-budget-truncated context.
func (r *Retriever) Retrieve(ctx context.Context, q Query) ([]ContextItem, error) {
	topK := q.TopK
	if topK <= 0 {
		topK = r.Opts.TopK
	}

	// Step 1: embed query.
	vecs, err := r.Embed.EmbedBatch(ctx, []string{q.Text})
	if err != nil {
		return nil, err
	}
	var queryVec []float32
	if len(vecs) > 0 {
		queryVec = vecs[0]
	}

	// Step 2: vector top-K search, filtered by score threshold.
	rawHits, err := r.Vector.SimilaritySearch(ctx, q.TenantID, q.Version, queryVec, topK, nil)
	if err != nil {
		return nil, err
	}
	var hits []databases.VectorResult
	for _, h := range rawHits {
		if h.Score >= r.Opts.VectorScoreThreshold {
			hits = append(hits, h)
		}
	}

	includeGraph := q.IncludeGraph
	// A zero-value IncludeGraph skips graph seeding and expansion; the Answer
	// Streamer always sets it to true.

	var seeds []databases.GraphNode
	if includeGraph && r.Graph != nil {
		if len(hits) == 0 {
			// Step 3: vector returned nothing; still attempt keyword-based
			// graph seeding instead of skipping graph expansion entirely.
			for _, phrase := range ExtractCapitalizedPhrases(q.Text) {
				nodes, err := r.Graph.SeedByKeyword(ctx, q.TenantID, q.Version, phrase, 5)
				if err != nil {
					return nil, err
				}
				seeds = append(seeds, nodes...)
			}
		} else {
			// Step 4: seed entities from each retrieved chunk's graph nodes.
			for _, h := range hits {
				nodes, err := r.Graph.NodesByChunk(ctx, q.TenantID, q.Version, h.ID)
				if err != nil {
					return nil, err
				}
				seeds = append(seeds, nodes...)
			}
		}
	}

	// Step 5: 2-hop graph expansion.
	var expanded []expandedNode
	if includeGraph && r.Graph != nil && len(seeds) > 0 {
		expanded, err = expandGraph(ctx, r.Graph, q.TenantID, q.Version, seeds, r.Opts.MaxHops, r.Opts.GraphEdgeScoreThreshold, r.Opts.GraphNodeCap)
		if err != nil {
			return nil, err
		}
	}

	edgeScoreByChunk := maxEdgeScorePerChunk(expanded)

	// Step 6: context assembly.
	items := assemble(hits, expanded, edgeScoreByChunk)

	// Truncate to the token budget, preserving priority order.
	return truncateToBudget(items, r.Opts.ContextTokenBudget), nil
}

// maxEdgeScorePerChunk maps a chunk id to the maximum incident edge score
// among graph nodes whose chunk id list contains it, used for the fused
// score in step 6.
func maxEdgeScorePerChunk(expanded []expandedNode) map[string]float64 {
	out := make(map[string]float64)
	for _, e := range expanded {
		for _, cid := range e.Node.ChunkIDs {
			if e.MaxEdgeScore > out[cid] {
				out[cid] = e.MaxEdgeScore
			}
		}
	}
	return out
}

func assemble(hits []databases.VectorResult, expanded []expandedNode, edgeScoreByChunk map[string]float64) []ContextItem {
	var definitions, concepts, processes, vectorItems []ContextItem

	for _, e := range expanded {
		item := ContextItem{
			Source: SourceGraph, EntityID: e.Node.ID, EntityName: e.Node.Name, EntityKind: e.Node.Kind,
			Hops: e.Hops, Score: e.MaxEdgeScore, MaxEdgeScore: e.MaxEdgeScore,
			Text: descriptionOf(e.Node),
		}
		switch e.Node.Kind {
		case databases.NodeDefinition:
			definitions = append(definitions, item)
		case databases.NodeConcept:
			concepts = append(concepts, item)
		case databases.NodeProcess:
			processes = append(processes, item)
		}
	}
	// Lower-hop nodes win ties within each graph group.
	sortGraphGroup(definitions)
	sortGraphGroup(concepts)
	sortGraphGroup(processes)

	for _, h := range hits {
		edgeScore := edgeScoreByChunk[h.ID]
		fused := 0.7*h.Score + 0.3*edgeScore
		chunkIndex, _ := strconv.Atoi(h.Metadata["chunk_index"])
		page, _ := strconv.Atoi(h.Metadata["page"])
		vectorItems = append(vectorItems, ContextItem{
			Source: SourceVector, ChunkID: h.ID, DocumentID: h.Metadata["document_id"],
			Filename: h.Metadata["filename"], Page: page, Section: h.Metadata["section"],
			ChunkIndex: chunkIndex, Text: h.Metadata["text"], Score: fused, MaxEdgeScore: edgeScore,
		})
	}
	sort.SliceStable(vectorItems, func(i, j int) bool {
		if vectorItems[i].Score != vectorItems[j].Score {
			return vectorItems[i].Score > vectorItems[j].Score
		}
		return vectorItems[i].ChunkIndex < vectorItems[j].ChunkIndex
	})

	out := make([]ContextItem, 0, len(definitions)+len(vectorItems)+len(concepts)+len(processes))
	out = append(out, definitions...)
	out = append(out, vectorItems...)
	out = append(out, concepts...)
	out = append(out, processes...)
	return out
}

func sortGraphGroup(items []ContextItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Hops != items[j].Hops {
			return items[i].Hops < items[j].Hops
		}
		return items[i].Score > items[j].Score
	})
}

func descriptionOf(n databases.GraphNode) string {
	if n.Props == nil {
		return n.Name
	}
	if d, ok := n.Props["description"].(string); ok && d != "" {
		return n.Name + ": " + d
	}
	return n.Name
}

func truncateToBudget(items []ContextItem, budget int) []ContextItem {
	if budget <= 0 {
		return items
	}
	var out []ContextItem
	spent := 0
	for _, it := range items {
		cost := EstimateTokens(it.Text)
		if spent > 0 && spent+cost > budget {
			break
		}
		out = append(out, it)
		spent += cost
	}
	return out
}
