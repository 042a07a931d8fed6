package retrieval

import (
	"context"

	"ragforge/internal/persistence/databases"
)

// expandedNode is one node reached during graph traversal, tagged with the
// hop distance from its nearest seed and the highest score among the edge
// traversed to reach it and its own outgoing edges (at any score).
type expandedNode struct {
	Node         databases.GraphNode
	Hops         int
	MaxEdgeScore float64
}

// expandGraph performs a breadth-first traversal from seeds up to maxHops,
// following only edges scoring at least minEdgeScore, and caps the total
// number of nodes returned (including seeds) at nodeCap (SPEC_FULL.md §4.4
// step 5).
func expandGraph(ctx context.Context, g databases.GraphDB, tenantID string, version int, seeds []databases.GraphNode, maxHops int, minEdgeScore float64, nodeCap int) ([]expandedNode, error) {
	visited := make(map[string]*expandedNode, len(seeds))
	order := make([]string, 0, len(seeds))

	frontier := make([]string, 0, len(seeds))
	for _, s := range seeds {
		if len(visited) >= nodeCap {
			break
		}
		if _, ok := visited[s.ID]; ok {
			continue
		}
		visited[s.ID] = &expandedNode{Node: s, Hops: 0}
		order = append(order, s.ID)
		frontier = append(frontier, s.ID)
	}

	for hop := 1; hop <= maxHops && len(visited) < nodeCap; hop++ {
		var next []string
		for _, id := range frontier {
			if len(visited) >= nodeCap {
				break
			}
			edges, err := g.Neighbors(ctx, tenantID, version, id, minEdgeScore)
			if err != nil {
				return nil, err
			}
			for _, e := range edges {
				if len(visited) >= nodeCap {
					break
				}
				if existing, ok := visited[e.DstID]; ok {
					if e.Score > existing.MaxEdgeScore {
						existing.MaxEdgeScore = e.Score
					}
					continue
				}
				node, found, err := g.GetNode(ctx, tenantID, version, e.DstID)
				if err != nil {
					return nil, err
				}
				if !found {
					continue
				}
				visited[e.DstID] = &expandedNode{Node: node, Hops: hop, MaxEdgeScore: e.Score}
				order = append(order, e.DstID)
				next = append(next, e.DstID)
			}
		}
		frontier = next
	}

	// Raise every visited node's MaxEdgeScore, seeds included, to the highest
	// score among its own outgoing edges (at any score), so a seed that no
	// traversed edge reached still contributes to the fused score.
	for _, id := range order {
		n := visited[id]
		edges, err := g.Neighbors(ctx, tenantID, version, id, 0)
		if err != nil {
			continue
		}
		for _, e := range edges {
			if e.Score > n.MaxEdgeScore {
				n.MaxEdgeScore = e.Score
			}
		}
	}

	out := make([]expandedNode, 0, len(order))
	for _, id := range order {
		out = append(out, *visited[id])
	}
	return out, nil
}
