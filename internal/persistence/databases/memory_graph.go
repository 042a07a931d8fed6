package databases

import (
	"context"
	"strings"
	"sync"
)

type scopedKey struct {
	tenant  string
	version int
	id      string
}

// memoryGraph is an in-process GraphDB used by tests and the memory backend.
type memoryGraph struct {
	mu    sync.RWMutex
	nodes map[scopedKey]GraphNode
	edges map[scopedKey][]GraphEdge // keyed by (tenant, version, srcID)
}

func NewMemoryGraph() GraphDB {
	return &memoryGraph{
		nodes: make(map[scopedKey]GraphNode),
		edges: make(map[scopedKey][]GraphEdge),
	}
}

func nodeKey(tenantID string, version int, id string) scopedKey {
	return scopedKey{tenant: tenantID, version: version, id: id}
}

func (m *memoryGraph) UpsertNode(_ context.Context, node GraphNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes[nodeKey(node.TenantID, node.Version, node.ID)] = node
	return nil
}

func (m *memoryGraph) UpsertEdge(_ context.Context, edge GraphEdge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.findByID(edge.SrcID)
	tenant, version := "", 0
	if ok {
		tenant, version = src.TenantID, src.Version
	}
	key := nodeKey(tenant, version, edge.SrcID)
	edges := m.edges[key]
	for i, e := range edges {
		if e.DstID == edge.DstID && e.Kind == edge.Kind {
			edges[i] = edge
			m.edges[key] = edges
			return nil
		}
	}
	m.edges[key] = append(edges, edge)
	return nil
}

func (m *memoryGraph) findByID(id string) (GraphNode, bool) {
	for _, n := range m.nodes {
		if n.ID == id {
			return n, true
		}
	}
	return GraphNode{}, false
}

func (m *memoryGraph) GetNode(_ context.Context, tenantID string, version int, id string) (GraphNode, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[nodeKey(tenantID, version, id)]
	return n, ok, nil
}

func (m *memoryGraph) FindByName(_ context.Context, tenantID string, version int, kind NodeKind, name string) (GraphNode, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	norm := strings.ToLower(strings.TrimSpace(name))
	for k, n := range m.nodes {
		if k.tenant != tenantID || k.version != version || n.Kind != kind {
			continue
		}
		if strings.ToLower(strings.TrimSpace(n.Name)) == norm {
			return n, true, nil
		}
	}
	return GraphNode{}, false, nil
}

func (m *memoryGraph) Neighbors(_ context.Context, tenantID string, version int, id string, minScore float64) ([]GraphEdge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []GraphEdge
	for _, e := range m.edges[nodeKey(tenantID, version, id)] {
		if e.Score >= minScore {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memoryGraph) SeedByKeyword(_ context.Context, tenantID string, version int, keyword string, limit int) ([]GraphNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	kw := strings.ToLower(strings.TrimSpace(keyword))
	var out []GraphNode
	for k, n := range m.nodes {
		if k.tenant != tenantID || k.version != version {
			continue
		}
		if kw != "" && strings.Contains(strings.ToLower(n.Name), kw) {
			out = append(out, n)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memoryGraph) NodesByChunk(_ context.Context, tenantID string, version int, chunkID string) ([]GraphNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []GraphNode
	for k, n := range m.nodes {
		if k.tenant != tenantID || k.version != version {
			continue
		}
		for _, cid := range n.ChunkIDs {
			if cid == chunkID {
				out = append(out, n)
				break
			}
		}
	}
	return out, nil
}

func (m *memoryGraph) DeleteVersion(_ context.Context, tenantID string, version int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.nodes {
		if k.tenant == tenantID && k.version == version {
			delete(m.nodes, k)
		}
	}
	for k := range m.edges {
		if k.tenant == tenantID && k.version == version {
			delete(m.edges, k)
		}
	}
	return nil
}
