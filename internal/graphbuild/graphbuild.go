// Package graphbuild implements the Graph Builder (SPEC_FULL.md §2 in the
// overview, detailed by the dedup/upsert rules of §4.3 and §3): it
// deduplicates extracted entities by normalized name within a
// tenant+version, upserts nodes, resolves relation candidates to node ids,
// skips relations whose endpoints do not resolve, and writes to the GraphDB.
// Relations are written with the score they carry; the score < 0.5 discard
// happens earlier, in extract.Extractor.Run. Writes for a given
// tenant+version are serialized through a per-tenant mutex so concurrent
// document ingestion never races on node dedup (SPEC_FULL.md §5).
package graphbuild

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"ragforge/internal/extract"
	"ragforge/internal/persistence/databases"
)

// Locks hands out one mutex per tenant id, used to serialize graph writes
// across concurrently ingesting documents of the same tenant.
type Locks struct {
	mu    sync.Mutex
	perID map[string]*sync.Mutex
}

// NewLocks constructs an empty tenant-mutex registry.
func NewLocks() *Locks { return &Locks{perID: make(map[string]*sync.Mutex)} }

func (l *Locks) forTenant(tenantID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.perID[tenantID]
	if !ok {
		m = &sync.Mutex{}
		l.perID[tenantID] = m
	}
	return m
}

// Builder writes fused extraction results into the GraphDB.
type Builder struct {
	Graph databases.GraphDB
	Locks *Locks
}

// NewBuilder constructs a Builder sharing tenant locks across calls.
func NewBuilder(graph databases.GraphDB, locks *Locks) *Builder {
	return &Builder{Graph: graph, Locks: locks}
}

// Build upserts every fused entity as a node (deduping against existing
// nodes of the same tenant+version+kind+normalized-name) and every relation
// whose endpoints resolved to node ids as an edge. It returns the number of
// distinct nodes written, used by the orchestrator to populate
// Document.EntityCount.
func (b *Builder) Build(ctx context.Context, tenantID string, version int, result extract.Result) (int, error) {
	lock := b.Locks.forTenant(tenantID)
	lock.Lock()
	defer lock.Unlock()

	nameToID := make(map[string]string, len(result.Entities))
	written := make(map[string]struct{}, len(result.Entities))
	for _, e := range result.Entities {
		id, err := b.upsertEntity(ctx, tenantID, version, e)
		if err != nil {
			return 0, err
		}
		written[id] = struct{}{}
		nameToID[dedupKey(e.Kind, e.Name)] = id
		// Relations reference entities by display name without a known kind,
		// so also index by normalized name alone for best-effort resolution.
		nameToID[extract.Normalize(e.Name)] = id
	}

	for _, r := range result.Relations {
		srcID, srcOK := resolveName(nameToID, r.SourceName)
		dstID, dstOK := resolveName(nameToID, r.TargetName)
		if !srcOK || !dstOK || srcID == dstID {
			continue
		}
		edge := databases.GraphEdge{SrcID: srcID, DstID: dstID, Kind: r.Kind, Score: r.Score}
		if err := b.Graph.UpsertEdge(ctx, edge); err != nil {
			return 0, err
		}
	}
	return len(written), nil
}

func resolveName(index map[string]string, name string) (string, bool) {
	id, ok := index[extract.Normalize(name)]
	return id, ok
}

func dedupKey(kind databases.NodeKind, name string) string {
	return string(kind) + "|" + extract.Normalize(name)
}

// upsertEntity merges e into any existing node of the same tenant+version+
// kind+normalized-name (SPEC_FULL.md §3: "nodes with the same (tenant,
// version, type, normalized name) are deduplicated; their chunk id lists
// merge"), or creates a new one.
func (b *Builder) upsertEntity(ctx context.Context, tenantID string, version int, e extract.Entity) (string, error) {
	existing, found, err := b.Graph.FindByName(ctx, tenantID, version, e.Kind, e.Name)
	if err != nil {
		return "", err
	}
	node := databases.GraphNode{
		TenantID: tenantID, Version: version, Kind: e.Kind, Name: e.Name,
		Props: map[string]any{"description": e.Description, "confidence": e.Confidence},
	}
	if found {
		node.ID = existing.ID
		node.ChunkIDs = unionChunkIDs(existing.ChunkIDs, e.ChunkIDs)
		if existingConf, ok := existing.Props["confidence"].(float64); ok && existingConf > e.Confidence {
			node.Props["confidence"] = existingConf
		}
		if existingDesc, _ := existing.Props["description"].(string); len(existingDesc) > len(e.Description) {
			node.Props["description"] = existingDesc
		}
	} else {
		node.ID = uuid.NewString()
		node.ChunkIDs = append([]string(nil), e.ChunkIDs...)
	}
	if err := b.Graph.UpsertNode(ctx, node); err != nil {
		return "", err
	}
	return node.ID, nil
}

func unionChunkIDs(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	out := append([]string(nil), a...)
	for _, s := range a {
		seen[s] = true
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
