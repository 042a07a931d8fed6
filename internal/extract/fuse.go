package extract

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"
)

// minEdgeScore is the SPEC_FULL.md §3 invariant: "edges with score < 0.5 are
// discarded."
const minEdgeScore = 0.5

// Result is the fused output of one document's rule + LLM extraction passes,
// ready for the Graph Builder to dedup and write.
type Result struct {
	Entities  []Entity
	Relations []Relation
}

// Extractor runs both passes over every chunk of a document and fuses the
// candidates. The LLM pass runs with bounded concurrency supplied by the
// caller's Chatter (the shared gateway semaphore already caps concurrent
// calls globally, per SPEC_FULL.md §4.1/§5).
type Extractor struct {
	Chatter Chatter
	Model   string
}

// ChunkInput is the minimal shape the extractor needs per chunk.
type ChunkInput struct {
	ID       string
	Text     string
	Headings []string
}

// Run executes the rule-based pass synchronously (CPU-bound, per SPEC_FULL.md
// §5 "never run on the request scheduler" — callers invoke Run from a worker
// goroutine) and the LLM pass concurrently per chunk, then fuses both.
func (e *Extractor) Run(ctx context.Context, chunks []ChunkInput) (Result, error) {
	var ruleEntities []Entity
	for _, c := range chunks {
		ruleEntities = append(ruleEntities, RuleBasedPass(c.ID, c.Text, c.Headings)...)
	}

	llmEntities := make([][]Entity, len(chunks))
	llmRelations := make([][]Relation, len(chunks))
	if e.Chatter != nil {
		g, gctx := errgroup.WithContext(ctx)
		for i, c := range chunks {
			i, c := i, c
			g.Go(func() error {
				ents, rels, err := LLMPass(gctx, e.Chatter, e.Model, c.ID, c.Text)
				if err != nil {
					return err
				}
				llmEntities[i] = ents
				llmRelations[i] = rels
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return Result{}, err
		}
	}

	var allEntities []Entity
	allEntities = append(allEntities, ruleEntities...)
	for _, ents := range llmEntities {
		allEntities = append(allEntities, ents...)
	}
	var allRelations []Relation
	for _, rels := range llmRelations {
		allRelations = append(allRelations, rels...)
	}

	return Result{
		Entities:  FuseEntities(allEntities),
		Relations: filterRelations(allRelations),
	}, nil
}

// FuseEntities merges candidates with the same (normalized name, kind),
// unioning their chunk id lists and keeping the max confidence and the
// longest description, per SPEC_FULL.md §4.3's fusion rule.
func FuseEntities(candidates []Entity) []Entity {
	type key struct {
		name string
		kind string
	}
	merged := map[key]*Entity{}
	order := []key{}
	for _, c := range candidates {
		k := key{name: Normalize(c.Name), kind: string(c.Kind)}
		if k.name == "" {
			continue
		}
		existing, ok := merged[k]
		if !ok {
			cp := c
			cp.ChunkIDs = append([]string(nil), c.ChunkIDs...)
			merged[k] = &cp
			order = append(order, k)
			continue
		}
		if c.Confidence > existing.Confidence {
			existing.Confidence = c.Confidence
		}
		if len(c.Description) > len(existing.Description) {
			existing.Description = c.Description
		}
		existing.ChunkIDs = unionStrings(existing.ChunkIDs, c.ChunkIDs)
	}
	out := make([]Entity, 0, len(order))
	for _, k := range order {
		out = append(out, *merged[k])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func filterRelations(candidates []Relation) []Relation {
	out := make([]Relation, 0, len(candidates))
	for _, r := range candidates {
		if r.Score >= minEdgeScore {
			out = append(out, r)
		}
	}
	return out
}

func unionStrings(a, b []string) []string {
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
