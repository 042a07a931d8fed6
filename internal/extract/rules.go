// Package extract implements the Entity & Relation Extractor (SPEC_FULL.md
// §4.3): a rule-based pass over heading/definition/procedure patterns,
// unioned with an LLM-based structured extraction pass, fused by normalized
// name with max-confidence merge.
package extract

import (
	"regexp"
	"strings"

	"ragforge/internal/persistence/databases"
)

// Entity is a candidate graph node discovered in one chunk of text.
type Entity struct {
	Name        string
	Kind        databases.NodeKind
	Description string
	Confidence  float64
	ChunkIDs    []string
}

// Relation is a candidate graph edge between two entities, referenced by
// their (pre-normalization) display names so fusion can resolve them to
// node ids after dedup.
type Relation struct {
	SourceName string
	TargetName string
	Kind       databases.EdgeKind
	Score      float64
	Context    string
	DependsSub string
}

// ruleConfidence is the fixed confidence the rule-based pass assigns to
// every Definition and Process candidate it emits (SPEC_FULL.md §4.3:
// "confidence 0.9"); heading Concept candidates get 0.8 of it.
const ruleConfidence = 0.9

var (
	// "X is defined as ..." / "X: ..." definition patterns.
	definedAsRe  = regexp.MustCompile(`(?i)^([A-Z][\w \-/]{1,60}?)\s+is defined as\s+(.+)$`)
	colonDefnRe  = regexp.MustCompile(`^([A-Z][\w \-/]{1,60}?):\s+(.{10,400})$`)
	numberedStep = regexp.MustCompile(`^\s*(\d+)[.)]\s+(.{3,300})$`)
)

// RuleBasedPass scans chunk text for definition patterns, numbered
// procedures, and headings (supplied separately from the PDF parse stage)
// and emits Definition/Process candidates with a fixed confidence, plus one
// lower-confidence Concept candidate per heading.
func RuleBasedPass(chunkID string, text string, headings []string) []Entity {
	var out []Entity
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := definedAsRe.FindStringSubmatch(line); m != nil {
			out = append(out, Entity{
				Name: strings.TrimSpace(m[1]), Kind: databases.NodeDefinition,
				Description: strings.TrimSpace(m[2]), Confidence: ruleConfidence, ChunkIDs: []string{chunkID},
			})
			continue
		}
		if m := colonDefnRe.FindStringSubmatch(line); m != nil && looksLikeTerm(m[1]) {
			out = append(out, Entity{
				Name: strings.TrimSpace(m[1]), Kind: databases.NodeDefinition,
				Description: strings.TrimSpace(m[2]), Confidence: ruleConfidence, ChunkIDs: []string{chunkID},
			})
			continue
		}
	}

	if steps := collectNumberedSteps(text); len(steps) >= 2 {
		out = append(out, Entity{
			Name: procedureName(headings, steps), Kind: databases.NodeProcess,
			Description: strings.Join(steps, " "), Confidence: ruleConfidence, ChunkIDs: []string{chunkID},
		})
	}

	for _, h := range headings {
		out = append(out, Entity{
			Name: h, Kind: databases.NodeConcept, Description: "", Confidence: ruleConfidence * 0.8,
			ChunkIDs: []string{chunkID},
		})
	}
	return out
}

// looksLikeTerm rejects colon lines whose left side reads like a sentence
// fragment rather than a glossary term (too many words, ends mid-clause).
func looksLikeTerm(s string) bool {
	words := strings.Fields(s)
	return len(words) > 0 && len(words) <= 6
}

func collectNumberedSteps(text string) []string {
	var steps []string
	for _, line := range strings.Split(text, "\n") {
		if m := numberedStep.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			steps = append(steps, m[2])
		}
	}
	return steps
}

func procedureName(headings []string, steps []string) string {
	if len(headings) > 0 {
		return headings[len(headings)-1]
	}
	if len(steps) > 0 {
		words := strings.Fields(steps[0])
		if len(words) > 6 {
			words = words[:6]
		}
		return strings.Join(words, " ") + " procedure"
	}
	return "procedure"
}

// Normalize produces the dedup key used across the rule and LLM passes: the
// name lowercased, whitespace-collapsed, and stripped of punctuation, per
// SPEC_FULL.md §4.3; a hyphen separates words like a space. Display casing
// is preserved separately by the caller.
func Normalize(name string) string {
	var b strings.Builder
	prevSpace := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '-':
			if !prevSpace {
				b.WriteRune(' ')
			}
			prevSpace = true
		case isPunct(r):
			// dropped
		default:
			b.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSpace(b.String())
}

func isPunct(r rune) bool {
	switch r {
	case '.', ',', ';', ':', '!', '?', '"', '\'', '(', ')', '[', ']', '{', '}', '-', '_', '/', '\\':
		return true
	}
	return false
}
