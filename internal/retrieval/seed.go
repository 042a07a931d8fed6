package retrieval

import "regexp"

// capitalizedPhraseRe matches runs of two or more consecutive Capitalized
// Words, e.g. "GraphRAG" (single word handled separately) or "Photosynthesis
// Process". Used for keyword-based graph seeding when vector search returns
// nothing (SPEC_FULL.md §4.4 step 3).
var capitalizedPhraseRe = regexp.MustCompile(`\b([A-Z][a-zA-Z0-9]*(?:\s+[A-Z][a-zA-Z0-9]*)+|[A-Z][a-zA-Z0-9]{2,})\b`)

// ExtractCapitalizedPhrases returns the distinct capitalized single words and
// multi-word phrases found in the query text, in order of first appearance.
func ExtractCapitalizedPhrases(query string) []string {
	matches := capitalizedPhraseRe.FindAllString(query, -1)
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}
