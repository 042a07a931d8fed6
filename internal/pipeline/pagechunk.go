// Package pipeline implements the Ingestion Orchestrator (SPEC_FULL.md
// §4.1, §5): a six-stage pipeline (parse, chunk, embed, extract, graph,
// finalize) driven by an in-process worker pool, with per-stage progress
// reporting, retry-with-backoff on transient failures, and idempotent
// re-execution of any stage.
package pipeline

import (
	"sort"
	"strings"

	"ragforge/internal/pdf"
	"ragforge/internal/rag/chunker"
)

// PageChunk is one chunk of a parsed document, carrying the page and section
// attribution the Hybrid Retriever's context assembly needs, in addition to
// the chunker's deterministic id and index.
type PageChunk struct {
	Index   int
	ID      string
	Text    string
	Page    int
	Section string
}

var tableCaptionPrefixes = []string{"table ", "figure ", "fig. "}

// ChunkDocument splits a parsed PDF into recursively-chunked, page/section
// attributed chunks. Each PDF page is chunked independently so that a chunk
// never straddles a page boundary (needed for accurate page-level citation),
// then tagged with the nearest heading at or before that page and a simple
// table/caption heuristic.
func ChunkDocument(doc pdf.Document, docID string, opts chunker.RecursiveOptions) []PageChunk {
	var out []PageChunk
	idx := 0
	for _, page := range doc.Pages {
		section := nearestHeading(doc.Headings, page.Number)
		for _, c := range chunker.RecursiveChunk(page.Text, opts) {
			out = append(out, PageChunk{
				Index:   idx,
				ID:      chunker.ChunkID(docID, idx),
				Text:    c.Text,
				Page:    page.Number,
				Section: annotateSection(section, c.Text),
			})
			idx++
		}
	}
	return out
}

// nearestHeading returns the text of the last heading at or before page,
// falling back to "" when the document has none yet.
func nearestHeading(headings []pdf.Heading, page int) string {
	sorted := make([]pdf.Heading, len(headings))
	copy(sorted, headings)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Page < sorted[j].Page })

	best := ""
	for _, h := range sorted {
		if h.Page > page {
			break
		}
		best = h.Text
	}
	return best
}

// annotateSection flags a chunk as a table/figure caption when its leading
// text matches a common caption prefix, overriding the heading-derived
// section so retrieval can surface tabular content distinctly.
func annotateSection(section, text string) string {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, prefix := range tableCaptionPrefixes {
		if strings.HasPrefix(lower, prefix) {
			end := strings.IndexAny(text, "\n.")
			if end <= 0 || end > 80 {
				end = len(text)
				if end > 80 {
					end = 80
				}
			}
			return strings.TrimSpace(text[:end])
		}
	}
	return section
}
