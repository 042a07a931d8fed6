// Package ingest holds the chunking-option vocabulary shared with
// internal/rag/chunker. The broader teacher ingestion model this package
// once carried (full-text-search upserts, idempotency resolution,
// preprocessing) implemented a different document model than SPEC_FULL.md
// §4.1's six-stage pipeline and had no caller in this tree; it has been
// removed. Only the option type the chunker still takes as a parameter
// survives here.
package ingest

// ChunkingOptions describes the chunking strategy passed to
// internal/rag/chunker.SimpleChunker.
type ChunkingOptions struct {
	// Strategy name (e.g., "tokens", "sentences", "markdown").
	Strategy string
	// MaxTokens per chunk (semantic; implementation may map to characters when tokenization is unavailable).
	MaxTokens int
	// Overlap tokens between sequential chunks.
	Overlap int
}
