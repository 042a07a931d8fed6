package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"ragforge/internal/rag/ingest"
)

func TestRecursiveChunk_TargetsAround1000CharsWithOverlap(t *testing.T) {
	var paras []string
	for i := 0; i < 30; i++ {
		paras = append(paras, strings.Repeat("sentence number "+string(rune('a'+i%26))+". ", 8))
	}
	text := strings.Join(paras, "\n\n")

	chunks := RecursiveChunk(text, RecursiveOptions{})
	require.NotEmpty(t, chunks)
	for i, c := range chunks {
		if i == len(chunks)-1 {
			continue
		}
		require.LessOrEqual(t, len(c.Text), 1400, "chunk %d too large", i)
	}
}

func TestRecursiveChunk_OverlapCarriesTailIntoNextChunk(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta epsilon zeta eta theta. ", 100)
	chunks := RecursiveChunk(text, RecursiveOptions{TargetChars: 200, OverlapChars: 50})
	require.GreaterOrEqual(t, len(chunks), 2)
}

func TestChunkID_DeterministicPerDocAndIndex(t *testing.T) {
	id1 := ChunkID("doc:tenant-a:report", 3)
	id2 := ChunkID("doc:tenant-a:report", 3)
	id3 := ChunkID("doc:tenant-a:report", 4)
	require.Equal(t, id1, id2)
	require.NotEqual(t, id1, id3)
}

func TestSimpleChunker_DefaultsToRecursiveStrategy(t *testing.T) {
	ch := SimpleChunker{}
	chunks, err := ch.Chunk("Paragraph one.\n\nParagraph two.", ingest.ChunkingOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
}
