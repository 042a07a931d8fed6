package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ragforge/internal/pdf"
	"ragforge/internal/rag/chunker"
)

func TestChunkDocument_TagsPageAndNearestHeading(t *testing.T) {
	t.Parallel()
	doc := pdf.Document{
		PageCount: 2,
		Pages: []pdf.Page{
			{Number: 1, Text: "Introductory text about the system."},
			{Number: 2, Text: "Table 1. Latency by region.\nMore detail follows here."},
		},
		Headings: []pdf.Heading{
			{Page: 1, Text: "Overview"},
			{Page: 2, Text: "Benchmarks"},
		},
	}

	chunks := ChunkDocument(doc, "doc1", chunker.RecursiveOptions{})
	require.NotEmpty(t, chunks)

	require.Equal(t, 1, chunks[0].Page)
	require.Equal(t, "Overview", chunks[0].Section)

	var sawTableCaption bool
	for _, c := range chunks {
		if c.Page == 2 && c.Section != "Benchmarks" {
			sawTableCaption = true
			require.Contains(t, c.Section, "Table 1")
		}
	}
	require.True(t, sawTableCaption)
}

func TestChunkDocument_IDsAreDeterministic(t *testing.T) {
	t.Parallel()
	doc := pdf.Document{PageCount: 1, Pages: []pdf.Page{{Number: 1, Text: "some text here"}}}
	a := ChunkDocument(doc, "doc1", chunker.RecursiveOptions{})
	b := ChunkDocument(doc, "doc1", chunker.RecursiveOptions{})
	require.Equal(t, a[0].ID, b[0].ID)
}
