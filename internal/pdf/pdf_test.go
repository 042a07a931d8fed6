package pdf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDocument_FullText_JoinsPagesWithFormFeed(t *testing.T) {
	doc := Document{
		PageCount: 2,
		Pages: []Page{
			{Number: 1, Text: "first page"},
			{Number: 2, Text: "second page"},
		},
	}
	require.Equal(t, "first page\fsecond page", doc.FullText())
}

func TestHeadingPattern_MatchesTitleCasedShortLines(t *testing.T) {
	require.True(t, headingPattern.MatchString("1. Introduction"))
	require.True(t, headingPattern.MatchString("Data Model"))
	require.False(t, headingPattern.MatchString("this is a normal sentence that ends with a period."))
	require.False(t, headingPattern.MatchString("lowercase heading"))
}
