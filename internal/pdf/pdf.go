// Package pdf implements the parse(10) stage of the ingestion pipeline:
// extracting per-page plain text from a PDF so the chunker can split it on
// section/paragraph boundaries.
package pdf

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"ragforge/internal/apperr"
)

// Page is one page of extracted text.
type Page struct {
	Number int
	Text   string
}

// Document is the result of parsing a PDF: its pages plus any headings
// detected by a simple heuristic (short, title-cased or numbered lines),
// used as section-boundary hints by the chunker.
type Document struct {
	PageCount int
	Pages     []Page
	Headings  []Heading
}

// Heading is a detected section/sub-section title with the page it starts on.
type Heading struct {
	Page int
	Text string
}

var headingPattern = regexp.MustCompile(`^(\d+(\.\d+)*\.?\s+)?[A-Z][A-Za-z0-9 ,'/&-]{2,80}$`)

// Parse reads a PDF from r (which must support io.ReaderAt, hence the
// explicit size) and extracts text for up to maxPages pages.
func Parse(r io.ReaderAt, size int64, maxPages int) (Document, error) {
	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return Document{}, apperr.Permanentf(err, "invalid or corrupt pdf")
	}

	total := reader.NumPage()
	limit := total
	if maxPages > 0 && maxPages < total {
		limit = maxPages
	}

	doc := Document{PageCount: total}
	for i := 1; i <= limit; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page is not fatal; skip and continue.
			continue
		}
		doc.Pages = append(doc.Pages, Page{Number: i, Text: text})
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || len(line) > 90 {
				continue
			}
			if headingPattern.MatchString(line) && !strings.HasSuffix(line, ".") {
				doc.Headings = append(doc.Headings, Heading{Page: i, Text: line})
			}
		}
	}

	if len(doc.Pages) == 0 {
		return doc, apperr.Validationf("pdf contains no extractable text (pages: %d)", total)
	}
	return doc, nil
}

// FullText concatenates every page's text with form-feed separators, so
// downstream chunking can still recover page boundaries by splitting on \f.
func (d Document) FullText() string {
	var b strings.Builder
	for i, p := range d.Pages {
		if i > 0 {
			b.WriteString("\f")
		}
		fmt.Fprint(&b, p.Text)
	}
	return b.String()
}
