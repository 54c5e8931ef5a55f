package ingestion

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Page holds the cleaned text of a single document page.
type Page struct {
	// Number is the 1-based page number.
	Number int
	// Text is the cleaned extracted text. May be empty for image-only pages.
	Text string
}

var (
	// hyphenBreak matches a hyphen followed by a line break, i.e. a word
	// split across lines ("nutri-\ntion").
	hyphenBreak = regexp.MustCompile(`-\s*\n\s*`)
	// trailingSpaceNL matches whitespace immediately before a newline.
	trailingSpaceNL = regexp.MustCompile(`[ \t]+\n`)
	// spaceRun matches runs of spaces and tabs.
	spaceRun = regexp.MustCompile(`[ \t]+`)
	// blankRun matches three or more consecutive newlines.
	blankRun = regexp.MustCompile(`\n{3,}`)
)

// CleanText normalizes extracted page text: re-joins words hyphenated across
// line breaks and collapses whitespace. Paragraph breaks (blank lines) are
// preserved because the chunker prefers them as split boundaries.
func CleanText(t string) string {
	t = strings.ReplaceAll(t, "\r", "\n")
	t = hyphenBreak.ReplaceAllString(t, "")
	t = trailingSpaceNL.ReplaceAllString(t, "\n")
	t = spaceRun.ReplaceAllString(t, " ")
	t = blankRun.ReplaceAllString(t, "\n\n")
	return strings.TrimSpace(t)
}

// ExtractPDF reads the PDF at path and returns one Page per document page,
// 1-based, with cleaned text. Pages that yield no text are returned with an
// empty Text so page numbering stays aligned with the source document.
func ExtractPDF(path string) ([]Page, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingestion: open pdf %s: %w", path, err)
	}
	defer f.Close()

	total := reader.NumPage()
	pages := make([]Page, 0, total)
	for i := 1; i <= total; i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			pages = append(pages, Page{Number: i})
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			// A single unreadable page is not fatal for the document.
			pages = append(pages, Page{Number: i})
			continue
		}
		pages = append(pages, Page{Number: i, Text: CleanText(text)})
	}

	return pages, nil
}
