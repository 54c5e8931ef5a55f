package ingestion

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/docchat/docchat-go/internal/rag"
)

// boundarySeparators are the split boundaries tried in preference order when
// a chunk window must be cut: paragraph break, line break, word break. A hard
// character cut is the fallback when none occurs in the window.
var boundarySeparators = []string{"\n\n", "\n", " "}

// Chunker splits cleaned text into overlapping spans of roughly Size
// characters, preferring natural boundaries over hard cuts.
type Chunker struct {
	// size is the target chunk length in characters.
	size int
	// overlap is the number of characters shared between consecutive chunks.
	overlap int
}

// NewChunker constructs a Chunker. size defaults to 1000 and overlap to 100;
// an overlap at or above size is clamped to size/10 so the scan always advances.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 10
	}
	return &Chunker{size: size, overlap: overlap}
}

// Split cuts text into overlapping spans. A text shorter than the chunk size
// yields exactly one span; empty or all-whitespace text yields none. Indexing
// is by rune so multi-byte characters are never cut mid-sequence.
func (c *Chunker) Split(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= c.size {
		return []string{string(runes)}
	}

	var spans []string
	start := 0
	for start < len(runes) {
		end := start + c.size
		if end >= len(runes) {
			spans = append(spans, strings.TrimSpace(string(runes[start:])))
			break
		}
		end = c.snapToBoundary(runes, start, end)
		span := strings.TrimSpace(string(runes[start:end]))
		if span != "" {
			spans = append(spans, span)
		}
		next := end - c.overlap
		if next <= start {
			// Overlap would stall the scan; fall back to a hard advance.
			next = end
		}
		start = next
	}
	return spans
}

// snapToBoundary moves end backwards to the nearest preferred boundary inside
// the window, trying paragraph, line, then word breaks. The cut must stay in
// the back half of the window so boundary snapping never produces tiny
// chunks; if no boundary qualifies, the hard cut at end stands.
func (c *Chunker) snapToBoundary(runes []rune, start, end int) int {
	window := string(runes[start:end])
	minCut := len([]rune(window)) / 2
	for _, sep := range boundarySeparators {
		idx := strings.LastIndex(window, sep)
		if idx < 0 {
			continue
		}
		cut := len([]rune(window[:idx]))
		if cut >= minCut {
			return start + cut + len([]rune(sep))
		}
	}
	return end
}

// ChunkPages runs the chunker over every page of a document and assembles
// rag.Chunks with provenance metadata. The chunk index increases across the
// whole document in page order, so it doubles as the insertion-order
// tie-break at search time. modelID tags each chunk with the embedding model
// that will be used for it.
func (c *Chunker) ChunkPages(source, modelID string, pages []Page) []rag.Chunk {
	var chunks []rag.Chunk
	index := 0
	for _, page := range pages {
		if page.Text == "" {
			continue
		}
		for _, span := range c.Split(page.Text) {
			chunks = append(chunks, rag.Chunk{
				ID:             chunkID(source, index),
				Content:        span,
				Source:         source,
				Page:           page.Number,
				Index:          index,
				EmbeddingModel: modelID,
			})
			index++
		}
	}
	return chunks
}

// chunkID generates a deterministic ID for a chunk based on its source
// document and document-wide chunk index.
func chunkID(source string, index int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s#%d", source, index)))
	return fmt.Sprintf("%x", h[:16])
}
