// Package answer turns retrieved chunks into a grounded, cited answer. It
// assembles a numbered context block from the best-matching chunks, prompts
// the chat backend to answer strictly from that block, and reports which
// chunks backed the answer so callers can render citations.
package answer

import (
	"fmt"
	"strings"

	"github.com/docchat/docchat-go/internal/budget"
	"github.com/docchat/docchat-go/internal/rag"
)

// Source describes one context entry the answer may cite. Ref is the 1-based
// citation number that appears in the answer text as [Ref].
type Source struct {
	Ref        int     `json:"ref"`
	Document   string  `json:"document"`
	Page       int     `json:"page"`
	Index      int     `json:"index"`
	Content    string  `json:"content"`
	Similarity float32 `json:"similarity"`
}

// Assembler builds the context block handed to the generator.
type Assembler struct {
	// maxContextTokens bounds the assembled block; zero means the default
	// budget.
	maxContextTokens int
}

// NewAssembler returns an Assembler with the given context token budget.
// Pass zero for the default.
func NewAssembler(maxContextTokens int) *Assembler {
	return &Assembler{maxContextTokens: maxContextTokens}
}

// Assemble renders matches into a numbered context block and the parallel
// source list. Matches beyond the token budget are dropped from the tail,
// so the citation numbers in the block always line up with the returned
// sources. Empty input yields an empty block and no sources.
func (a *Assembler) Assemble(matches []rag.Match) (string, []Source) {
	matches = budget.TrimMatches(matches, a.maxContextTokens)
	if len(matches) == 0 {
		return "", nil
	}

	var b strings.Builder
	sources := make([]Source, 0, len(matches))
	for i, m := range matches {
		ref := i + 1
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] (p. %d) %s", ref, m.Chunk.Page, m.Chunk.Content)
		sources = append(sources, Source{
			Ref:        ref,
			Document:   m.Chunk.Source,
			Page:       m.Chunk.Page,
			Index:      m.Chunk.Index,
			Content:    m.Chunk.Content,
			Similarity: m.Similarity,
		})
	}
	return b.String(), sources
}
