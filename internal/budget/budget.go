// Package budget provides token budget estimation for the retrieval context
// block. Because the system supports multiple LLM backends with different
// tokenizers, it uses a conservative character-based heuristic:
// 1 token ≈ 4 characters (English prose). This deliberately under-estimates
// token counts to leave headroom for model-specific overhead.
package budget

import (
	"github.com/docchat/docchat-go/internal/rag"
)

const (
	// charsPerToken is the conservative character-to-token ratio used for
	// estimation. 4 chars/token is standard for English prose; using 3
	// would be more aggressive but risks overflowing context windows.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default budget for the retrieved
	// context block, in tokens. Conservative enough to fit within
	// 8k-context models while leaving room for the question, the system
	// instruction, and the answer.
	DefaultMaxContextTokens = 4000

	// perEntryOverhead covers the citation marker, page label, and
	// separator wrapped around each context entry.
	perEntryOverhead = 8
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// TrimMatches drops matches from the tail until the estimated token cost of
// the context block fits within maxTokens. Matches arrive ranked best-first,
// so trimming the tail discards the least similar chunks. The first match is
// always kept even when it alone exceeds the budget: an oversized chunk is
// better answered from than an empty context.
func TrimMatches(matches []rag.Match, maxTokens int) []rag.Match {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxContextTokens
	}
	total := 0
	for i, m := range matches {
		total += perEntryOverhead + Estimate(m.Chunk.Content)
		if total > maxTokens && i > 0 {
			return matches[:i]
		}
	}
	return matches
}
