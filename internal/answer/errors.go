package answer

import (
	"errors"
	"fmt"
)

// ErrInvalidQuery reports a question that is empty or whitespace-only.
// HTTP handlers map it to a client error.
var ErrInvalidQuery = errors.New("answer: question must not be empty")

// GenerationError wraps a failure from the LLM backend while producing an
// answer. It distinguishes backend faults from client mistakes at the API
// boundary.
type GenerationError struct {
	// Backend names the chat backend that failed (e.g. "ollama").
	Backend string
	Err     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("answer: generation failed on %s: %v", e.Backend, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
