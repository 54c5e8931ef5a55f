package rag

import "fmt"

// EmbeddingError reports a failure of the embedding backend: the service was
// unreachable, returned a non-2xx status, or produced malformed output such
// as a vector of the wrong dimension. It is distinct from StoreError so the
// HTTP layer can log which backend failed.
type EmbeddingError struct {
	// Backend is the embedder label (e.g. "ollama", "openai").
	Backend string
	// Err is the underlying cause.
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("%s embedder: %v", e.Backend, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// StoreError reports a connectivity or storage fault in the vector store.
// It is never used for "no matches" — that outcome is an empty result slice.
type StoreError struct {
	// Store is the store label (e.g. "qdrant", "sqlite").
	Store string
	// Err is the underlying cause.
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s store: %v", e.Store, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
