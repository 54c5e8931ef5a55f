package rag

import (
	"context"
	"fmt"
)

// DefaultRetriever implements the Retriever interface by combining an
// Embedder and a VectorStore. It embeds the query at retrieval time and
// delegates similarity search to the store, always pinning the filter to the
// embedder's model so a query vector is never scored against chunks from a
// different embedding space.
type DefaultRetriever struct {
	// embedder converts query text to a dense vector.
	embedder Embedder

	// store performs the vector similarity search.
	store VectorStore

	// defaultTopK is the number of results to return when the caller passes 0.
	defaultTopK int
}

// NewRetriever constructs a DefaultRetriever from the given Embedder and
// VectorStore. defaultTopK sets the fallback result count when Retrieve is
// called with k=0.
func NewRetriever(embedder Embedder, store VectorStore, defaultTopK int) (*DefaultRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	if defaultTopK <= 0 {
		defaultTopK = 8
	}
	return &DefaultRetriever{
		embedder:    embedder,
		store:       store,
		defaultTopK: defaultTopK,
	}, nil
}

// Retrieve embeds the query and returns the top-k matches satisfying f.
// Backend failures propagate as the embedder's or store's typed error — an
// unreachable backend is never reported as an empty result.
func (r *DefaultRetriever) Retrieve(ctx context.Context, query string, k int, f Filter) ([]Match, error) {
	if k <= 0 {
		k = r.defaultTopK
	}

	embeddings, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("rag: embedding query failed: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, &EmbeddingError{Backend: r.embedder.ModelID(), Err: fmt.Errorf("empty result for query")}
	}

	f.EmbeddingModel = r.embedder.ModelID()

	matches, err := r.store.Search(ctx, embeddings[0], k, f)
	if err != nil {
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}

	return matches, nil
}
