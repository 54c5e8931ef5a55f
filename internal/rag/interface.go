// Package rag defines the interfaces and data model for the retrieval side
// of docchat: document chunks, vector storage, embedding, and retrieval.
// Concrete implementations (Qdrant, SQLite, HTTP embedders) satisfy these
// interfaces so the answer layer never depends on a specific backend.
package rag

import (
	"context"
)

// Chunk is a contiguous span of document text stored with provenance
// metadata and (at ingest time) its embedding vector.
type Chunk struct {
	// ID is the unique identifier for this chunk, deterministic per
	// (source, index) so re-ingesting a document produces stable IDs.
	ID string

	// Content is the raw text of the chunk.
	Content string

	// Source is the stable document identifier (e.g. "nutrition.pdf").
	Source string

	// Page is the 1-based page number the chunk text was extracted from.
	Page int

	// Index is the insertion order of this chunk within its document.
	// It is the tie-break for equal similarity scores at search time.
	Index int

	// EmbeddingModel identifies the model that produced Embedding. Chunks
	// and query vectors from different models must never be compared.
	EmbeddingModel string

	// Embedding is the dense vector for Content. Populated at ingest time;
	// stores are not required to return it from Search.
	Embedding []float32
}

// Match is a Chunk paired with the similarity score assigned by a single
// search call. Scores are comparable only within that call.
type Match struct {
	// Chunk is the matched chunk, with Embedding omitted.
	Chunk Chunk

	// Similarity is the cosine similarity to the query embedding.
	// Higher is more relevant.
	Similarity float32
}

// Filter restricts a search to chunks matching all non-empty fields.
// A typed struct rather than a string map so a misspelled key is a compile
// error, not a silently empty result set.
type Filter struct {
	// Source restricts matches to a single document identifier.
	Source string

	// EmbeddingModel restricts matches to chunks embedded with this model.
	// The retriever always sets it so embedding spaces are never mixed.
	EmbeddingModel string
}

// VectorStore persists chunks with their embeddings and answers
// nearest-neighbour similarity queries.
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Upsert persists chunks for a single document, replacing every chunk
	// previously stored under the same source. The replace is all-or-nothing:
	// readers see either the old chunk set or the new one, never a mix.
	Upsert(ctx context.Context, source string, chunks []Chunk) error

	// Search returns at most k matches for queryEmbedding, restricted to
	// chunks satisfying f, in non-increasing similarity order with ties
	// broken by chunk insertion index. An empty store or a filter matching
	// nothing yields an empty slice, never an error. Connectivity or storage
	// faults are reported as a *StoreError.
	Search(ctx context.Context, queryEmbedding []float32, k int, f Filter) ([]Match, error)

	// Close releases any resources held by the store.
	Close() error
}

// Embedder converts text into dense vector embeddings.
// Implementations must be deterministic for a fixed model version and safe
// to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice. Backend failures
	// and malformed responses are reported as a *EmbeddingError.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// ModelID returns the identifier of the embedding model, used to tag
	// chunks at ingest time and to filter searches at query time.
	ModelID() string
}

// Retriever is the high-level interface the answer layer uses to fetch
// relevant chunks for a question. It combines embedding and vector search.
// Implementations must be safe to call from multiple goroutines.
type Retriever interface {
	// Retrieve embeds query and returns the top-k matches satisfying f.
	Retrieve(ctx context.Context, query string, k int, f Filter) ([]Match, error)
}
