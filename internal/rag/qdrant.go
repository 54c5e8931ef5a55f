package rag

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements VectorStore backed by a Qdrant instance.
// Replace-on-reingest is a delete-by-source followed by a buffered upsert;
// Qdrant offers no cross-call transaction, so concurrent ingestion of the
// same source must be serialized by the caller (the ingest command is).
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig
}

// NewQdrantStore creates a new QdrantStore, ensuring the target collection
// exists (creating it if necessary), and returns a ready-to-use VectorStore.
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, &StoreError{Store: "qdrant", Err: fmt.Errorf("create client: %w", err)}
	}

	store := &QdrantStore{client: client, cfg: cfg}
	if err := store.ensureCollection(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// ensureCollection creates the Qdrant collection if it does not already exist.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return &StoreError{Store: "qdrant", Err: fmt.Errorf("check collection existence: %w", err)}
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return &StoreError{Store: "qdrant", Err: fmt.Errorf("create collection %q: %w", s.cfg.Collection, err)}
	}

	return nil
}

// Upsert replaces every point stored under source with the given chunk set.
// All points are buffered and sent in one upsert call after the delete, so a
// mid-ingest failure leaves either the old set gone or the new set complete —
// never an interleaving of both.
func (s *QdrantStore) Upsert(ctx context.Context, source string, chunks []Chunk) error {
	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			return &StoreError{Store: "qdrant", Err: fmt.Errorf("chunk %s has no embedding", c.ID)}
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(c.ID),
			Vectors: qdrant.NewVectors(c.Embedding...),
			Payload: qdrant.NewValueMap(map[string]any{
				"content":         c.Content,
				"source":          c.Source,
				"page":            c.Page,
				"chunk_index":     c.Index,
				"embedding_model": c.EmbeddingModel,
			}),
		})
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("source", source)},
		}),
	})
	if err != nil {
		return &StoreError{Store: "qdrant", Err: fmt.Errorf("delete source %q: %w", source, err)}
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Points:         points,
	})
	if err != nil {
		return &StoreError{Store: "qdrant", Err: fmt.Errorf("upsert: %w", err)}
	}

	return nil
}

// Search performs a cosine similarity search restricted to f and returns the
// top-k results. Qdrant returns points in score order; the chunk index
// tie-break matches the stable ordering contract on equal scores.
func (s *QdrantStore) Search(ctx context.Context, queryEmbedding []float32, k int, f Filter) ([]Match, error) {
	limit := uint64(k) //nolint:gosec // k is a small positive result count

	var conditions []*qdrant.Condition
	if f.Source != "" {
		conditions = append(conditions, qdrant.NewMatch("source", f.Source))
	}
	if f.EmbeddingModel != "" {
		conditions = append(conditions, qdrant.NewMatch("embedding_model", f.EmbeddingModel))
	}
	var filter *qdrant.Filter
	if len(conditions) > 0 {
		filter = &qdrant.Filter{Must: conditions}
	}

	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(queryEmbedding...),
		Filter:         filter,
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, &StoreError{Store: "qdrant", Err: fmt.Errorf("search: %w", err)}
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		c := Chunk{ID: r.Id.GetUuid()}
		if p := r.Payload; p != nil {
			if v, ok := p["content"]; ok {
				c.Content = v.GetStringValue()
			}
			if v, ok := p["source"]; ok {
				c.Source = v.GetStringValue()
			}
			if v, ok := p["page"]; ok {
				c.Page = int(v.GetIntegerValue())
			}
			if v, ok := p["chunk_index"]; ok {
				c.Index = int(v.GetIntegerValue())
			}
			if v, ok := p["embedding_model"]; ok {
				c.EmbeddingModel = v.GetStringValue()
			}
		}
		matches = append(matches, Match{Chunk: c, Similarity: r.Score})
	}

	return matches, nil
}

// Ping calls the Qdrant HealthCheck RPC. Used by the readiness probe.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return &StoreError{Store: "qdrant", Err: fmt.Errorf("health check: %w", err)}
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}
