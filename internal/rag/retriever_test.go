package rag

import (
	"context"
	"errors"
	"testing"
)

// fakeEmbedder returns a fixed vector for any input, or a configured error.
type fakeEmbedder struct {
	// vector is returned for every input text.
	vector []float32
	// err is returned instead when non-nil.
	err error
	// calls records the texts passed to Embed.
	calls [][]string
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, texts)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, nil
}

func (f *fakeEmbedder) ModelID() string { return "fake-embed-v1" }

// fakeStore records the last search call and returns canned matches.
type fakeStore struct {
	// matches is returned from every Search call.
	matches []Match
	// err is returned instead when non-nil.
	err error
	// lastK and lastFilter capture the most recent Search arguments.
	lastK      int
	lastFilter Filter
}

func (f *fakeStore) Upsert(context.Context, string, []Chunk) error { return nil }

func (f *fakeStore) Search(_ context.Context, _ []float32, k int, filter Filter) ([]Match, error) {
	f.lastK = k
	f.lastFilter = filter
	if f.err != nil {
		return nil, f.err
	}
	return f.matches, nil
}

func (f *fakeStore) Close() error { return nil }

func Test_Retriever_PinsFilterToEmbeddingModel(t *testing.T) {
	t.Parallel()

	store := &fakeStore{matches: []Match{}}
	r, err := NewRetriever(&fakeEmbedder{vector: []float32{1, 0}}, store, 8)
	if err != nil {
		t.Fatalf("new retriever: %v", err)
	}

	if _, err := r.Retrieve(context.Background(), "question", 3, Filter{Source: "doc.pdf"}); err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if store.lastFilter.Source != "doc.pdf" {
		t.Errorf("source filter lost: got %q", store.lastFilter.Source)
	}
	if store.lastFilter.EmbeddingModel != "fake-embed-v1" {
		t.Errorf("filter not pinned to embedding model: got %q", store.lastFilter.EmbeddingModel)
	}
	if store.lastK != 3 {
		t.Errorf("k: want 3, got %d", store.lastK)
	}
}

func Test_Retriever_ZeroKUsesDefault(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	r, err := NewRetriever(&fakeEmbedder{vector: []float32{1}}, store, 8)
	if err != nil {
		t.Fatalf("new retriever: %v", err)
	}

	if _, err := r.Retrieve(context.Background(), "q", 0, Filter{}); err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if store.lastK != 8 {
		t.Errorf("default k: want 8, got %d", store.lastK)
	}
}

func Test_Retriever_EmbedderErrorPropagates(t *testing.T) {
	t.Parallel()

	embErr := &EmbeddingError{Backend: "ollama", Err: errors.New("connection refused")}
	r, err := NewRetriever(&fakeEmbedder{err: embErr}, &fakeStore{}, 8)
	if err != nil {
		t.Fatalf("new retriever: %v", err)
	}

	_, err = r.Retrieve(context.Background(), "q", 5, Filter{})
	var got *EmbeddingError
	if !errors.As(err, &got) {
		t.Fatalf("want *EmbeddingError, got %v", err)
	}
}

func Test_Retriever_StoreErrorNotMaskedAsEmpty(t *testing.T) {
	t.Parallel()

	storeErr := &StoreError{Store: "qdrant", Err: errors.New("unavailable")}
	r, err := NewRetriever(&fakeEmbedder{vector: []float32{1}}, &fakeStore{err: storeErr}, 8)
	if err != nil {
		t.Fatalf("new retriever: %v", err)
	}

	matches, err := r.Retrieve(context.Background(), "q", 5, Filter{})
	var got *StoreError
	if !errors.As(err, &got) {
		t.Fatalf("want *StoreError, got %v (matches=%v)", err, matches)
	}
}

func Test_NewRetriever_RejectsNilDependencies(t *testing.T) {
	t.Parallel()

	if _, err := NewRetriever(nil, &fakeStore{}, 8); err == nil {
		t.Error("want error for nil embedder")
	}
	if _, err := NewRetriever(&fakeEmbedder{}, nil, 8); err == nil {
		t.Error("want error for nil store")
	}
}
