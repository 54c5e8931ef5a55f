package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/docchat/docchat-go/internal/rag"
)

// newOllamaTestServer returns an httptest server that responds to /api/embed
// with the given vectors, repeated per input text.
func newOllamaTestServer(t *testing.T, vector []float32, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		embeddings := make([][]float32, len(req.Input))
		for i := range req.Input {
			embeddings[i] = vector
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: embeddings})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func Test_OllamaEmbedder_BatchParallelToInput(t *testing.T) {
	t.Parallel()

	srv := newOllamaTestServer(t, []float32{0.1, 0.2, 0.3}, http.StatusOK)
	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "nomic-embed-text"})

	got, err := e.Embed(context.Background(), []string{"one", "two"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 embeddings, got %d", len(got))
	}
	if len(got[0]) != 3 {
		t.Errorf("want dimension 3, got %d", len(got[0]))
	}
}

func Test_OllamaEmbedder_Deterministic(t *testing.T) {
	t.Parallel()

	srv := newOllamaTestServer(t, []float32{0.5, -0.25}, http.StatusOK)
	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "nomic-embed-text"})
	ctx := context.Background()

	first, err := e.Embed(ctx, []string{"same text"})
	if err != nil {
		t.Fatalf("first embed: %v", err)
	}
	second, err := e.Embed(ctx, []string{"same text"})
	if err != nil {
		t.Fatalf("second embed: %v", err)
	}
	for i := range first[0] {
		if first[0][i] != second[0][i] {
			t.Fatalf("embedding not deterministic at index %d: %v vs %v", i, first[0][i], second[0][i])
		}
	}
}

func Test_OllamaEmbedder_WrongDimensionRejected(t *testing.T) {
	t.Parallel()

	srv := newOllamaTestServer(t, []float32{0.1, 0.2}, http.StatusOK)
	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "nomic-embed-text", Dimensions: 768})

	_, err := e.Embed(context.Background(), []string{"text"})
	var embErr *rag.EmbeddingError
	if !errors.As(err, &embErr) {
		t.Fatalf("want *rag.EmbeddingError for wrong dimension, got %v", err)
	}
}

func Test_OllamaEmbedder_Non2xxIsBackendError(t *testing.T) {
	t.Parallel()

	srv := newOllamaTestServer(t, []float32{0.1}, http.StatusInternalServerError)
	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "nomic-embed-text"})

	_, err := e.Embed(context.Background(), []string{"text"})
	var embErr *rag.EmbeddingError
	if !errors.As(err, &embErr) {
		t.Fatalf("want *rag.EmbeddingError on HTTP 500, got %v", err)
	}
}

func Test_OllamaEmbedder_UnreachableHostIsBackendError(t *testing.T) {
	t.Parallel()

	// Reserved TEST-NET address — connection fails immediately.
	e := NewOllamaEmbedder(&OllamaConfig{Host: "http://192.0.2.1:1", Model: "nomic-embed-text"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Embed(ctx, []string{"text"})
	var embErr *rag.EmbeddingError
	if !errors.As(err, &embErr) {
		t.Fatalf("want *rag.EmbeddingError for unreachable backend, got %v", err)
	}
}

func Test_OpenAIEmbedder_SortsByIndex(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Return data deliberately out of order.
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 1, "embedding": []float32{2, 2}},
				{"index": 0, "embedding": []float32{1, 1}},
			},
		})
	}))
	t.Cleanup(srv.Close)

	e := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL, APIKey: "k", Model: "text-embedding-3-small"})
	got, err := e.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if got[0][0] != 1 || got[1][0] != 2 {
		t.Errorf("embeddings not reordered by index: %v", got)
	}
}

func Test_ModelID_ReportsConfiguredModel(t *testing.T) {
	t.Parallel()

	o := NewOllamaEmbedder(&OllamaConfig{Host: "http://localhost:11434", Model: "qwen3-embedding:0.6b"})
	if o.ModelID() != "qwen3-embedding:0.6b" {
		t.Errorf("ollama ModelID: got %q", o.ModelID())
	}
	oa := NewOpenAIEmbedder(&OpenAIConfig{Model: "text-embedding-3-small"})
	if oa.ModelID() != "text-embedding-3-small" {
		t.Errorf("openai ModelID: got %q", oa.ModelID())
	}
}

func Test_LooksLikeChatModel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		model string
		want  bool
	}{
		{"llama3:8b", true},
		{"gpt-4o", true},
		{"mistral-7b", true},
		{"nomic-embed-text", false},
		{"text-embedding-3-small", false},
		{"qwen3-embedding:0.6b", false},
	}
	for _, tt := range tests {
		if got := looksLikeChatModel(tt.model); got != tt.want {
			t.Errorf("looksLikeChatModel(%q) = %v, want %v", tt.model, got, tt.want)
		}
	}
}
