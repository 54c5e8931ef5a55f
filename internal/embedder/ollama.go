package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/docchat/docchat-go/internal/rag"
)

// OllamaEmbedder talks to a local Ollama server's /api/embed endpoint. No
// API key is involved. Safe for concurrent use.
type OllamaEmbedder struct {
	host       string
	model      string
	dimensions int // 0 accepts whatever length the model produces
	client     *http.Client
}

// OllamaConfig configures NewOllamaEmbedder.
type OllamaConfig struct {
	// Host is the server base URL, e.g. "http://localhost:11434".
	Host string
	// Model is the embedding model name, e.g. "nomic-embed-text".
	Model string
	// Dimensions, when non-zero, rejects response vectors of any other
	// length as malformed.
	Dimensions int
}

func NewOllamaEmbedder(cfg *OllamaConfig) *OllamaEmbedder {
	return &OllamaEmbedder{
		host:       cfg.Host,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		client:     &http.Client{Timeout: 60 * time.Second},
	}
}

// ModelID returns the embedding model name used to tag chunks and filter
// searches.
func (e *OllamaEmbedder) ModelID() string { return e.model }

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// Embed returns one vector per input text, in input order.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, embedErr("ollama", "marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.host+"/api/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, embedErr("ollama", "create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, embedErr("ollama", "request failed: %w", err)
	}
	defer resp.Body.Close()

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, embedErr("ollama", "decode response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		if result.Error != "" {
			msg = result.Error
		}
		return nil, embedErr("ollama", "%s", msg)
	}

	if len(result.Embeddings) != len(texts) {
		return nil, embedErr("ollama", "expected %d embeddings, got %d", len(texts), len(result.Embeddings))
	}
	if err := checkDimensions(result.Embeddings, e.dimensions); err != nil {
		return nil, &rag.EmbeddingError{Backend: "ollama", Err: err}
	}
	return result.Embeddings, nil
}

// checkDimensions verifies every vector is non-empty and, when want is
// non-zero, exactly want values long. A wrong-dimension vector corrupts
// every similarity score computed against it, so it is rejected at the
// boundary.
func checkDimensions(embeddings [][]float32, want int) error {
	for i, vec := range embeddings {
		if len(vec) == 0 {
			return fmt.Errorf("embedding %d is empty", i)
		}
		if want > 0 && len(vec) != want {
			return fmt.Errorf("embedding %d has dimension %d, expected %d", i, len(vec), want)
		}
	}
	return nil
}
