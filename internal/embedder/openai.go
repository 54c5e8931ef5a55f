// Package embedder implements rag.Embedder over the HTTP embedding APIs of
// Ollama, OpenAI, and Azure OpenAI. The endpoints are two small JSON POSTs,
// so the clients speak plain net/http rather than pulling a vendor SDK per
// backend.
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

// embedErr wraps a failure as the typed backend error the rest of the
// system dispatches on.
func embedErr(backend string, format string, args ...any) *rag.EmbeddingError {
	return &rag.EmbeddingError{Backend: backend, Err: fmt.Errorf(format, args...)}
}

// OpenAIEmbedder talks to an OpenAI-compatible /embeddings endpoint, in
// either OpenAI form (Bearer auth) or Azure form (api-key header plus
// api-version query param and deployment-scoped path). Safe for concurrent
// use.
type OpenAIEmbedder struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int // 0 means the model default
	azure      bool
	apiVersion string
	client     *http.Client
}

// OpenAIConfig configures NewOpenAIEmbedder.
type OpenAIConfig struct {
	// BaseURL is "https://api.openai.com/v1" for OpenAI or
	// "https://<resource>.openai.azure.com/openai" for Azure.
	BaseURL string
	APIKey  string
	// Model is the embedding model name, e.g. "text-embedding-3-small".
	Model string
	// Dimensions requests a specific vector length; 0 keeps the model default.
	Dimensions int
	// Azure switches to api-key auth and the deployment-scoped URL shape.
	Azure bool
	// APIVersion is the Azure api-version query value; unused otherwise.
	APIVersion string
}

func NewOpenAIEmbedder(cfg *OpenAIConfig) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		azure:      cfg.Azure,
		apiVersion: cfg.APIVersion,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

// ModelID returns the embedding model name used to tag chunks and filter
// searches.
func (e *OpenAIEmbedder) ModelID() string { return e.model }

type openaiEmbedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openaiEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Embed returns one vector per input text, in input order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	body := openaiEmbedRequest{Input: texts, Model: e.model}
	if e.dimensions > 0 {
		body.Dimensions = e.dimensions
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, embedErr("openai", "marshal request: %w", err)
	}

	url := e.baseURL + "/embeddings"
	if e.azure {
		url = e.baseURL + "/deployments/" + e.model + "/embeddings?api-version=" + e.apiVersion
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, embedErr("openai", "create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.azure {
		req.Header.Set("api-key", e.apiKey)
	} else {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, embedErr("openai", "request failed: %w", err)
	}
	defer resp.Body.Close()

	var result openaiEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, embedErr("openai", "decode response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		if result.Error != nil {
			msg = result.Error.Message
		}
		return nil, embedErr("openai", "%s", msg)
	}

	if len(result.Data) != len(texts) {
		return nil, embedErr("openai", "expected %d embeddings, got %d", len(texts), len(result.Data))
	}

	// The API may return data out of order; place by index.
	embeddings := make([][]float32, len(texts))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, embedErr("openai", "index %d out of range [0, %d)", d.Index, len(texts))
		}
		embeddings[d.Index] = d.Embedding
	}

	if err := checkDimensions(embeddings, e.dimensions); err != nil {
		return nil, &rag.EmbeddingError{Backend: "openai", Err: err}
	}
	return embeddings, nil
}
