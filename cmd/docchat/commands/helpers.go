package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/cloudwego/eino/components/model"

	"github.com/docchat/docchat-go/internal/answer"
	"github.com/docchat/docchat-go/internal/embedder"
	"github.com/docchat/docchat-go/internal/provider"
	"github.com/docchat/docchat-go/internal/rag"
	"github.com/docchat/docchat-go/internal/server"
)

// buildStore opens the configured vector store. VECTOR_STORE selects the
// backend: "sqlite" (default, local file) or "qdrant". The returned name
// labels the store in logs and readiness checks.
func buildStore(ctx context.Context, log *slog.Logger) (rag.VectorStore, string, error) {
	backend := getEnvOrDefault("VECTOR_STORE", "sqlite")

	switch backend {
	case "sqlite":
		path := os.Getenv("DOCCHAT_DB")
		if path == "" {
			var err error
			path, err = rag.DefaultDBPath()
			if err != nil {
				return nil, "", fmt.Errorf("resolve sqlite path: %w", err)
			}
		}
		store, err := rag.OpenSQLiteStore(path)
		if err != nil {
			return nil, "", fmt.Errorf("open sqlite store: %w", err)
		}
		log.Info("sqlite store ready", slog.String("path", path))
		return store, "sqlite", nil

	case "qdrant":
		embBackend := getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "ollama"))
		cfg := &rag.QdrantConfig{
			Host:       getEnvOrDefault("QDRANT_HOST", "localhost"),
			Port:       getEnvInt("QDRANT_PORT", 6334),
			Collection: getEnvOrDefault("QDRANT_COLLECTION", "docchat-chunks"),
			VectorSize: uint64(embedder.DefaultDimensions(embBackend)), //nolint:gosec // dimensions are bounded
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     os.Getenv("QDRANT_TLS") == "true",
		}
		store, err := rag.NewQdrantStore(ctx, cfg)
		if err != nil {
			return nil, "", fmt.Errorf("connect to qdrant at %s:%d: %w", cfg.Host, cfg.Port, err)
		}
		log.Info("qdrant store ready",
			slog.String("host", cfg.Host),
			slog.Int("port", cfg.Port),
			slog.String("collection", cfg.Collection))
		return store, "qdrant", nil

	default:
		return nil, "", fmt.Errorf("unknown VECTOR_STORE %q — valid values: sqlite, qdrant", backend)
	}
}

// buildEmbedder validates the embedding configuration and constructs the
// embedder from the environment.
func buildEmbedder(log *slog.Logger) (rag.Embedder, error) {
	if err := embedder.Validate(log); err != nil {
		return nil, err
	}
	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("initialise embedder: %w", err)
	}
	log.Info("embedder initialised", slog.String("model", emb.ModelID()))
	return emb, nil
}

// buildOrchestrator wires retriever, assembler, and generator into the full
// answer path shared by `ask` and `serve`.
func buildOrchestrator(chatModel model.ToolCallingChatModel, backend string, emb rag.Embedder, store rag.VectorStore, log *slog.Logger) (*answer.Orchestrator, error) {
	retriever, err := rag.NewRetriever(emb, store, 0)
	if err != nil {
		return nil, fmt.Errorf("initialise retriever: %w", err)
	}
	gen, err := answer.NewGenerator(chatModel, backend)
	if err != nil {
		return nil, fmt.Errorf("initialise generator: %w", err)
	}
	orch, err := answer.NewOrchestrator(answer.OrchestratorConfig{
		Retriever:        retriever,
		Generator:        gen,
		MaxContextTokens: getEnvInt("MAX_CONTEXT_TOKENS", 0),
		Logger:           log,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise orchestrator: %w", err)
	}
	return orch, nil
}

// buildPingers assembles the dependency probes for GET /api/ready: the
// embedding backend (when it is a local HTTP service) and the vector store.
func buildPingers(storeName string, store rag.VectorStore) []server.Pinger {
	var pingers []server.Pinger

	embBackend := getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "ollama"))
	if embBackend == "ollama" {
		host := getEnvOrDefault("EMBEDDING_ENDPOINT", getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434"))
		pingers = append(pingers, server.NewHTTPPinger("ollama", host))
	}

	type pingable interface {
		Ping(ctx context.Context) error
	}
	if p, ok := store.(pingable); ok {
		pingers = append(pingers, server.NewStorePinger(storeName, p.Ping))
	}

	return pingers
}

// buildProvider resolves the chat model configuration from the environment
// and constructs the backend client.
func buildProvider(ctx context.Context) (model.ToolCallingChatModel, *provider.Config, error) {
	cfg := provider.ConfigFromEnv()
	chatModel, err := provider.New(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("initialise model provider: %w", err)
	}
	return chatModel, cfg, nil
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
