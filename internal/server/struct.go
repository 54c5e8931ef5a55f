package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/docchat/docchat-go/internal/answer"
	"github.com/docchat/docchat-go/internal/rag"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. Must be
	// long enough for streaming answers.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// Registry receives the server's Prometheus metrics. If nil, a dedicated
	// registry is created and served at GET /metrics.
	Registry *prometheus.Registry
}

// answerer is the interface the query handlers call. *answer.Orchestrator
// satisfies it; tests inject a fake.
type answerer interface {
	Ask(ctx context.Context, question string, f rag.Filter) (answer.Answer, error)
	AskStream(ctx context.Context, question string, f rag.Filter, w io.Writer) (answer.Answer, error)
}

// Server is the HTTP server that exposes document question answering.
type Server struct {
	// answerer runs the retrieve-assemble-generate path for each question.
	answerer answerer
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds this instance's Prometheus collectors.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// queryRequest is the JSON body for POST /api/query and POST /api/chat.
type queryRequest struct {
	// Message is the user's question.
	Message string `json:"message"`
	// Source optionally restricts retrieval to one ingested document.
	Source string `json:"source,omitempty"`
}

// queryResponse is the JSON body returned by POST /api/query.
type queryResponse struct {
	// Answer is the generated answer text, or the decline phrase.
	Answer string `json:"answer"`
	// Sources lists the context entries the answer's [n] markers refer to.
	Sources []answer.Source `json:"sources"`
}
