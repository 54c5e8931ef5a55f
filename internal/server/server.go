// Package server implements the HTTP API for document question answering:
// a JSON query endpoint, an SSE chat endpoint, health and readiness probes,
// and Prometheus metrics. The server is started by the `docchat serve` CLI
// command.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/docchat/docchat-go/internal/answer"
	"github.com/docchat/docchat-go/internal/logging"
	"github.com/docchat/docchat-go/internal/rag"
)

// New constructs a Server around the given answerer and config.
func New(a answerer, cfg *Config) (*Server, error) {
	if a == nil {
		return nil, fmt.Errorf("server: answerer must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must be long enough for streaming responses.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	s := &Server{
		answerer: a,
		cfg:      cfg,
		log:      cfg.Logger,
		pingers:  cfg.Pingers,
		metrics:  newServerMetrics(reg),
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, s.log)
	s.stopRL = stopRL
	if cfg.APIKey == "" {
		s.log.Warn("API authentication disabled: no API key configured")
	}
	protect := func(h http.Handler) http.Handler {
		return authMiddleware(cfg.APIKey, rl.middleware(h))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/query", protect(http.HandlerFunc(s.handleQuery)))
	mux.Handle("POST /api/chat", protect(http.HandlerFunc(s.handleChat)))
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	handler := requestLogger(s.log, s.metricsMiddleware(mux))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Handler exposes the fully wired HTTP handler. Used by tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("docchat server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleQuery handles POST /api/query: one question in, one JSON answer out.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	req, ok := s.decodeQuery(w, r)
	if !ok {
		s.metrics.queryRequestsTotal.WithLabelValues(outcomeBadRequest).Inc()
		return
	}

	ans, err := s.answerer.Ask(r.Context(), req.Message, rag.Filter{Source: req.Source})
	if err != nil {
		s.metrics.queryRequestsTotal.WithLabelValues(s.writeQueryError(w, r, err)).Inc()
		return
	}

	s.metrics.queryRequestsTotal.WithLabelValues(outcomeOK).Inc()
	s.metrics.queryDurationSeconds.WithLabelValues(outcomeOK).Observe(time.Since(start).Seconds())

	w.Header().Set("Content-Type", "application/json")
	resp := queryResponse{Answer: ans.Text, Sources: ans.Sources}
	if resp.Sources == nil {
		resp.Sources = []answer.Source{}
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.FromContext(r.Context()).Error("query encode error", slog.Any("error", err))
	}
}

// handleChat handles POST /api/chat. It streams the answer using Server-Sent
// Events so clients can render tokens as they arrive. Sources are delivered
// in a trailing "sources" event once the answer is complete.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeQuery(w, r)
	if !ok {
		s.metrics.queryRequestsTotal.WithLabelValues(outcomeBadRequest).Inc()
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	s.metrics.chatActiveStreams.Inc()
	defer s.metrics.chatActiveStreams.Dec()

	sw := &sseWriter{w: w, flusher: flusher}
	ans, err := s.answerer.AskStream(r.Context(), req.Message, rag.Filter{Source: req.Source}, sw)
	if err != nil {
		// Headers are already sent; deliver the failure in-band.
		s.metrics.queryRequestsTotal.WithLabelValues(outcomeError).Inc()
		logging.FromContext(r.Context()).Error("chat stream failed", slog.Any("error", err))
		fmt.Fprintf(w, "event: error\ndata: %s\n\n", publicErrorMessage(err))
		flusher.Flush()
		return
	}

	if payload, err := json.Marshal(ans.Sources); err == nil {
		fmt.Fprintf(w, "event: sources\ndata: %s\n\n", payload)
	}
	fmt.Fprintf(w, "event: done\ndata: [DONE]\n\n")
	flusher.Flush()
	s.metrics.queryRequestsTotal.WithLabelValues(outcomeOK).Inc()
}

// decodeQuery parses the shared request body for the query endpoints. On
// failure it writes the client error and returns ok=false.
func (s *Server) decodeQuery(w http.ResponseWriter, r *http.Request) (queryRequest, bool) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return req, false
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

// writeQueryError maps pipeline failures to HTTP responses and returns the
// metrics outcome label. Clients get a stable generic message; the concrete
// cause is logged server-side only.
func (s *Server) writeQueryError(w http.ResponseWriter, r *http.Request, err error) string {
	log := logging.FromContext(r.Context())

	if errors.Is(err, answer.ErrInvalidQuery) {
		http.Error(w, "message is required", http.StatusBadRequest)
		return outcomeBadRequest
	}

	var (
		embErr   *rag.EmbeddingError
		storeErr *rag.StoreError
		genErr   *answer.GenerationError
	)
	switch {
	case errors.As(err, &embErr):
		log.Error("embedding backend failure", slog.String("backend", embErr.Backend), slog.Any("error", err))
	case errors.As(err, &storeErr):
		log.Error("vector store failure", slog.String("store", storeErr.Store), slog.Any("error", err))
	case errors.As(err, &genErr):
		log.Error("generation backend failure", slog.String("backend", genErr.Backend), slog.Any("error", err))
	default:
		log.Error("query failed", slog.Any("error", err))
	}
	http.Error(w, publicErrorMessage(err), http.StatusInternalServerError)
	return outcomeError
}

// publicErrorMessage is the client-safe description of a server-side failure.
// It names the failing subsystem but never the underlying error detail.
func publicErrorMessage(err error) string {
	var (
		embErr   *rag.EmbeddingError
		storeErr *rag.StoreError
		genErr   *answer.GenerationError
	)
	switch {
	case errors.Is(err, answer.ErrInvalidQuery):
		return "message is required"
	case errors.As(err, &embErr):
		return "embedding backend unavailable"
	case errors.As(err, &storeErr):
		return "vector store unavailable"
	case errors.As(err, &genErr):
		return "generation backend unavailable"
	default:
		return "internal error"
	}
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"}) //nolint:errcheck // best-effort liveness body
}

// sseWriter wraps an http.ResponseWriter to emit Server-Sent Event data frames.
type sseWriter struct {
	// w is the underlying response writer.
	w http.ResponseWriter

	// flusher flushes buffered data to the client after each write.
	flusher http.Flusher
}

// Write formats p as one or more SSE data lines and flushes to the client.
// Each newline in p is prefixed with "data: " so multi-line chunks never
// break the SSE frame boundary.
func (s *sseWriter) Write(p []byte) (n int, err error) {
	chunk := strings.TrimRight(string(bytes.Clone(p)), "\n")
	lines := strings.Split(chunk, "\n")
	var buf strings.Builder
	for _, line := range lines {
		buf.WriteString("data: ")
		buf.WriteString(line)
		buf.WriteString("\n")
	}
	buf.WriteString("\n")
	if _, err = fmt.Fprint(s.w, buf.String()); err != nil {
		return 0, err
	}
	s.flusher.Flush()
	return len(p), nil
}
