package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/docchat/docchat-go/internal/logging"
)

// probeTimeout bounds each dependency probe so /api/ready answers promptly
// even when a dependency is slow rather than down.
const probeTimeout = 5 * time.Second

// Pinger is implemented by dependencies that can report their own
// reachability. Ping returns nil when healthy; implementations must be safe
// for concurrent use.
type Pinger interface {
	Ping(ctx context.Context) error

	// Name is the short label shown in readiness responses, e.g. "ollama"
	// or "sqlite".
	Name() string
}

type readyCheck struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type readyResponse struct {
	Ready  bool         `json:"ready"`
	Checks []readyCheck `json:"checks"`
}

// handleReady serves GET /api/ready. Each registered Pinger is probed under
// probeTimeout; the response is 200 only when every probe passes, 503
// otherwise, with per-dependency detail in the body. /api/health stays a
// bare liveness check; this endpoint is the one that reflects dependency
// state.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	resp := readyResponse{Ready: true}
	for _, p := range s.pingers {
		probeCtx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		err := p.Ping(probeCtx)
		cancel()

		check := readyCheck{Name: p.Name(), OK: err == nil}
		if err != nil {
			check.Error = err.Error()
			resp.Ready = false
			log.Warn("readiness probe failed",
				slog.String("dependency", p.Name()),
				slog.Any("error", err),
			)
		}
		resp.Checks = append(resp.Checks, check)
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error("ready encode error", slog.Any("error", err))
	}
}
