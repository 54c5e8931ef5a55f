package server

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/docchat/docchat-go/internal/logging"
)

const (
	// defaultRateLimit is the sustained requests/second allowed per client
	// IP on the query endpoints when no explicit limit is configured.
	defaultRateLimit = 10

	// defaultRateBurst is the per-IP burst allowance. Short spikes within
	// the burst are served without rejection.
	defaultRateBurst = 20

	// visitorTTL is how long an idle client's bucket is kept before the
	// sweeper drops it.
	visitorTTL = 5 * time.Minute

	sweepInterval = time.Minute
)

// visitor pairs a client's token bucket with its last activity time so idle
// buckets can be swept.
type visitor struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// rateLimiter enforces a per-IP token bucket across rate-limited endpoints.
// The visitor map is swept periodically so memory stays bounded under churn.
type rateLimiter struct {
	rps   rate.Limit
	burst int
	log   *slog.Logger

	mu       sync.Mutex
	visitors map[string]*visitor
}

// newRateLimiter builds a limiter and starts its sweep goroutine. Calling
// the returned stop func ends the goroutine.
func newRateLimiter(rps float64, burst int, log *slog.Logger) (*rateLimiter, func()) {
	rl := &rateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		log:      log,
		visitors: make(map[string]*visitor),
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				rl.sweep(time.Now())
			}
		}
	}()

	return rl, func() { close(done) }
}

// allow reports whether ip may make a request now, creating the bucket on
// first sight and refreshing its activity time.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{bucket: rate.NewLimiter(rl.rps, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	return v.bucket.Allow()
}

// sweep drops visitors idle longer than visitorTTL as of now.
func (rl *rateLimiter) sweep(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := now.Add(-visitorTTL)
	for ip, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, ip)
		}
	}
}

// middleware rejects over-limit requests with 429 and a Retry-After hint
// before they reach next.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.allow(ip) {
			logging.FromContext(r.Context()).Warn("rate limit exceeded",
				slog.String("ip", ip),
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP is the connection's remote IP without the port. X-Forwarded-For
// is deliberately ignored; this server binds locally and a spoofable header
// must not select the bucket.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
