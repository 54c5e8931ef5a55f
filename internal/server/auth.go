package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/docchat/docchat-go/internal/logging"
)

// authMiddleware guards next with Bearer token auth. An empty apiKey turns
// the guard off entirely; server startup logs that condition once rather
// than spamming every request.
//
// Clients authenticate with:
//
//	Authorization: Bearer <apiKey>
//
// A missing or wrong token gets 401 plus a WWW-Authenticate challenge. The
// presented token value never reaches the logs.
func authMiddleware(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}

	want := []byte(apiKey)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			logging.FromContext(r.Context()).Warn("auth: missing Authorization header",
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="docchat"`)
			http.Error(w, "authorization required", http.StatusUnauthorized)
			return
		}

		if subtle.ConstantTimeCompare([]byte(token), want) != 1 {
			logging.FromContext(r.Context()).Warn("auth: invalid token",
				slog.String("path", r.URL.Path),
				slog.Bool("token_present", true),
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="docchat" error="invalid_token"`)
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// bearerToken pulls the credential out of the Authorization header. The
// second return is false when the header is absent, not a Bearer scheme, or
// carries an empty token.
func bearerToken(r *http.Request) (string, bool) {
	hdr := r.Header.Get("Authorization")
	scheme, rest, found := strings.Cut(hdr, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token := strings.TrimSpace(rest)
	return token, token != ""
}
