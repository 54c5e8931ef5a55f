package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/docchat/docchat-go/internal/answer"
	"github.com/docchat/docchat-go/internal/rag"
)

// fakeAnswerer scripts the orchestrator behind the query handlers.
type fakeAnswerer struct {
	ans         answer.Answer
	err         error
	gotQuestion string
	gotFilter   rag.Filter
	calls       int
}

func (f *fakeAnswerer) Ask(_ context.Context, question string, filter rag.Filter) (answer.Answer, error) {
	f.calls++
	f.gotQuestion = question
	f.gotFilter = filter
	return f.ans, f.err
}

func (f *fakeAnswerer) AskStream(_ context.Context, question string, filter rag.Filter, w io.Writer) (answer.Answer, error) {
	f.calls++
	f.gotQuestion = question
	f.gotFilter = filter
	if f.err != nil {
		return answer.Answer{}, f.err
	}
	io.WriteString(w, f.ans.Text) //nolint:errcheck // test sink
	return f.ans, nil
}

// newTestServer builds a Server over the fake with auth disabled and a
// generous rate limit, so individual tests opt in to what they exercise.
func newTestServer(t *testing.T, fa *fakeAnswerer, mutate func(*Config)) *Server {
	t.Helper()
	cfg := &Config{
		RateLimit: 1000,
		RateBurst: 1000,
		Registry:  prometheus.NewRegistry(),
	}
	if mutate != nil {
		mutate(cfg)
	}
	s, err := New(fa, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.stopRL)
	return s
}

func postJSON(t *testing.T, s *Server, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func Test_Query_ReturnsAnswerAndSources(t *testing.T) {
	t.Parallel()

	fa := &fakeAnswerer{ans: answer.Answer{
		Text: "Aim for 1.6 g/kg [1].",
		Sources: []answer.Source{
			{Ref: 1, Document: "doc.pdf", Page: 12, Similarity: 0.91},
		},
	}}
	s := newTestServer(t, fa, nil)

	rec := postJSON(t, s, "/api/query", `{"message":"how much protein?","source":"doc.pdf"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp queryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Answer != "Aim for 1.6 g/kg [1]." {
		t.Fatalf("answer = %q", resp.Answer)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].Page != 12 {
		t.Fatalf("sources = %+v", resp.Sources)
	}
	if fa.gotQuestion != "how much protein?" {
		t.Fatalf("question passed through = %q", fa.gotQuestion)
	}
	if fa.gotFilter.Source != "doc.pdf" {
		t.Fatalf("filter source = %q", fa.gotFilter.Source)
	}
}

func Test_Query_DeclineHasEmptySourcesArray(t *testing.T) {
	t.Parallel()

	fa := &fakeAnswerer{ans: answer.Answer{Text: answer.DeclinePhrase}}
	s := newTestServer(t, fa, nil)

	rec := postJSON(t, s, "/api/query", `{"message":"unanswerable"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	// The JSON must contain "sources": [] rather than null.
	if !strings.Contains(rec.Body.String(), `"sources":[]`) {
		t.Fatalf("body = %s, want empty sources array", rec.Body.String())
	}
}

func Test_Query_BadRequests(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{"message":`},
		{"missing message", `{}`},
		{"blank message", `{"message":"   "}`},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			fa := &fakeAnswerer{}
			s := newTestServer(t, fa, nil)
			rec := postJSON(t, s, "/api/query", tc.body, nil)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if fa.calls != 0 {
				t.Fatal("answerer must not run for bad requests")
			}
		})
	}
}

func Test_Query_ErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "invalid query",
			err:        answer.ErrInvalidQuery,
			wantStatus: http.StatusBadRequest,
			wantBody:   "message is required",
		},
		{
			name:       "embedding backend down",
			err:        &rag.EmbeddingError{Backend: "ollama", Err: errors.New("dial tcp: connection refused")},
			wantStatus: http.StatusInternalServerError,
			wantBody:   "embedding backend unavailable",
		},
		{
			name:       "store down",
			err:        &rag.StoreError{Store: "qdrant", Err: errors.New("rpc error")},
			wantStatus: http.StatusInternalServerError,
			wantBody:   "vector store unavailable",
		},
		{
			name:       "generation backend down",
			err:        &answer.GenerationError{Backend: "openai", Err: errors.New("429 too many requests")},
			wantStatus: http.StatusInternalServerError,
			wantBody:   "generation backend unavailable",
		},
		{
			name:       "unknown failure",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   "internal error",
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := newTestServer(t, &fakeAnswerer{err: tc.err}, nil)
			rec := postJSON(t, s, "/api/query", `{"message":"q"}`, nil)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			body := strings.TrimSpace(rec.Body.String())
			if body != tc.wantBody {
				t.Fatalf("body = %q, want %q", body, tc.wantBody)
			}
			// The backend error detail must never reach the client.
			if strings.Contains(rec.Body.String(), "connection refused") ||
				strings.Contains(rec.Body.String(), "rpc error") ||
				strings.Contains(rec.Body.String(), "boom") {
				t.Fatalf("internal detail leaked to client: %s", rec.Body.String())
			}
		})
	}
}

func Test_Auth_Enforcement(t *testing.T) {
	t.Parallel()

	fa := &fakeAnswerer{ans: answer.Answer{Text: "ok"}}
	s := newTestServer(t, fa, func(c *Config) { c.APIKey = "secret-key" })

	rec := postJSON(t, s, "/api/query", `{"message":"q"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d, want 401", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Fatal("missing WWW-Authenticate challenge")
	}

	rec = postJSON(t, s, "/api/query", `{"message":"q"}`, map[string]string{"Authorization": "Bearer wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: status = %d, want 401", rec.Code)
	}

	rec = postJSON(t, s, "/api/query", `{"message":"q"}`, map[string]string{"Authorization": "Bearer secret-key"})
	if rec.Code != http.StatusOK {
		t.Fatalf("valid token: status = %d, want 200", rec.Code)
	}
}

func Test_Auth_HealthStaysOpen(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeAnswerer{}, func(c *Config) { c.APIKey = "secret-key" })

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200 without auth", rec.Code)
	}
}

func Test_RateLimit_Returns429(t *testing.T) {
	t.Parallel()

	fa := &fakeAnswerer{ans: answer.Answer{Text: "ok"}}
	s := newTestServer(t, fa, func(c *Config) {
		c.RateLimit = 1
		c.RateBurst = 2
	})

	var got429 bool
	for range 5 {
		rec := postJSON(t, s, "/api/query", `{"message":"q"}`, nil)
		if rec.Code == http.StatusTooManyRequests {
			got429 = true
			if rec.Header().Get("Retry-After") == "" {
				t.Fatal("429 without Retry-After header")
			}
		}
	}
	if !got429 {
		t.Fatal("burst of 5 requests never hit the rate limit")
	}
}

type fakePinger struct {
	name string
	err  error
}

func (f *fakePinger) Ping(context.Context) error { return f.err }
func (f *fakePinger) Name() string               { return f.name }

func Test_Ready_ReportsDependencyState(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeAnswerer{}, func(c *Config) {
		c.Pingers = []Pinger{
			&fakePinger{name: "ollama"},
			&fakePinger{name: "sqlite", err: errors.New("locked")},
		}
	})

	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var resp readyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Ready {
		t.Fatal("ready = true with a failing dependency")
	}
	if len(resp.Checks) != 2 || resp.Checks[0].Name != "ollama" || !resp.Checks[0].OK {
		t.Fatalf("checks = %+v", resp.Checks)
	}
	if resp.Checks[1].OK || resp.Checks[1].Error == "" {
		t.Fatalf("failing check not reported: %+v", resp.Checks[1])
	}
}

func Test_Ready_AllHealthy(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeAnswerer{}, func(c *Config) {
		c.Pingers = []Pinger{&fakePinger{name: "ollama"}}
	})

	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func Test_Chat_StreamsSSE(t *testing.T) {
	t.Parallel()

	fa := &fakeAnswerer{ans: answer.Answer{
		Text:    "Aim for 1.6 g/kg [1].",
		Sources: []answer.Source{{Ref: 1, Document: "doc.pdf", Page: 12}},
	}}
	s := newTestServer(t, fa, nil)

	rec := postJSON(t, s, "/api/chat", `{"message":"how much protein?"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "data: Aim for 1.6 g/kg [1].") {
		t.Fatalf("answer data frame missing:\n%s", body)
	}
	if !strings.Contains(body, "event: sources") {
		t.Fatalf("sources event missing:\n%s", body)
	}
	if !strings.Contains(body, `"document":"doc.pdf"`) {
		t.Fatalf("sources payload missing:\n%s", body)
	}
	if !strings.Contains(body, "event: done") {
		t.Fatalf("done event missing:\n%s", body)
	}
}

func Test_Chat_ErrorDeliveredInBand(t *testing.T) {
	t.Parallel()

	fa := &fakeAnswerer{err: &answer.GenerationError{Backend: "ollama", Err: errors.New("model not found")}}
	s := newTestServer(t, fa, nil)

	rec := postJSON(t, s, "/api/chat", `{"message":"q"}`, nil)
	body := rec.Body.String()
	if !strings.Contains(body, "event: error") {
		t.Fatalf("error event missing:\n%s", body)
	}
	if !strings.Contains(body, "generation backend unavailable") {
		t.Fatalf("public error message missing:\n%s", body)
	}
	if strings.Contains(body, "model not found") {
		t.Fatalf("internal detail leaked:\n%s", body)
	}
}

func Test_Metrics_CountsQueries(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	fa := &fakeAnswerer{ans: answer.Answer{Text: "ok"}}
	s := newTestServer(t, fa, func(c *Config) { c.Registry = reg })

	postJSON(t, s, "/api/query", `{"message":"q"}`, nil)
	postJSON(t, s, "/api/query", `{"message":""}`, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, `docchat_query_requests_total{outcome="ok"} 1`) {
		t.Fatalf("ok counter missing:\n%s", body)
	}
	if !strings.Contains(body, `docchat_query_requests_total{outcome="bad_request"} 1`) {
		t.Fatalf("bad_request counter missing:\n%s", body)
	}
	if !strings.Contains(body, "docchat_http_requests_total") {
		t.Fatal("http request counter missing")
	}
}
