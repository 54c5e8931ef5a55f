package server

import (
	"context"
	"fmt"
	"net/http"
)

// HTTPPinger probes a dependency by issuing a GET against a base URL, e.g.
// the Ollama root endpoint. Any response below 500 counts as reachable since
// some backends answer probes with 401 or 404.
type HTTPPinger struct {
	// name identifies the backend in readiness responses (e.g. "ollama").
	name string
	// url is the endpoint probed with a plain GET.
	url string
	// client is the HTTP client used for probes.
	client *http.Client
}

// NewHTTPPinger constructs an HTTPPinger for the given backend name and URL.
func NewHTTPPinger(name, url string) *HTTPPinger {
	return &HTTPPinger{
		name:   name,
		url:    url,
		client: &http.Client{Timeout: probeTimeout},
	}
}

// Name returns the backend label used in readiness responses.
func (p *HTTPPinger) Name() string { return p.name }

// Ping issues the probe request and reports reachability.
func (p *HTTPPinger) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// StorePinger adapts a vector store's Ping method to the Pinger interface.
type StorePinger struct {
	// name is the store label (e.g. "sqlite", "qdrant").
	name string
	// ping is the store's own reachability check.
	ping func(ctx context.Context) error
}

// NewStorePinger wraps a store ping function under the given name.
func NewStorePinger(name string, ping func(ctx context.Context) error) *StorePinger {
	return &StorePinger{name: name, ping: ping}
}

// Name returns the store label used in readiness responses.
func (p *StorePinger) Name() string { return p.name }

// Ping delegates to the store's own check. The caller bounds it with a
// probe-timeout context.
func (p *StorePinger) Ping(ctx context.Context) error {
	if p.ping == nil {
		return nil
	}
	return p.ping(ctx)
}
