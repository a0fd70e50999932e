package server

import (
	"context"
	"fmt"
	"net/http"
)

// StorePinger probes the vector store using its native health check. It
// satisfies the Pinger interface and is used by GET /ready.
type StorePinger struct {
	// store is the vector store to probe.
	store interface {
		Ping(ctx context.Context) error
	}
}

// NewStorePinger constructs a StorePinger for the given vector store.
func NewStorePinger(store interface{ Ping(ctx context.Context) error }) *StorePinger {
	return &StorePinger{store: store}
}

// Name returns the dependency label used in readiness responses.
func (p *StorePinger) Name() string { return "qdrant" }

// Ping delegates to the store's health check.
func (p *StorePinger) Ping(ctx context.Context) error {
	if err := p.store.Ping(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// SourcePinger probes the upstream content API with a plain GET. Any
// response below 500 counts as reachable; the probe checks connectivity, not
// payload validity.
type SourcePinger struct {
	// url is the content API endpoint.
	url string
	// client is the HTTP client used for probes.
	client *http.Client
}

// NewSourcePinger constructs a SourcePinger for the given endpoint URL.
func NewSourcePinger(url string) *SourcePinger {
	return &SourcePinger{url: url, client: http.DefaultClient}
}

// Name returns the dependency label used in readiness responses.
func (p *SourcePinger) Name() string { return "source" }

// Ping issues a GET to the content API and reports reachability.
func (p *SourcePinger) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("building probe request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("probe returned status %d", resp.StatusCode)
	}
	return nil
}
