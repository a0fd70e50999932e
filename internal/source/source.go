// Package source implements the client for the upstream knowledge-base
// content API. The upstream is a Strapi-shaped endpoint returning a
// `{"data": [...]}` envelope of content records; beyond that shape it is
// treated as a black box. The raw response body is retained alongside the
// decoded records so the sync engine can fingerprint the corpus without
// re-serialising it.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RawRecord is a single upstream content item. Field casing follows the
// upstream API: Title and Content are capitalised attribute names, id and
// documentId are Strapi system fields.
type RawRecord struct {
	// ID is the upstream numeric record ID.
	ID int `json:"id"`
	// DocumentID is the stable document identifier; records sharing a
	// DocumentID are revisions of the same document.
	DocumentID string `json:"documentId"`
	// Title is the document title. Records without a title are discarded
	// during normalization.
	Title string `json:"Title"`
	// Content is the list of typed rich-text blocks.
	Content []Block `json:"Content"`
}

// Block is one typed rich-text block within a record's content.
type Block struct {
	// Type identifies the block kind; only "paragraph" blocks carry
	// displayable text.
	Type string `json:"type"`
	// Children are the text spans inside the block.
	Children []Span `json:"children"`
}

// Span is a single text span inside a block.
type Span struct {
	// Text is the span's raw text.
	Text string `json:"text"`
}

// Result is the outcome of one upstream fetch.
type Result struct {
	// Records are the decoded content records in upstream order.
	Records []RawRecord
	// Payload is the raw response body. The sync engine fingerprints this
	// byte-for-byte, so it must not be mutated.
	Payload []byte
}

// envelope is the upstream response wrapper.
type envelope struct {
	Data []RawRecord `json:"data"`
}

// Config holds the settings for constructing a Client.
type Config struct {
	// URL is the upstream content endpoint.
	URL string
	// Timeout is the per-request timeout. Defaults to 5s if zero.
	Timeout time.Duration
	// MaxRetries is the number of additional attempts after a failed fetch.
	// Defaults to 2 if negative.
	MaxRetries int
}

// Client fetches content records from the upstream API. It is safe for
// concurrent use.
type Client struct {
	// url is the upstream content endpoint.
	url string
	// maxRetries is the number of additional attempts after a failure.
	maxRetries int
	// httpClient is the shared HTTP client with the configured timeout.
	httpClient *http.Client
}

// NewClient constructs a Client from the given config.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, fmt.Errorf("source: URL must not be empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 2
	}
	return &Client{
		url:        cfg.URL,
		maxRetries: retries,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Fetch retrieves the full set of content records. Transient failures are
// retried up to MaxRetries times with a short fixed backoff; the last error
// is returned if every attempt fails.
func (c *Client) Fetch(ctx context.Context) (*Result, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("source: fetch cancelled: %w", ctx.Err())
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}
		res, err := c.fetchOnce(ctx)
		if err == nil {
			return res, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("source: fetch failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

// fetchOnce performs a single GET against the upstream endpoint.
func (c *Client) fetchOnce(ctx context.Context) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, c.url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	return &Result{Records: env.Data, Payload: body}, nil
}
