package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/kbchat-go/internal/chat"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 0.0.0.0).
	Host string
	// Port is the TCP port to listen on (default: 3000).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It must
	// cover a full answer pipeline run including a possible index rebuild.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, slog.Default() is used.
	Logger *slog.Logger
	// Environment is the deployment environment name. When it equals
	// "production", internal error details are withheld from API responses.
	Environment string
	// Pingers is the ordered list of dependency probes run by GET /ready.
	// If empty, /ready returns 200 with no checks.
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on POST /chat
	// (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// MetricsRegistry receives the server's Prometheus metric registrations.
	// If nil, prometheus.DefaultRegisterer is used.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs the GET /metrics endpoint. If nil,
	// prometheus.DefaultGatherer is used.
	MetricsGatherer prometheus.Gatherer
	// Info is the static configuration view reported by GET /health.
	Info HealthInfo
}

// HealthInfo is the non-secret configuration summary included in health
// responses so operators can confirm what the instance is wired to.
type HealthInfo struct {
	// Collection is the vector collection name.
	Collection string `json:"collection"`
	// ChatModel is the chat model or deployment name.
	ChatModel string `json:"chatModel"`
	// EmbeddingBackend is the embedding provider name.
	EmbeddingBackend string `json:"embeddingBackend"`
	// TopK is the number of passages retrieved per question.
	TopK int `json:"topK"`
}

// answerer is the interface handleChat calls to run the pipeline.
// *chat.Pipeline satisfies it; tests inject a fake.
type answerer interface {
	Answer(ctx context.Context, input string, history []chat.Turn) (*chat.Result, error)
}

// readier is the interface handleHealth calls to bring up and inspect the
// index. *indexer.Engine satisfies it; tests inject a fake.
type readier interface {
	EnsureReady(ctx context.Context) error
	Ready() bool
}

// Server is the HTTP server exposing the chat, health, readiness, and
// metrics endpoints.
type Server struct {
	// pipeline answers chat requests.
	pipeline answerer
	// engine owns the index lifecycle, consulted by /health.
	engine readier
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// metrics holds the server's Prometheus instruments.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// chatRequest is the JSON body for POST /chat.
type chatRequest struct {
	// ChatHistory is the prior conversation turns, oldest first.
	ChatHistory []chat.Turn `json:"chatHistory"`
	// Input is the user's question.
	Input string `json:"input"`
}

// errorResponse is the JSON body for error replies.
type errorResponse struct {
	// Error is the stable machine-readable error summary.
	Error string `json:"error"`
	// Message carries human-readable detail. Omitted in production for
	// internal errors.
	Message string `json:"message,omitempty"`
}

// healthResponse is the JSON body for GET /health.
type healthResponse struct {
	// Status is "ok" or "error".
	Status string `json:"status"`
	// Timestamp is the RFC 3339 time the check ran.
	Timestamp string `json:"timestamp"`
	// IndexInitialized reports whether the vector collection handle is up.
	IndexInitialized bool `json:"indexInitialized"`
	// Config is the non-secret configuration summary.
	Config HealthInfo `json:"config"`
	// Error carries the failure reason when Status is "error".
	Error string `json:"error,omitempty"`
}
