package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/kbchat-go/internal/chat"
	"github.com/54b3r/kbchat-go/internal/corpus"
	"github.com/54b3r/kbchat-go/internal/embedder"
	"github.com/54b3r/kbchat-go/internal/indexer"
	"github.com/54b3r/kbchat-go/internal/journal"
	"github.com/54b3r/kbchat-go/internal/provider"
	"github.com/54b3r/kbchat-go/internal/rag"
	"github.com/54b3r/kbchat-go/internal/source"
)

// stack bundles the wired dependencies shared by the serve, ask, and sync
// commands: upstream client, vector store, sync engine, and answer pipeline.
type stack struct {
	// source is the upstream content API client.
	source *source.Client
	// store is the Qdrant vector store.
	store *rag.QdrantStore
	// engine is the corpus sync engine.
	engine *indexer.Engine
	// pipeline is the retrieval-and-answer pipeline.
	pipeline *chat.Pipeline
	// journal records sync runs; nil when disabled.
	journal journal.Journal
	// sourceURL is the resolved content API endpoint, kept for pingers.
	sourceURL string
	// collection is the resolved vector collection name.
	collection string
	// providerCfg is the resolved chat model configuration.
	providerCfg *provider.Config
	// embedBackend is the resolved embedding backend name.
	embedBackend string
	// topK is the resolved retrieval depth.
	topK int
	// closers run in reverse order on close.
	closers []func()
}

// close releases all resources held by the stack.
func (s *stack) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// buildStack wires the full dependency graph from environment variables.
// metrics may be nil to skip engine metric registration (one-shot commands).
func buildStack(ctx context.Context, log *slog.Logger, metrics prometheus.Registerer) (*stack, error) {
	sourceURL := os.Getenv("SOURCE_URL")
	if sourceURL == "" {
		return nil, fmt.Errorf("SOURCE_URL is required (the upstream content API endpoint)")
	}

	src, err := source.NewClient(&source.Config{
		URL:        sourceURL,
		Timeout:    time.Duration(envInt("SOURCE_TIMEOUT", 5)) * time.Second,
		MaxRetries: envInt("SOURCE_MAX_RETRIES", 2),
	})
	if err != nil {
		return nil, fmt.Errorf("initialising source client: %w", err)
	}

	if err := embedder.Validate(log); err != nil {
		return nil, err
	}
	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("initialising embedder: %w", err)
	}
	embedBackend := embedder.ResolveBackend()

	collection := envOrDefault("KB_COLLECTION", "content_embeddings")
	store, err := rag.NewQdrantStore(&rag.QdrantConfig{
		Host:          envOrDefault("QDRANT_HOST", "localhost"),
		Port:          envInt("QDRANT_PORT", 6334),
		Collection:    collection,
		VectorSize:    uint64(embedder.DefaultDimensions(embedBackend)),
		APIKey:        os.Getenv("QDRANT_API_KEY"),
		UseTLS:        os.Getenv("QDRANT_TLS") == "true",
		TextMaxLength: envInt("KB_TEXT_MAX_LENGTH", 4096),
		SearchEf:      uint64(envInt("KB_SEARCH_EF", 0)),
	})
	if err != nil {
		return nil, fmt.Errorf("initialising vector store: %w", err)
	}

	s := &stack{
		source:       src,
		store:        store,
		sourceURL:    sourceURL,
		collection:   collection,
		embedBackend: embedBackend,
	}
	s.closers = append(s.closers, func() { _ = store.Close() })

	// Open the sync-run journal. KBCHAT_JOURNAL_DB overrides the default
	// path (~/.kbchat/journal.db); "disabled" turns it off. Open failures
	// degrade to no journalling rather than aborting.
	dbPath := os.Getenv("KBCHAT_JOURNAL_DB")
	if dbPath != "disabled" {
		if dbPath == "" {
			dbPath, err = journal.DefaultDBPath()
			if err != nil {
				log.Warn("journal: could not resolve default DB path, disabling", slog.Any("error", err))
				dbPath = ""
			}
		}
		if dbPath != "" {
			j, jErr := journal.Open(dbPath)
			if jErr != nil {
				log.Warn("journal: failed to open, disabling", slog.Any("error", jErr))
			} else {
				s.journal = j
				s.closers = append(s.closers, func() { _ = j.Close() })
				log.Info("journal: opened", slog.String("path", dbPath))
			}
		}
	} else {
		log.Info("journal: disabled via KBCHAT_JOURNAL_DB=disabled")
	}

	splitter := corpus.NewSplitter(envInt("CHUNK_SIZE", 0), envInt("CHUNK_OVERLAP", 0))

	engine, err := indexer.New(&indexer.Config{
		Source:    src,
		Splitter:  splitter,
		Embedder:  emb,
		Store:     store,
		Journal:   s.journal,
		BatchSize: envInt("KB_INSERT_BATCH", 100),
		Metrics:   metrics,
	})
	if err != nil {
		s.close()
		return nil, fmt.Errorf("initialising sync engine: %w", err)
	}
	s.engine = engine

	topK := envInt("TOP_K", 3)
	retriever, err := rag.NewRetriever(emb, store, topK)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("initialising retriever: %w", err)
	}

	providerCfg := provider.ConfigFromEnv()
	chatModel, err := provider.New(ctx, providerCfg)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("initialising model provider: %w", err)
	}
	s.providerCfg = providerCfg
	s.topK = topK
	log.Info("provider initialised",
		slog.String("backend", string(providerCfg.Backend)),
		slog.String("model", providerCfg.ModelName()),
	)

	pipeline, err := chat.New(&chat.Config{
		Syncer:           engine,
		Retriever:        retriever,
		ChatModel:        chatModel,
		TopK:             topK,
		MaxContextTokens: envInt("MAX_CONTEXT_TOKENS", 0),
	})
	if err != nil {
		s.close()
		return nil, fmt.Errorf("initialising answer pipeline: %w", err)
	}
	s.pipeline = pipeline

	return s, nil
}

// envOrDefault returns the value of the named environment variable, or
// fallback if unset or empty.
func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt returns the integer value of the named environment variable, or
// fallback if unset, empty, or not parseable.
func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// envFloat returns the float64 value of the named environment variable, or
// fallback if unset, empty, or not parseable.
func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
