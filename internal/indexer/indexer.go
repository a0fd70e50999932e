// Package indexer implements the corpus sync engine. It owns the lifecycle
// of the remote vector collection: attach-or-bootstrap on first use, and
// fingerprint-gated full rebuilds when the upstream corpus drifts. All
// mutating operations are single-flight — concurrent callers join the
// in-flight run instead of racing their own delete-all/reinsert cycles.
package indexer

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"

	"github.com/54b3r/kbchat-go/internal/corpus"
	"github.com/54b3r/kbchat-go/internal/journal"
	"github.com/54b3r/kbchat-go/internal/logging"
	"github.com/54b3r/kbchat-go/internal/rag"
	"github.com/54b3r/kbchat-go/internal/source"
)

// Outcome classifies the result of a Refresh call.
type Outcome string

const (
	// OutcomeUpToDate means the corpus fingerprint matched the last sync;
	// no index mutation was issued.
	OutcomeUpToDate Outcome = "up_to_date"
	// OutcomeRefreshed means the corpus changed and the index was rebuilt.
	OutcomeRefreshed Outcome = "refreshed"
)

// Fetcher is the upstream corpus fetch dependency. *source.Client satisfies
// it; tests inject a fake.
type Fetcher interface {
	// Fetch retrieves the full set of content records plus the raw payload.
	Fetch(ctx context.Context) (*source.Result, error)
}

// Config holds the dependencies and settings for constructing an Engine.
type Config struct {
	// Source fetches the upstream corpus.
	Source Fetcher
	// Splitter chunks canonical documents.
	Splitter *corpus.Splitter
	// Embedder converts chunk text into vectors.
	Embedder rag.Embedder
	// Store is the remote vector collection.
	Store rag.VectorStore
	// Journal records sync runs. May be nil to disable journalling.
	Journal journal.Journal
	// BatchSize is the number of chunks per insert batch. Defaults to 100.
	BatchSize int
	// Metrics registers the engine's Prometheus metrics when non-nil.
	Metrics prometheus.Registerer
}

// Engine orchestrates fetch → normalize → dedupe → chunk → rebuild-or-skip.
// It is safe for concurrent use: collection adoption and refresh both run
// under a single-flight group, and the fingerprint/readiness snapshot is
// guarded by a mutex.
type Engine struct {
	// src fetches the upstream corpus.
	src Fetcher
	// splitter chunks canonical documents.
	splitter *corpus.Splitter
	// embedder converts chunk text into vectors.
	embedder rag.Embedder
	// store is the remote vector collection.
	store rag.VectorStore
	// journal records sync runs; nil disables journalling.
	journal journal.Journal
	// batchSize is the number of chunks per insert batch.
	batchSize int
	// syncRuns counts completed sync runs by outcome; nil when metrics are
	// not configured.
	syncRuns *prometheus.CounterVec

	// flight collapses concurrent initialize/refresh calls into one run.
	flight singleflight.Group
	// opMu serialises initialize and refresh so they never interleave.
	opMu sync.Mutex

	// mu guards ready and fingerprint.
	mu sync.Mutex
	// ready is true once the collection handle has been adopted or created.
	ready bool
	// fingerprint is the corpus fingerprint recorded by the last successful
	// sync. Empty after attaching to an existing collection — the first
	// Refresh after an attach always rebuilds.
	fingerprint string
}

// New constructs an Engine from the provided Config.
func New(cfg *Config) (*Engine, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("indexer: source must not be nil")
	}
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("indexer: embedder must not be nil")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("indexer: store must not be nil")
	}
	splitter := cfg.Splitter
	if splitter == nil {
		splitter = corpus.NewSplitter(0, 0)
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 100
	}

	e := &Engine{
		src:       cfg.Source,
		splitter:  splitter,
		embedder:  cfg.Embedder,
		store:     cfg.Store,
		journal:   cfg.Journal,
		batchSize: batch,
	}

	if cfg.Metrics != nil {
		e.syncRuns = promauto.With(cfg.Metrics).NewCounterVec(prometheus.CounterOpts{
			Namespace: "kbchat",
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Total number of sync engine runs, partitioned by outcome.",
		}, []string{"outcome"})
	}

	return e, nil
}

// Ready reports whether the collection handle has been adopted or created.
func (e *Engine) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ready
}

// lastFingerprint returns the fingerprint recorded by the last successful sync.
func (e *Engine) lastFingerprint() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fingerprint
}

// setState records the readiness flag and fingerprint atomically.
func (e *Engine) setState(ready bool, fingerprint string) {
	e.mu.Lock()
	e.ready = ready
	e.fingerprint = fingerprint
	e.mu.Unlock()
}

// EnsureReady makes sure a collection handle exists, initializing it on
// first use. If the remote collection already exists it is adopted as-is —
// no fingerprinting and no freshness check, so process startup stays cheap.
// Otherwise the full corpus is fetched, normalized, chunked, and a new
// collection is created from the result. Initialization failures propagate
// and leave no handle cached, so the next call retries from scratch.
// Concurrent callers share a single initialization run.
func (e *Engine) EnsureReady(ctx context.Context) error {
	if e.Ready() {
		return nil
	}
	_, err, _ := e.flight.Do("init", func() (any, error) {
		e.opMu.Lock()
		defer e.opMu.Unlock()
		if e.Ready() {
			return nil, nil
		}
		return nil, e.initialize(ctx)
	})
	return err
}

// Refresh re-syncs the index if the upstream corpus changed since the last
// recorded sync. It fetches the corpus, compares fingerprints, and on drift
// performs a full delete-all followed by batched reinsertion. The
// fingerprint is only advanced on success, so a failed refresh is retried in
// full by the next call. Concurrent callers share a single in-flight run.
// Callers must have had EnsureReady succeed first.
func (e *Engine) Refresh(ctx context.Context) (Outcome, error) {
	v, err, _ := e.flight.Do("refresh", func() (any, error) {
		e.opMu.Lock()
		defer e.opMu.Unlock()
		return e.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(Outcome), nil
}

// initialize adopts an existing collection or bootstraps a new one.
func (e *Engine) initialize(ctx context.Context) error {
	log := logging.FromContext(ctx)

	exists, err := e.store.Exists(ctx)
	if err != nil {
		return fmt.Errorf("indexer: checking collection: %w", err)
	}
	if exists {
		// Adopt as-is. The empty fingerprint forces the first Refresh to
		// rebuild, which is how a stale pre-existing collection converges.
		e.setState(true, "")
		log.Info("indexer: adopted existing collection")
		return nil
	}

	start := time.Now()
	log.Info("indexer: collection absent, bootstrapping")

	res, err := e.src.Fetch(ctx)
	if err != nil {
		e.recordRun(ctx, journal.Entry{Outcome: journal.OutcomeFailed, Error: err.Error(), Duration: time.Since(start)})
		return fmt.Errorf("indexer: bootstrap fetch: %w", err)
	}

	docs, chunks := e.buildCorpus(ctx, res.Records)

	if err := e.store.Create(ctx); err != nil {
		e.recordRun(ctx, journal.Entry{Outcome: journal.OutcomeFailed, Error: err.Error(), Duration: time.Since(start)})
		return fmt.Errorf("indexer: creating collection: %w", err)
	}
	if err := e.insertBatches(ctx, chunks); err != nil {
		e.recordRun(ctx, journal.Entry{Outcome: journal.OutcomeFailed, Error: err.Error(), Duration: time.Since(start)})
		return fmt.Errorf("indexer: bootstrap insert: %w", err)
	}

	fp := corpus.Fingerprint(res.Payload)
	e.setState(true, fp)
	e.recordRun(ctx, journal.Entry{
		Outcome:     journal.OutcomeBootstrapped,
		Fingerprint: fp,
		Documents:   len(docs),
		Chunks:      len(chunks),
		Duration:    time.Since(start),
	})

	log.Info("indexer: bootstrap complete",
		slog.Int("documents", len(docs)),
		slog.Int("chunks", len(chunks)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// refresh performs one fingerprint-gated sync pass.
func (e *Engine) refresh(ctx context.Context) (Outcome, error) {
	log := logging.FromContext(ctx)
	start := time.Now()

	res, err := e.src.Fetch(ctx)
	if err != nil {
		e.recordRun(ctx, journal.Entry{Outcome: journal.OutcomeFailed, Error: err.Error(), Duration: time.Since(start)})
		return "", fmt.Errorf("indexer: refresh fetch: %w", err)
	}

	fp := corpus.Fingerprint(res.Payload)
	if last := e.lastFingerprint(); last != "" && last == fp {
		e.countRun(string(OutcomeUpToDate))
		log.Debug("indexer: corpus unchanged, skipping refresh")
		return OutcomeUpToDate, nil
	}

	log.Info("indexer: corpus changed, rebuilding index")
	docs, chunks := e.buildCorpus(ctx, res.Records)

	if err := e.store.DeleteAll(ctx); err != nil {
		e.recordRun(ctx, journal.Entry{Outcome: journal.OutcomeFailed, Error: err.Error(), Duration: time.Since(start)})
		return "", fmt.Errorf("indexer: clearing index: %w", err)
	}
	if err := e.insertBatches(ctx, chunks); err != nil {
		e.recordRun(ctx, journal.Entry{Outcome: journal.OutcomeFailed, Error: err.Error(), Duration: time.Since(start)})
		return "", fmt.Errorf("indexer: refresh insert: %w", err)
	}

	e.setState(true, fp)
	e.recordRun(ctx, journal.Entry{
		Outcome:     journal.OutcomeRefreshed,
		Fingerprint: fp,
		Documents:   len(docs),
		Chunks:      len(chunks),
		Duration:    time.Since(start),
	})

	log.Info("indexer: refresh complete",
		slog.Int("documents", len(docs)),
		slog.Int("chunks", len(chunks)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return OutcomeRefreshed, nil
}

// buildCorpus normalizes, dedupes, and chunks the raw records. Malformed
// records are dropped with their discard reason logged, never failing the run.
func (e *Engine) buildCorpus(ctx context.Context, records []source.RawRecord) ([]corpus.Document, []rag.Document) {
	log := logging.FromContext(ctx)

	docs := make([]corpus.Document, 0, len(records))
	for _, rec := range records {
		doc, reason := corpus.Normalize(rec)
		if reason != corpus.DiscardNone {
			log.Warn("indexer: discarding malformed record",
				slog.Int("id", rec.ID),
				slog.String("document_id", rec.DocumentID),
				slog.String("reason", string(reason)),
			)
			continue
		}
		docs = append(docs, doc)
	}
	docs = corpus.Dedupe(docs)

	var chunks []rag.Document
	for _, doc := range docs {
		for i, chunk := range e.splitter.Split(doc) {
			chunks = append(chunks, rag.Document{
				ID:         chunkID(doc.Metadata.DocumentID, i),
				Content:    chunk.PageContent,
				Title:      chunk.Metadata.Title,
				RecordID:   chunk.Metadata.ID,
				DocumentID: chunk.Metadata.DocumentID,
				Source:     chunk.Metadata.Source,
			})
		}
	}

	return docs, chunks
}

// insertBatches embeds and inserts chunks in fixed-size batches, logging
// progress per batch.
func (e *Engine) insertBatches(ctx context.Context, chunks []rag.Document) error {
	log := logging.FromContext(ctx)
	total := (len(chunks) + e.batchSize - 1) / e.batchSize

	for i := 0; i < len(chunks); i += e.batchSize {
		end := i + e.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[i:end]

		texts := make([]string, len(batch))
		for j, c := range batch {
			texts[j] = c.Content
		}
		embeddings, err := e.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embedding batch %d/%d: %w", i/e.batchSize+1, total, err)
		}
		if err := e.store.AddDocuments(ctx, batch, embeddings); err != nil {
			return fmt.Errorf("inserting batch %d/%d: %w", i/e.batchSize+1, total, err)
		}

		log.Info("indexer: inserted batch",
			slog.Int("batch", i/e.batchSize+1),
			slog.Int("of", total),
			slog.Int("chunks", len(batch)),
		)
	}
	return nil
}

// recordRun persists a journal entry (best-effort) and bumps the outcome metric.
func (e *Engine) recordRun(ctx context.Context, entry journal.Entry) {
	e.countRun(string(entry.Outcome))
	if e.journal == nil {
		return
	}
	if err := e.journal.Record(ctx, entry); err != nil {
		logging.FromContext(ctx).Warn("indexer: journal write failed", slog.Any("error", err))
	}
}

// countRun increments the sync-runs metric when metrics are configured.
func (e *Engine) countRun(outcome string) {
	if e.syncRuns != nil {
		e.syncRuns.WithLabelValues(outcome).Inc()
	}
}

// chunkID generates a deterministic UUID-formatted ID for a chunk based on
// its parent document identity and chunk index.
func chunkID(documentID string, index int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s#%d", documentID, index)))
	b := sum[:16]
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}
