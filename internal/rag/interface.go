// Package rag defines the interfaces for the retrieval side of the service:
// vector index storage, embedding, and query-time retrieval. Concrete
// implementations (Qdrant, etc.) satisfy these interfaces so the sync engine
// and the answer pipeline never depend on a specific backend.
package rag

import (
	"context"
)

// Document is a unit of indexed or retrieved knowledge — one chunk of a
// canonical knowledge-base document together with its provenance.
type Document struct {
	// ID is the deterministic identifier for this chunk.
	ID string

	// Content is the chunk text.
	Content string

	// Title is the parent document's title.
	Title string

	// RecordID is the upstream numeric record ID of the parent document.
	RecordID int

	// DocumentID is the stable upstream document identifier.
	DocumentID string

	// Source labels the content origin.
	Source string

	// Score is the similarity score assigned during retrieval; higher is
	// more relevant. Zero value means the score was not computed.
	Score float32
}

// VectorStore is the interface for the remote vector collection. It mirrors
// the lifecycle the sync engine needs: attach to an existing collection,
// create a fresh one, wipe it, insert chunk batches, and search.
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Exists reports whether the remote collection already exists.
	Exists(ctx context.Context) (bool, error)

	// Create creates the remote collection. Calling Create on an existing
	// collection is an error.
	Create(ctx context.Context) error

	// AddDocuments inserts a batch of documents with their pre-computed
	// embeddings. embeddings[i] is the vector for docs[i].
	AddDocuments(ctx context.Context, docs []Document, embeddings [][]float32) error

	// DeleteAll removes every entry from the collection. The collection
	// itself survives.
	DeleteAll(ctx context.Context) error

	// SearchWithScore returns the top-k most relevant documents for the
	// given query embedding, ranked by descending similarity score. The
	// ordering is deterministic for identical index state and query.
	SearchWithScore(ctx context.Context, queryEmbedding []float32, topK int) ([]Document, error)

	// Close releases any resources held by the store.
	Close() error
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever is the query-time interface used by the answer pipeline to fetch
// relevant passages for a question. It combines embedding and vector search.
// Implementations must be safe to call from multiple goroutines.
type Retriever interface {
	// Retrieve returns the top-k most relevant documents for the query.
	Retrieve(ctx context.Context, query string, topK int) ([]Document, error)
}
