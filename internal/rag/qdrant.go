package rag

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// Payload field names used for chunk provenance in the Qdrant collection.
const (
	payloadContent    = "content"
	payloadTitle      = "title"
	payloadRecordID   = "record_id"
	payloadDocumentID = "document_id"
	payloadSource     = "source"
)

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// TextMaxLength bounds the stored chunk text in runes; longer text is
	// truncated in the payload (the embedding always covers the full chunk).
	// Zero disables truncation.
	TextMaxLength int

	// SearchEf is the HNSW ef parameter applied to similarity searches.
	// Zero uses the collection default.
	SearchEf uint64
}

// QdrantStore implements VectorStore backed by a Qdrant instance. Unlike a
// persistent document store, it never mutates individual entries: the sync
// engine only ever wipes and re-inserts the whole chunk set.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig
}

// NewQdrantStore creates a QdrantStore for the configured collection. It only
// opens the gRPC connection — collection existence is the sync engine's
// concern, checked via Exists / Create.
func NewQdrantStore(cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant: collection name must not be empty")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	return &QdrantStore{client: client, cfg: cfg}, nil
}

// Exists reports whether the configured collection already exists.
func (s *QdrantStore) Exists(ctx context.Context) (bool, error) {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return false, fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	return exists, nil
}

// Create creates the configured collection with a cosine-distance vector
// field sized for the embedder in use.
func (s *QdrantStore) Create(ctx context.Context) error {
	err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
	}
	return nil
}

// AddDocuments inserts a batch of chunks with their embeddings.
// embeddings[i] must be the vector for docs[i].
func (s *QdrantStore) AddDocuments(ctx context.Context, docs []Document, embeddings [][]float32) error {
	if len(docs) != len(embeddings) {
		return fmt.Errorf("qdrant: %d documents but %d embeddings", len(docs), len(embeddings))
	}

	points := make([]*qdrant.PointStruct, 0, len(docs))
	for i, doc := range docs {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(doc.ID),
			Vectors: qdrant.NewVectors(embeddings[i]...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadContent:    truncateRunes(doc.Content, s.cfg.TextMaxLength),
				payloadTitle:      doc.Title,
				payloadRecordID:   int64(doc.RecordID),
				payloadDocumentID: doc.DocumentID,
				payloadSource:     doc.Source,
			}),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: insert failed: %w", err)
	}

	return nil
}

// DeleteAll removes every point from the collection using an empty filter
// selector (matches all). The collection and its schema survive.
func (s *QdrantStore) DeleteAll(ctx context.Context) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Points:         qdrant.NewPointsSelectorFilter(&qdrant.Filter{}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete-all failed: %w", err)
	}
	return nil
}

// SearchWithScore performs a cosine similarity search and returns the top-k
// results with their scores, best match first.
func (s *QdrantStore) SearchWithScore(ctx context.Context, queryEmbedding []float32, topK int) ([]Document, error) {
	limit := uint64(topK)
	query := &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(queryEmbedding...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if s.cfg.SearchEf > 0 {
		ef := s.cfg.SearchEf
		query.Params = &qdrant.SearchParams{HnswEf: &ef}
	}

	results, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	docs := make([]Document, 0, len(results))
	for _, r := range results {
		doc := Document{
			ID:    r.Id.GetUuid(),
			Score: r.Score,
		}
		if p := r.Payload; p != nil {
			doc.Content = p[payloadContent].GetStringValue()
			doc.Title = p[payloadTitle].GetStringValue()
			doc.RecordID = int(p[payloadRecordID].GetIntegerValue())
			doc.DocumentID = p[payloadDocumentID].GetStringValue()
			doc.Source = p[payloadSource].GetStringValue()
		}
		docs = append(docs, doc)
	}

	return docs, nil
}

// Ping checks Qdrant reachability via its native health check RPC.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// truncateRunes bounds s to max runes. max <= 0 disables truncation.
func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
