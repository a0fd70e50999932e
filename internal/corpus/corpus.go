// Package corpus converts raw upstream content records into the canonical
// documents and bounded-size chunks that get embedded and indexed. It owns
// normalization (with explicit discard reasons), deduplication by document
// identity, corpus fingerprinting, and recursive overlap chunking.
package corpus

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/54b3r/kbchat-go/internal/source"
)

// MetadataSource is the metadata.source value stamped on every canonical
// document so retrieved passages can be traced back to the knowledge base.
const MetadataSource = "milvus_content"

// Metadata identifies the upstream origin of a document or chunk.
type Metadata struct {
	// Source labels the content origin (always MetadataSource today).
	Source string
	// ID is the upstream numeric record ID.
	ID int
	// Title is the document title.
	Title string
	// DocumentID is the stable upstream document identifier.
	DocumentID string
}

// Document is a normalized, display-ready unit of source content. Chunks are
// Documents too — a chunk carries its parent's full metadata.
type Document struct {
	// PageContent is the normalized text.
	PageContent string
	// Metadata identifies the upstream record this text came from.
	Metadata Metadata
}

// DiscardReason explains why a raw record was dropped during normalization.
type DiscardReason string

const (
	// DiscardNone means the record was normalized successfully.
	DiscardNone DiscardReason = ""
	// DiscardMissingTitle means the record had no title.
	DiscardMissingTitle DiscardReason = "missing_title"
	// DiscardMissingContent means the record had no content blocks.
	DiscardMissingContent DiscardReason = "missing_content"
	// DiscardEmptyText means no paragraph block yielded any text.
	DiscardEmptyText DiscardReason = "empty_text"
)

// Normalize converts a raw record into a canonical document. Malformed
// records are never an error: the returned reason is DiscardNone on success
// and names the defect otherwise. Only "paragraph" blocks contribute text;
// within a block the child spans are joined with a single space and trimmed,
// and blocks are joined with a blank line.
func Normalize(rec source.RawRecord) (Document, DiscardReason) {
	if rec.Title == "" {
		return Document{}, DiscardMissingTitle
	}
	if len(rec.Content) == 0 {
		return Document{}, DiscardMissingContent
	}

	var paragraphs []string
	for _, block := range rec.Content {
		if block.Type != "paragraph" || len(block.Children) == 0 {
			continue
		}
		spans := make([]string, 0, len(block.Children))
		for _, child := range block.Children {
			spans = append(spans, child.Text)
		}
		text := strings.TrimSpace(strings.Join(spans, " "))
		if text != "" {
			paragraphs = append(paragraphs, text)
		}
	}

	joined := strings.Join(paragraphs, "\n\n")
	if joined == "" {
		return Document{}, DiscardEmptyText
	}

	return Document{
		PageContent: joined,
		Metadata: Metadata{
			Source:     MetadataSource,
			ID:         rec.ID,
			Title:      rec.Title,
			DocumentID: rec.DocumentID,
		},
	}, DiscardNone
}

// Dedupe collapses documents sharing a DocumentID to a single entry. The
// later document in input order wins; the surviving entry keeps the position
// where its DocumentID was first seen so output order is deterministic.
func Dedupe(docs []Document) []Document {
	out := make([]Document, 0, len(docs))
	index := make(map[string]int, len(docs))
	for _, doc := range docs {
		if i, ok := index[doc.Metadata.DocumentID]; ok {
			out[i] = doc
			continue
		}
		index[doc.Metadata.DocumentID] = len(out)
		out = append(out, doc)
	}
	return out
}

// Fingerprint returns the deterministic digest of a raw upstream payload.
// Byte-identical payloads always produce identical fingerprints; any
// single-byte change produces a different one.
func Fingerprint(payload []byte) string {
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("%x", sum)
}
