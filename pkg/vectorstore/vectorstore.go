// Package vectorstore defines the long-term memory backend boundary: stores
// hold (text, embedding, metadata) documents and answer nearest-neighbor
// queries. Backends may be shared across agents; each agent reaches one only
// through its own memory facade.
package vectorstore

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Document is one stored (text, embedding, metadata) tuple.
type Document struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Embedding []float32      `json:"embedding"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Match is a query hit with its similarity score (cosine, higher is closer).
type Match struct {
	Document Document
	Score    float32
}

// Store is implemented by long-term memory backends.
type Store interface {
	// Upsert inserts or replaces documents by id.
	Upsert(ctx context.Context, docs ...Document) error

	// Query returns up to k documents ranked by cosine similarity to the
	// query embedding.
	Query(ctx context.Context, embedding []float32, k int) ([]Match, error)

	// Close releases backend resources.
	Close() error
}

// StoreError reports a backend failure. Memory facades recover from it by
// degrading to short-term memory only.
type StoreError struct {
	Backend string
	Op      string
	Err     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("vectorstore %s: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// ValidateDocument checks a document before storage.
func ValidateDocument(doc Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document id cannot be empty")
	}
	if doc.Content == "" {
		return fmt.Errorf("document content cannot be empty")
	}
	if len(doc.Embedding) == 0 {
		return fmt.Errorf("document embedding cannot be empty")
	}
	for i, v := range doc.Embedding {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("embedding contains invalid value at index %d", i)
		}
	}
	return nil
}

// CosineSimilarity computes cosine similarity between two vectors. Mismatched
// lengths or zero vectors score 0.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
