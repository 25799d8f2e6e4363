// Package memstore is an in-process vectorstore.Store backed by a map and
// brute-force cosine search. Suitable for tests and single-binary runs.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/seoflow-ai/seoflow/pkg/vectorstore"
)

// Store is a thread-safe in-memory vector store.
type Store struct {
	mu   sync.RWMutex
	docs map[string]vectorstore.Document
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{docs: make(map[string]vectorstore.Document)}
}

// Upsert implements vectorstore.Store.
func (s *Store) Upsert(ctx context.Context, docs ...vectorstore.Document) error {
	for _, doc := range docs {
		if err := vectorstore.ValidateDocument(doc); err != nil {
			return &vectorstore.StoreError{Backend: "memory", Op: "upsert", Err: err}
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range docs {
		s.docs[doc.ID] = doc
	}
	return nil
}

// Query implements vectorstore.Store.
func (s *Store) Query(ctx context.Context, embedding []float32, k int) ([]vectorstore.Match, error) {
	if k <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	matches := make([]vectorstore.Match, 0, len(s.docs))
	for _, doc := range s.docs {
		matches = append(matches, vectorstore.Match{
			Document: doc,
			Score:    vectorstore.CosineSimilarity(embedding, doc.Embedding),
		})
	}
	s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if k < len(matches) {
		matches = matches[:k]
	}
	return matches, nil
}

// Close implements vectorstore.Store.
func (s *Store) Close() error { return nil }

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
