package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seoflow-ai/seoflow/pkg/vectorstore"
)

func doc(id, content string, embedding []float32) vectorstore.Document {
	return vectorstore.Document{
		ID:        id,
		Content:   content,
		Embedding: embedding,
		CreatedAt: time.Now(),
	}
}

func TestUpsertAndQueryRanking(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx,
		doc("a", "espresso grind size", []float32{1, 0, 0}),
		doc("b", "steam wand technique", []float32{0, 1, 0}),
		doc("c", "grind and tamp", []float32{0.9, 0.1, 0}),
	))
	assert.Equal(t, 3, s.Len())

	matches, err := s.Query(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a", matches[0].Document.ID)
	assert.Equal(t, "c", matches[1].Document.ID)
	assert.Greater(t, matches[0].Score, matches[1].Score)
}

func TestUpsertReplacesByID(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, doc("a", "v1", []float32{1, 0})))
	require.NoError(t, s.Upsert(ctx, doc("a", "v2", []float32{1, 0})))
	assert.Equal(t, 1, s.Len())

	matches, err := s.Query(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, "v2", matches[0].Document.Content)
}

func TestUpsertRejectsInvalidDocuments(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.Upsert(ctx, vectorstore.Document{ID: "x", Content: "no embedding"})
	var serr *vectorstore.StoreError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, 0, s.Len())
}

func TestQueryZeroK(t *testing.T) {
	s := New()
	matches, err := s.Query(context.Background(), []float32{1}, 0)
	require.NoError(t, err)
	assert.Empty(t, matches)
}
