package embeddings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seoflow-ai/seoflow/pkg/vectorstore"
)

func TestHashingEmbedderIsDeterministic(t *testing.T) {
	e := NewHashingEmbedder(128)
	ctx := context.Background()

	a1, err := e.Embed(ctx, "espresso machine reviews")
	require.NoError(t, err)
	a2, err := e.Embed(ctx, "espresso machine reviews")
	require.NoError(t, err)
	assert.Equal(t, a1, a2)
	assert.Len(t, a1, 128)
}

func TestHashingEmbedderSimilarityOrdering(t *testing.T) {
	e := NewHashingEmbedder(256)
	ctx := context.Background()

	query, _ := e.Embed(ctx, "best espresso machine grind settings")
	near, _ := e.Embed(ctx, "espresso grind settings for machines")
	far, _ := e.Embed(ctx, "quarterly payroll tax filings")

	assert.Greater(t,
		vectorstore.CosineSimilarity(query, near),
		vectorstore.CosineSimilarity(query, far))
}

func TestHashingEmbedderEmptyText(t *testing.T) {
	e := NewHashingEmbedder(64)
	vec, err := e.Embed(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, vec, 64)
}
