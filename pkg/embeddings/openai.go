package embeddings

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

const defaultEmbeddingDimension = 1536 // text-embedding-3-small

// embeddingClient is the slice of the OpenAI client used here, kept as an
// interface for testability.
type embeddingClient interface {
	CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// OpenAIEmbedder calls the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client embeddingClient
	model  openai.EmbeddingModel
	dim    int
}

// NewOpenAIEmbedder creates an embedder using text-embedding-3-small.
func NewOpenAIEmbedder(apiKey string) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		client: openai.NewClient(apiKey),
		model:  openai.SmallEmbedding3,
		dim:    defaultEmbeddingDimension,
	}
}

// NewOpenAIEmbedderWithClient creates an embedder with a custom client.
func NewOpenAIEmbedderWithClient(client embeddingClient, model openai.EmbeddingModel, dim int) *OpenAIEmbedder {
	return &OpenAIEmbedder{client: client, model: model, dim: dim}
}

func (e *OpenAIEmbedder) Dimension() int { return e.dim }

// Embed implements Embedder.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response contained no data")
	}
	return resp.Data[0].Embedding, nil
}
