// Package embeddings turns text into vectors for long-term memory. The
// feature-hashing embedder works offline and deterministically; the OpenAI
// embedder is used when an API key is configured.
package embeddings

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Embedder converts text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// HashingEmbedder is a dependency-free embedder using token feature hashing.
// Similar texts share tokens and therefore land near each other, which is
// enough for tests and offline runs; it is not a substitute for a learned
// embedding model.
type HashingEmbedder struct {
	dim int
}

// NewHashingEmbedder creates a hashing embedder with the given dimension
// (default 256 when dim <= 0).
func NewHashingEmbedder(dim int) *HashingEmbedder {
	if dim <= 0 {
		dim = 256
	}
	return &HashingEmbedder{dim: dim}
}

func (e *HashingEmbedder) Dimension() int { return e.dim }

// Embed implements Embedder. Never fails.
func (e *HashingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dim)
	for _, token := range tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		sum := h.Sum32()
		idx := int(sum % uint32(e.dim))
		// Top bit decides sign so hash collisions partially cancel.
		if sum&0x80000000 != 0 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}
	normalize(vec)
	return vec, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func normalize(vec []float32) {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return
	}
	inv := 1 / math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) * inv)
	}
}
